package prompts

import (
	"strings"
	"testing"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

func TestTextPromptBuilder_Build(t *testing.T) {
	pb, err := NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("初期化に失敗しました: %v", err)
	}

	script := domain.Script{
		Title:   "Rain Strangers",
		Summary: "two strangers share an umbrella",
		Scenes: []domain.Scene{
			{SceneNumber: 1, Location: "bus stop", Characters: []string{"Mika", "Ren"}, Action: "wait", VisualHook: "umbrella"},
		},
	}
	board := domain.Storyboard{Scenes: []domain.StoryboardScene{{SceneNumber: 1, ShotType: "wide", Prompt: "bus stop in rain"}}}
	mapping := domain.SceneCharacterMapping{1: {{Name: "Mika", Gender: "female", Position: "left"}}}

	data := TemplateData{
		Requirement:   "a 45-second story about two strangers meeting in a rainstorm",
		MinScenes:     domain.MinScenes,
		MaxScenes:     domain.MaxScenes,
		Script:        script,
		ArtStyle:      "写实风格",
		StyleKeywords: "photorealistic",
		AspectRatio:   "16:9",
		Names:         []string{"Mika", "Ren"},
		Scenes:        BuildSceneContexts(script, board, mapping, nil),
		Tools:         domain.SupportedTools,
	}

	tests := []struct {
		mode     string
		contains []string
	}{
		{ModeScriptSystem, []string{"5 to 8 scenes", "visualHook"}},
		{ModeScript, []string{"rainstorm"}},
		{ModeStoryboard, []string{"Scene 1: location=bus stop", "characters=Mika, Ren", "16:9"}},
		{ModeCharacters, []string{"- Mika", "- Ren", "写实风格"}},
		{ModeEnhance, []string{"[Mika: female", "bus stop in rain"}},
		{ModeVideo, []string{"runway, pika, kling, sora", `"sora": "string"`}},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := pb.Build(tt.mode, data)
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("%q が含まれていません:\n%s", want, got)
				}
			}
		})
	}

	if _, err := pb.Build("unknown", data); err == nil {
		t.Error("不明なモードでエラーが発生しませんでした")
	}
}

func TestCharacterRegenerationPrompt(t *testing.T) {
	c := domain.CharacterInfo{Name: "Mika", Prompt: "young woman in a yellow raincoat"}

	t.Run("強度が低いと写実キーワードを注入する", func(t *testing.T) {
		got := CharacterRegenerationPrompt(c, "watercolor", 30)
		want := "watercolor, young woman in a yellow raincoat, " + PhotorealKeywords + ", " + CharacterAspectTag
		if got != want {
			t.Errorf("期待値 %q, 実際の値 %q", want, got)
		}
	})

	t.Run("強度が50以上なら写実キーワードなし", func(t *testing.T) {
		got := CharacterRegenerationPrompt(c, "watercolor", 50)
		if strings.Contains(got, PhotorealKeywords) {
			t.Errorf("写実キーワードが含まれています: %q", got)
		}
		if !strings.HasSuffix(got, CharacterAspectTag) {
			t.Errorf("アスペクト比タグが末尾にありません: %q", got)
		}
	})

	t.Run("画風キーワードが既にあれば重複させない", func(t *testing.T) {
		c2 := c
		c2.Prompt = "Watercolor portrait of a young woman"
		got := CharacterRegenerationPrompt(c2, "watercolor", 80)
		if strings.Count(strings.ToLower(got), "watercolor") != 1 {
			t.Errorf("画風キーワードが重複しています: %q", got)
		}
	})

	t.Run("プロンプトが空なら属性から組み立てる", func(t *testing.T) {
		got := CharacterBasePrompt(domain.CharacterInfo{Name: "Ren", Gender: "male", Outfit: "grey coat"})
		if got != "character reference of Ren, male, wearing grey coat" {
			t.Errorf("実際の値 %q", got)
		}
	})
}

func TestKeyframePrompt(t *testing.T) {
	if got := KeyframePrompt("empty street", nil); got != "empty street" {
		t.Errorf("キャラクター無しでは元のプロンプトのままのはずです: %q", got)
	}

	chars := []domain.MappedCharacter{
		{Name: "Mika", Gender: "female", Ethnicity: "Japanese", Appearance: "short black hair", Outfit: "yellow raincoat", Position: "left"},
		{Name: "Ren"},
	}
	got := KeyframePrompt("two people under an umbrella", chars)
	want := "[female, Japanese, short black hair, wearing yellow raincoat, left] [Ren] two people under an umbrella"
	if got != want {
		t.Errorf("期待値 %q, 実際の値 %q", want, got)
	}
}
