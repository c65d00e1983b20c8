package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/config"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/styles"
)

// --- Fakes ---

type fakeText struct {
	mu       sync.Mutex
	calls    []generator.TextRequest
	response string
	err      error
	// block が true の場合、ctx が終わるまで応答しません。
	block bool
}

func (f *fakeText) GenerateText(ctx context.Context, req generator.TextRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.response, f.err
}

type fakeImages struct {
	mu       sync.Mutex
	requests []generator.ImageRequest
	// failNames に含まれる Name の要求は失敗します。
	failNames map[string]bool
	// delays は Name ごとの応答遅延です。完了順を入れ替えるために使います。
	delays map[string]time.Duration
	empty  bool
}

func (f *fakeImages) GenerateImages(ctx context.Context, req generator.ImageRequest) ([]string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if d := f.delays[req.Name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failNames[req.Name] {
		return nil, errors.New("upstream 500")
	}
	if f.empty {
		return nil, nil
	}
	return []string{"assets/" + req.Name + ".png"}, nil
}

func (f *fakeImages) byName(name string) (generator.ImageRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.Name == name {
			return r, true
		}
	}
	return generator.ImageRequest{}, false
}

func testDeps(t *testing.T, text generator.TextGenerator, images generator.ImageGenerator) Deps {
	t.Helper()
	builder, err := prompts.NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("NewTextPromptBuilder() error = %v", err)
	}
	catalogue, err := styles.Default()
	if err != nil {
		t.Fatalf("styles.Default() error = %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.BatchCooldown = 0
	return Deps{
		Config:  cfg,
		Prompts: builder,
		Text:    text,
		Images:  images,
		Styles:  catalogue,
	}
}

// --- Fixtures ---

func sampleScript(n int) domain.Script {
	s := domain.Script{Title: "雨の駅", Genre: "drama"}
	for i := range n {
		sc := domain.Scene{
			SceneNumber: i + 1,
			Location:    "station",
			Action:      fmt.Sprintf("action %d", i+1),
			VisualHook:  fmt.Sprintf("hook %d", i+1),
			Duration:    4,
		}
		switch i {
		case 0:
			sc.Characters = []string{"Aiko", "Ren"}
		case 1:
			sc.Characters = []string{"Ren"}
		}
		s.Scenes = append(s.Scenes, sc)
	}
	return s
}

func sampleBoard(script domain.Script) domain.Storyboard {
	b := domain.Storyboard{ArtStyle: "写实风格", AspectRatio: "16:9"}
	for _, sc := range script.Scenes {
		b.Scenes = append(b.Scenes, domain.StoryboardScene{
			SceneNumber:       sc.SceneNumber,
			ShotType:          "wide",
			CharacterPosition: "left, right",
			Prompt:            fmt.Sprintf("prompt %d", sc.SceneNumber),
		})
	}
	return b
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	return string(b)
}

// --- ScriptRunner ---

func TestScriptRunner_Run(t *testing.T) {
	t.Run("空の要件は外部呼び出し前に拒否される", func(t *testing.T) {
		text := &fakeText{}
		_, err := NewScriptRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), ScriptRequest{Requirement: "  "})
		if !domain.IsKind(err, domain.KindValidation) {
			t.Fatalf("validation エラーを期待しましたが %v でした", err)
		}
		if len(text.calls) != 0 {
			t.Errorf("テキスト生成が呼ばれるべきではありません (calls=%d)", len(text.calls))
		}
	})

	t.Run("コードフェンス付きの応答を解析し番号を振り直す", func(t *testing.T) {
		script := sampleScript(5)
		for i := range script.Scenes {
			script.Scenes[i].SceneNumber = 10 + i
		}
		text := &fakeText{response: "Here you go:\n```json\n" + mustJSON(t, script) + "\n```"}
		got, err := NewScriptRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), ScriptRequest{Requirement: "雨の日の再会"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		for i, sc := range got.Scenes {
			if sc.SceneNumber != i+1 {
				t.Errorf("scene[%d].SceneNumber = %d, want %d", i, sc.SceneNumber, i+1)
			}
		}
		if !text.calls[0].JSON {
			t.Error("JSON 応答が要求されていません")
		}
	})

	t.Run("シーン数が上限を超える場合は切り詰める", func(t *testing.T) {
		text := &fakeText{response: mustJSON(t, sampleScript(10))}
		got, err := NewScriptRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), ScriptRequest{Requirement: "x"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(got.Scenes) != domain.MaxScenes {
			t.Errorf("シーン数 = %d, want %d", len(got.Scenes), domain.MaxScenes)
		}
	})

	t.Run("シーン数が下限未満ならスキーマエラー", func(t *testing.T) {
		text := &fakeText{response: mustJSON(t, sampleScript(3))}
		_, err := NewScriptRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), ScriptRequest{Requirement: "x"})
		if !domain.IsKind(err, domain.KindSchema) {
			t.Errorf("schema エラーを期待しましたが %v でした", err)
		}
	})

	t.Run("JSON を含まない応答は parse エラー", func(t *testing.T) {
		text := &fakeText{response: "申し訳ありませんが生成できませんでした。"}
		_, err := NewScriptRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), ScriptRequest{Requirement: "x"})
		if !domain.IsKind(err, domain.KindParse) {
			t.Errorf("parse エラーを期待しましたが %v でした", err)
		}
	})

	t.Run("改訂モードでは元の台本がプロンプトに含まれる", func(t *testing.T) {
		prev := sampleScript(5)
		prev.Title = "旧タイトルXYZ"
		text := &fakeText{response: mustJSON(t, sampleScript(6))}
		_, err := NewScriptRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), ScriptRequest{Requirement: "もっと明るく", PreviousScript: &prev})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		user := text.calls[0].Messages[1].Content
		if !strings.Contains(user, "旧タイトルXYZ") {
			t.Error("改訂元の台本がユーザープロンプトに含まれていません")
		}
	})

	t.Run("生成サービスのエラーは generation として伝播する", func(t *testing.T) {
		text := &fakeText{err: errors.New("quota exceeded")}
		_, err := NewScriptRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), ScriptRequest{Requirement: "x"})
		if !domain.IsKind(err, domain.KindGeneration) {
			t.Errorf("generation エラーを期待しましたが %v でした", err)
		}
	})
}

// --- StoryboardRunner ---

func TestStoryboardRunner_Run(t *testing.T) {
	script := sampleScript(5)

	t.Run("台本のシーン番号と一致する", func(t *testing.T) {
		board := sampleBoard(script)
		// 番号の省略は位置で補われる
		board.Scenes[2].SceneNumber = 0
		text := &fakeText{response: mustJSON(t, map[string]any{"scenes": board.Scenes})}
		got, err := NewStoryboardRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), StoryboardRequest{Script: script, ArtStyle: "写实风格"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(got.Scenes) != len(script.Scenes) {
			t.Fatalf("シーン数 = %d, want %d", len(got.Scenes), len(script.Scenes))
		}
		for i := range got.Scenes {
			if got.Scenes[i].SceneNumber != script.Scenes[i].SceneNumber {
				t.Errorf("scene[%d] = %d, want %d", i, got.Scenes[i].SceneNumber, script.Scenes[i].SceneNumber)
			}
		}
		if got.AspectRatio != "16:9" {
			t.Errorf("AspectRatio = %q, want 16:9", got.AspectRatio)
		}
		if !strings.Contains(text.calls[0].Messages[1].Content, "photorealistic") {
			t.Error("画風キーワードがプロンプトに展開されていません")
		}
	})

	t.Run("シーン数の不一致はスキーマエラー", func(t *testing.T) {
		board := sampleBoard(script)
		text := &fakeText{response: mustJSON(t, map[string]any{"scenes": board.Scenes[:4]})}
		_, err := NewStoryboardRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), StoryboardRequest{Script: script, ArtStyle: "写实风格"})
		if !domain.IsKind(err, domain.KindSchema) {
			t.Errorf("schema エラーを期待しましたが %v でした", err)
		}
	})

	t.Run("制限時間を超えると ErrTimeout", func(t *testing.T) {
		text := &fakeText{block: true}
		deps := testDeps(t, text, &fakeImages{})
		deps.Config.StoryboardTimeout = 20 * time.Millisecond
		_, err := NewStoryboardRunner(deps).Run(context.Background(), StoryboardRequest{Script: script, ArtStyle: "写实风格"})
		if !errors.Is(err, domain.ErrTimeout) {
			t.Fatalf("ErrTimeout を期待しましたが %v でした", err)
		}
		if !domain.IsKind(err, domain.KindTimeout) {
			t.Errorf("KindOf = %s, want timeout", domain.KindOf(err))
		}
	})

	t.Run("入力不備は validation", func(t *testing.T) {
		r := NewStoryboardRunner(testDeps(t, &fakeText{}, &fakeImages{}))
		if _, err := r.Run(context.Background(), StoryboardRequest{ArtStyle: "x"}); !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("シーン無し: %v", err)
		}
		if _, err := r.Run(context.Background(), StoryboardRequest{Script: script}); !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("画風無し: %v", err)
		}
	})
}

// --- DesignRunner ---

func TestDesignRunner_Run(t *testing.T) {
	script := sampleScript(5)
	designJSON := func(t *testing.T) string {
		// 順序を入れ替え、台本に無い人物を混ぜる
		return mustJSON(t, map[string]any{"characters": []domain.CharacterInfo{
			{Name: "ren", Gender: "male", Appearance: "short black hair"},
			{Name: "Extra", Gender: "female"},
			{Name: "Aiko", Gender: "female", Appearance: "long brown hair"},
		}})
	}

	t.Run("2人のキャラクターに対して画像が2枚、順序が揃う", func(t *testing.T) {
		images := &fakeImages{}
		got, err := NewDesignRunner(testDeps(t, &fakeText{response: designJSON(t)}, images)).Run(context.Background(), DesignRequest{Script: script, ArtStyle: "写实风格"})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if len(got.Characters) != 2 {
			t.Fatalf("キャラクター数 = %d, want 2", len(got.Characters))
		}
		if got.Characters[0].Name != "Aiko" || got.Characters[1].Name != "Ren" {
			t.Errorf("順序 = [%s %s], want [Aiko Ren]", got.Characters[0].Name, got.Characters[1].Name)
		}
		for i, c := range got.Characters {
			want := "assets/character_" + c.Name + ".png"
			if c.Image != want {
				t.Errorf("characters[%d].Image = %q, want %q", i, c.Image, want)
			}
		}

		req, ok := images.byName("character_Aiko")
		if !ok {
			t.Fatal("Aiko の画像要求がありません")
		}
		if req.Size != generator.ImageSize1K || req.AspectRatio != prompts.CharacterAspectRatio {
			t.Errorf("size/aspect = %s/%s", req.Size, req.AspectRatio)
		}
		if req.Seed == nil || *req.Seed != domain.GetSeedFromName("Aiko") {
			t.Error("名前由来のシードが指定されていません")
		}
	})

	t.Run("1人でも画像が失敗すればステージ失敗", func(t *testing.T) {
		images := &fakeImages{failNames: map[string]bool{"character_Ren": true}}
		_, err := NewDesignRunner(testDeps(t, &fakeText{response: designJSON(t)}, images)).Run(context.Background(), DesignRequest{Script: script, ArtStyle: "写实风格"})
		if !domain.IsKind(err, domain.KindGeneration) {
			t.Errorf("generation エラーを期待しましたが %v でした", err)
		}
	})

	t.Run("台本の人物が設定に欠けていればスキーマエラー", func(t *testing.T) {
		text := &fakeText{response: mustJSON(t, map[string]any{"characters": []domain.CharacterInfo{{Name: "Aiko"}}})}
		_, err := NewDesignRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), DesignRequest{Script: script, ArtStyle: "写实风格"})
		if !domain.IsKind(err, domain.KindSchema) {
			t.Errorf("schema エラーを期待しましたが %v でした", err)
		}
	})

	t.Run("登場人物がいなければ validation", func(t *testing.T) {
		empty := sampleScript(5)
		for i := range empty.Scenes {
			empty.Scenes[i].Characters = nil
		}
		text := &fakeText{}
		_, err := NewDesignRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), DesignRequest{Script: empty})
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("validation エラーを期待しましたが %v でした", err)
		}
		if len(text.calls) != 0 {
			t.Error("テキスト生成が呼ばれるべきではありません")
		}
	})
}

func TestDesignRunner_Regenerate(t *testing.T) {
	images := &fakeImages{}
	r := NewDesignRunner(testDeps(t, &fakeText{}, images))
	ref, err := r.Regenerate(context.Background(), RegenerateCharacterRequest{
		Character:     domain.CharacterInfo{Name: "Aiko", Appearance: "long hair"},
		StyleKeywords: "watercolor painting",
		StyleStrength: 150,
	})
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if ref != "assets/character_Aiko.png" {
		t.Errorf("ref = %q", ref)
	}
	req, _ := images.byName("character_Aiko")
	if !strings.Contains(req.Prompt, "watercolor painting") {
		t.Errorf("画風キーワードが反映されていません: %q", req.Prompt)
	}

	if _, err := r.Regenerate(context.Background(), RegenerateCharacterRequest{}); !domain.IsKind(err, domain.KindValidation) {
		t.Errorf("空のキャラクターは validation を期待しましたが %v でした", err)
	}
}

// --- EnhanceRunner ---

func TestEnhanceRunner_Run(t *testing.T) {
	script := sampleScript(5)
	board := sampleBoard(script)

	t.Run("全シーンが揃えばプロンプトを差し替える", func(t *testing.T) {
		var ps []enhancedPrompt
		for _, sc := range board.Scenes {
			ps = append(ps, enhancedPrompt{SceneNumber: sc.SceneNumber, Prompt: fmt.Sprintf("cinematic %d", sc.SceneNumber)})
		}
		text := &fakeText{response: mustJSON(t, map[string]any{"prompts": ps})}
		got := NewEnhanceRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), EnhanceRequest{Storyboard: board})
		for _, sc := range got.Scenes {
			if sc.Prompt != fmt.Sprintf("cinematic %d", sc.SceneNumber) {
				t.Errorf("scene %d prompt = %q", sc.SceneNumber, sc.Prompt)
			}
		}
		if board.Scenes[0].Prompt != "prompt 1" {
			t.Error("入力のストーリーボードが変更されています")
		}
	})

	tests := []struct {
		name string
		text *fakeText
	}{
		{name: "生成サービスの失敗", text: &fakeText{err: errors.New("503")}},
		{name: "解析不能な応答", text: &fakeText{response: "no json here"}},
		{name: "シーンの欠落", text: &fakeText{response: `{"prompts":[{"sceneNumber":1,"prompt":"only one"}]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name+"では元のプロンプトを返す", func(t *testing.T) {
			got := NewEnhanceRunner(testDeps(t, tt.text, &fakeImages{})).Run(context.Background(), EnhanceRequest{Storyboard: board})
			for i, sc := range got.Scenes {
				if sc.Prompt != board.Scenes[i].Prompt {
					t.Errorf("scene %d prompt = %q, want %q", sc.SceneNumber, sc.Prompt, board.Scenes[i].Prompt)
				}
			}
		})
	}
}

// --- KeyframeRunner ---

func keyframeFixture(t *testing.T) (domain.Storyboard, domain.CharacterDesign, domain.SceneCharacterMapping) {
	t.Helper()
	script := sampleScript(5)
	board := sampleBoard(script)
	design := domain.CharacterDesign{Characters: []domain.DesignedCharacter{
		{CharacterInfo: domain.CharacterInfo{Name: "Aiko", Gender: "female"}, Image: "assets/aiko.png"},
		{CharacterInfo: domain.CharacterInfo{Name: "Ren", Gender: "male"}, Image: "assets/ren.png"},
	}}
	return board, design, domain.BuildSceneCharacterMapping(script, board, design)
}

func TestKeyframeRunner_Run(t *testing.T) {
	t.Run("完了順に関わらずシーン番号順で返す", func(t *testing.T) {
		board, design, mapping := keyframeFixture(t)
		images := &fakeImages{delays: map[string]time.Duration{
			"scene_01": 40 * time.Millisecond,
			"scene_02": 20 * time.Millisecond,
		}}
		got, err := NewKeyframeRunner(testDeps(t, &fakeText{}, images)).Run(context.Background(), KeyframeRequest{
			Storyboard: board, Design: design, Mapping: mapping, Mode: domain.RenderFast,
		})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if err := got.CoversStoryboard(board); err != nil {
			t.Fatalf("CoversStoryboard() error = %v", err)
		}
		for i, kf := range got {
			if kf.SceneNumber != i+1 {
				t.Errorf("keyframes[%d].SceneNumber = %d, want %d", i, kf.SceneNumber, i+1)
			}
		}

		first, _ := images.byName("scene_01")
		if first.ReferenceImage != "assets/aiko.png" {
			t.Errorf("scene 1 reference = %q, want assets/aiko.png", first.ReferenceImage)
		}
		if first.Size != generator.ImageSize1K {
			t.Errorf("fast モードの解像度 = %s, want 1K", first.Size)
		}
		if !strings.HasPrefix(first.Prompt, "[") {
			t.Errorf("キャラクター記述がプロンプトの先頭にありません: %q", first.Prompt)
		}
		lonely, _ := images.byName("scene_04")
		if lonely.ReferenceImage != design.Images()[0] {
			t.Errorf("登場人物のいないシーンはデザイン先頭の画像を参照するはずですが %q", lonely.ReferenceImage)
		}
	})

	t.Run("シーン3の失敗でステージ全体が失敗し一覧を返さない", func(t *testing.T) {
		board, design, mapping := keyframeFixture(t)
		images := &fakeImages{failNames: map[string]bool{"scene_03": true}}
		got, err := NewKeyframeRunner(testDeps(t, &fakeText{}, images)).Run(context.Background(), KeyframeRequest{
			Storyboard: board, Design: design, Mapping: mapping,
		})
		if !domain.IsKind(err, domain.KindGeneration) {
			t.Fatalf("generation エラーを期待しましたが %v でした", err)
		}
		if got != nil {
			t.Errorf("失敗時に一覧が返されました: %v", got)
		}
		if !strings.Contains(err.Error(), "scene 3") {
			t.Errorf("エラーに失敗したシーンが含まれていません: %v", err)
		}
	})

	t.Run("成功扱いで0枚なら失敗", func(t *testing.T) {
		board, design, mapping := keyframeFixture(t)
		_, err := NewKeyframeRunner(testDeps(t, &fakeText{}, &fakeImages{empty: true})).Run(context.Background(), KeyframeRequest{
			Storyboard: board, Design: design, Mapping: mapping,
		})
		if !errors.Is(err, domain.ErrNoImages) {
			t.Errorf("ErrNoImages を期待しましたが %v でした", err)
		}
	})
}

func TestKeyframeRunner_Policy(t *testing.T) {
	deps := testDeps(t, &fakeText{}, &fakeImages{})
	if p := NewKeyframeRunner(deps).Policy(); p.Size != 0 {
		t.Errorf("既定のポリシー = %s, want unbounded", p)
	}
	deps.Config.KeyframeBatchSize = 2
	if p := NewKeyframeRunner(deps).Policy(); p.Size != 2 {
		t.Errorf("ポリシー = %s, want size 2", p)
	}
}

func TestKeyframeRunner_Regenerate(t *testing.T) {
	images := &fakeImages{}
	r := NewKeyframeRunner(testDeps(t, &fakeText{}, images))
	ref, err := r.Regenerate(context.Background(), RegenerateKeyframeRequest{
		Keyframe:        domain.KeyframeScene{SceneNumber: 2, Prompt: "old"},
		CharacterImages: []string{"", "assets/ren.png"},
		Prompt:          "new prompt",
	})
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}
	if ref != "assets/scene_02.png" {
		t.Errorf("ref = %q", ref)
	}
	req, _ := images.byName("scene_02")
	if req.ReferenceImage != "assets/ren.png" || req.Prompt != "new prompt" || req.Size != generator.ImageSize2K {
		t.Errorf("要求 = %+v", req)
	}
}

// --- VideoPromptRunner ---

func TestVideoPromptRunner_Run(t *testing.T) {
	script := sampleScript(5)
	board := sampleBoard(script)
	var keyframes domain.Keyframes
	for _, sc := range board.Scenes {
		keyframes = append(keyframes, domain.KeyframeScene{SceneNumber: sc.SceneNumber, Image: fmt.Sprintf("kf%d.png", sc.SceneNumber)})
	}
	fullPrompts := func() map[domain.VideoTool]string {
		m := map[domain.VideoTool]string{}
		for _, tool := range domain.SupportedTools {
			m[tool] = string(tool) + " prompt"
		}
		return m
	}

	t.Run("全キーフレームに対応しシーン番号順に並ぶ", func(t *testing.T) {
		out := domain.VideoPrompts{OverallStyle: domain.OverallStyle{Pacing: "slow"}}
		for i := len(keyframes) - 1; i >= 0; i-- {
			out.Scenes = append(out.Scenes, domain.VideoPromptScene{SceneNumber: keyframes[i].SceneNumber, Prompts: fullPrompts()})
		}
		text := &fakeText{response: mustJSON(t, out)}
		got, err := NewVideoPromptRunner(testDeps(t, text, &fakeImages{})).Run(context.Background(), VideoPromptRequest{Script: script, Storyboard: board, Keyframes: keyframes})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		for i, sc := range got.Scenes {
			if sc.SceneNumber != i+1 {
				t.Errorf("scenes[%d].SceneNumber = %d", i, sc.SceneNumber)
			}
		}
		if !strings.Contains(text.calls[0].Messages[1].Content, "kf3.png") {
			t.Error("キーフレーム参照がプロンプトに含まれていません")
		}
	})

	t.Run("ツールのプロンプトが欠けていればスキーマエラー", func(t *testing.T) {
		out := domain.VideoPrompts{}
		for _, kf := range keyframes {
			p := fullPrompts()
			if kf.SceneNumber == 2 {
				delete(p, domain.ToolSora)
			}
			out.Scenes = append(out.Scenes, domain.VideoPromptScene{SceneNumber: kf.SceneNumber, Prompts: p})
		}
		_, err := NewVideoPromptRunner(testDeps(t, &fakeText{response: mustJSON(t, out)}, &fakeImages{})).Run(context.Background(), VideoPromptRequest{Script: script, Storyboard: board, Keyframes: keyframes})
		if !domain.IsKind(err, domain.KindSchema) {
			t.Errorf("schema エラーを期待しましたが %v でした", err)
		}
	})

	t.Run("キーフレームが無ければ validation", func(t *testing.T) {
		_, err := NewVideoPromptRunner(testDeps(t, &fakeText{}, &fakeImages{})).Run(context.Background(), VideoPromptRequest{Script: script, Storyboard: board})
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("validation エラーを期待しましたが %v でした", err)
		}
	})
}

// --- PreviewRunner ---

func TestPreviewRunner_Run(t *testing.T) {
	images := &fakeImages{failNames: map[string]bool{"preview_水彩风格": true}}
	got, err := NewPreviewRunner(testDeps(t, &fakeText{}, images)).Run(context.Background(), PreviewRequest{
		Prompt: "a girl waiting at a rainy station",
		Styles: []string{"realistic", "watercolor", "no-such-style", "anime"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Succeeded != 2 || got.Failed != 2 {
		t.Errorf("succeeded/failed = %d/%d, want 2/2", got.Succeeded, got.Failed)
	}
	if got.Items[0].Image == "" || got.Items[3].Image == "" {
		t.Errorf("成功したはずの項目に画像がありません: %+v", got.Items)
	}
	if got.Items[1].Error == "" || got.Items[2].Error == "" {
		t.Errorf("失敗した項目にエラーがありません: %+v", got.Items)
	}
	if got.Items[2].Style != "no-such-style" {
		t.Errorf("項目の順序が入力と一致しません: %+v", got.Items)
	}
	if _, ok := images.byName("preview_no-such-style"); ok {
		t.Error("未知の画風で画像生成が呼ばれました")
	}
}

func TestReferenceFor(t *testing.T) {
	designImages := []string{"assets/aiko.png", "assets/ren.png"}
	tests := []struct {
		name   string
		chars  []domain.MappedCharacter
		images []string
		want   string
	}{
		{"登場キャラクターの画像", []domain.MappedCharacter{{Name: "Ren", Image: "assets/ren.png"}}, designImages, "assets/ren.png"},
		{"未解決ならデザイン先頭", []domain.MappedCharacter{{Name: "Ghost"}}, designImages, "assets/aiko.png"},
		{"登場人物なしでもデザイン先頭", nil, designImages, "assets/aiko.png"},
		{"画像が1枚も無ければ参照なし", nil, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := referenceFor(tt.chars, tt.images); got != tt.want {
				t.Errorf("referenceFor() = %q, want %q", got, tt.want)
			}
		})
	}
}
