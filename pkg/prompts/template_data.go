package prompts

import (
	_ "embed"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	ModeScriptSystem   = "script_system"
	ModeScript         = "script"
	ModeScriptRevision = "script_revision"
	ModeJSONSystem     = "json_system"
	ModeStoryboard     = "storyboard"
	ModeCharacters     = "characters"
	ModeEnhance        = "enhance"
	ModeVideo          = "video"
)

// TemplateData はテンプレートに渡すデータ構造です。各モードは必要なフィールドだけを参照します。
type TemplateData struct {
	Requirement    string
	PreviousScript string
	MinScenes      int
	MaxScenes      int

	Script        domain.Script
	ArtStyle      string
	StyleKeywords string
	AspectRatio   string
	Names         []string

	Scenes []SceneContext
	Tools  []domain.VideoTool
}

// SceneContext は1シーンについて台本・絵コンテ・登場キャラクター・キーフレームを束ねたものです。
type SceneContext struct {
	Number     int
	Script     domain.Scene
	Board      domain.StoryboardScene
	Characters []domain.MappedCharacter
	Keyframe   string
}

// BuildSceneContexts はストーリーボードの順にシーン情報を組み立てます。
// 台本のシーンは位置で、キーフレームはシーン番号で対応付けます。
func BuildSceneContexts(script domain.Script, board domain.Storyboard, mapping domain.SceneCharacterMapping, keyframes domain.Keyframes) []SceneContext {
	out := make([]SceneContext, 0, len(board.Scenes))
	for i, bs := range board.Scenes {
		sc, _ := script.SceneAt(i)
		ctx := SceneContext{
			Number:     bs.SceneNumber,
			Script:     sc,
			Board:      bs,
			Characters: mapping[bs.SceneNumber],
		}
		if kf, ok := keyframes.Find(bs.SceneNumber); ok {
			ctx.Keyframe = kf.Image
		}
		out = append(out, ctx)
	}
	return out
}

var (
	//go:embed script_system.md
	ScriptSystemPrompt string
	//go:embed script.md
	ScriptPrompt string
	//go:embed script_revision.md
	ScriptRevisionPrompt string
	//go:embed json_system.md
	JSONSystemPrompt string
	//go:embed storyboard.md
	StoryboardPrompt string
	//go:embed characters.md
	CharactersPrompt string
	//go:embed enhance.md
	EnhancePrompt string
	//go:embed video.md
	VideoPrompt string
)

// allTemplates はモードとテンプレート文字列を紐づけるマップです。
var allTemplates = map[string]string{
	ModeScriptSystem:   ScriptSystemPrompt,
	ModeScript:         ScriptPrompt,
	ModeScriptRevision: ScriptRevisionPrompt,
	ModeJSONSystem:     JSONSystemPrompt,
	ModeStoryboard:     StoryboardPrompt,
	ModeCharacters:     CharactersPrompt,
	ModeEnhance:        EnhancePrompt,
	ModeVideo:          VideoPrompt,
}
