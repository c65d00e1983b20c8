package runner

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// VideoPromptRequest は動画プロンプト変換の入力です。
type VideoPromptRequest struct {
	Script     domain.Script     `json:"script"`
	Storyboard domain.Storyboard `json:"storyboard"`
	Keyframes  domain.Keyframes  `json:"keyframes"`
}

// VideoPromptRunner はシーンごとに外部動画生成ツール向けのプロンプトを作ります。
type VideoPromptRunner struct {
	deps Deps
}

// NewVideoPromptRunner は依存関係を注入して初期化します。
func NewVideoPromptRunner(deps Deps) *VideoPromptRunner {
	return &VideoPromptRunner{deps: deps}
}

// Run は1回のテキスト生成で全体スタイルとシーンごとのツール別プロンプトを生成します。
func (vr *VideoPromptRunner) Run(ctx context.Context, req VideoPromptRequest) (domain.VideoPrompts, error) {
	if len(req.Keyframes) == 0 {
		return domain.VideoPrompts{}, domain.NewValidationError("keyframes are required")
	}
	if len(req.Storyboard.Scenes) == 0 {
		return domain.VideoPrompts{}, domain.NewValidationError("storyboard has no scenes")
	}

	data := prompts.TemplateData{
		Script: req.Script,
		Scenes: prompts.BuildSceneContexts(req.Script, req.Storyboard, nil, req.Keyframes),
		Tools:  domain.SupportedTools,
	}
	var out domain.VideoPrompts
	if err := vr.deps.generateJSON(ctx, "video-prompts", prompts.ModeJSONSystem, prompts.ModeVideo, data, &out); err != nil {
		return domain.VideoPrompts{}, err
	}
	if err := out.Validate(req.Keyframes); err != nil {
		return domain.VideoPrompts{}, err
	}

	sort.SliceStable(out.Scenes, func(i, j int) bool { return out.Scenes[i].SceneNumber < out.Scenes[j].SceneNumber })
	slog.InfoContext(ctx, "Video prompts generated", "scenes", len(out.Scenes), "tools", len(domain.SupportedTools))
	return out, nil
}
