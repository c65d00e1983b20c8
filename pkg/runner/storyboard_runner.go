package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// StoryboardRequest は絵コンテ生成の入力です。
type StoryboardRequest struct {
	Script      domain.Script `json:"script"`
	ArtStyle    string        `json:"artStyle"`
	AspectRatio string        `json:"aspectRatio,omitempty"`
}

// StoryboardRunner は台本からシーンごとのショット設計を生成します。
type StoryboardRunner struct {
	deps Deps
}

// NewStoryboardRunner は依存関係を注入して初期化します。
func NewStoryboardRunner(deps Deps) *StoryboardRunner {
	return &StoryboardRunner{deps: deps}
}

// Run は1回のテキスト生成で全シーン分の StoryboardScene を生成します。
// 呼び出しには StoryboardTimeout の制限時間があり、超過すると domain.ErrTimeout を返します。
func (r *StoryboardRunner) Run(ctx context.Context, req StoryboardRequest) (domain.Storyboard, error) {
	if len(req.Script.Scenes) == 0 {
		return domain.Storyboard{}, domain.NewValidationError("script has no scenes")
	}
	artStyle := strings.TrimSpace(req.ArtStyle)
	if artStyle == "" {
		return domain.Storyboard{}, domain.NewValidationError("artStyle is required")
	}
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = r.deps.Config.DefaultAspectRatio
	}

	data := prompts.TemplateData{
		Script:        req.Script,
		ArtStyle:      artStyle,
		StyleKeywords: r.deps.styleKeywords(artStyle),
		AspectRatio:   aspect,
	}

	callCtx := ctx
	timeout := r.deps.Config.StoryboardTimeout
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var payload struct {
		Scenes []domain.StoryboardScene `json:"scenes"`
	}
	if err := r.deps.generateJSON(callCtx, "storyboard", prompts.ModeJSONSystem, prompts.ModeStoryboard, data, &payload); err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			slog.WarnContext(ctx, "StoryboardRunner: timed out", "timeout", timeout)
			return domain.Storyboard{}, fmt.Errorf("storyboard generation exceeded %s: %w", timeout, domain.ErrTimeout)
		}
		return domain.Storyboard{}, err
	}

	board := domain.Storyboard{
		ArtStyle:    artStyle,
		AspectRatio: aspect,
		Scenes:      fillSceneNumbers(payload.Scenes, req.Script),
	}
	if err := board.Validate(req.Script); err != nil {
		return domain.Storyboard{}, err
	}

	slog.InfoContext(ctx, "StoryboardRunner: storyboard generated", "scenes", len(board.Scenes), "aspect_ratio", aspect)
	return board, nil
}

// fillSceneNumbers は番号が省略されたエントリに、数が一致する場合に限り台本の番号を位置で補います。
func fillSceneNumbers(scenes []domain.StoryboardScene, script domain.Script) []domain.StoryboardScene {
	if len(scenes) != len(script.Scenes) {
		return scenes
	}
	out := make([]domain.StoryboardScene, len(scenes))
	for i, sc := range scenes {
		if sc.SceneNumber == 0 {
			sc.SceneNumber = script.Scenes[i].SceneNumber
		}
		out[i] = sc
	}
	return out
}
