package runner

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// EnhanceRequest はプロンプト強化の入力です。
type EnhanceRequest struct {
	Storyboard domain.Storyboard
	Mapping    domain.SceneCharacterMapping
}

type enhancedPrompt struct {
	SceneNumber int    `json:"sceneNumber"`
	Prompt      string `json:"prompt"`
}

// EnhanceRunner は各シーンの生成プロンプトを映画的な表現に書き換えます。
// ベストエフォートであり、どの失敗でも元のストーリーボードを返します。
type EnhanceRunner struct {
	deps Deps
}

// NewEnhanceRunner は依存関係を注入して初期化します。
func NewEnhanceRunner(deps Deps) *EnhanceRunner {
	return &EnhanceRunner{deps: deps}
}

// Run はエラーを返しません。強化に失敗した場合は警告を記録して入力をそのまま返します。
func (er *EnhanceRunner) Run(ctx context.Context, req EnhanceRequest) domain.Storyboard {
	board := req.Storyboard
	if len(board.Scenes) == 0 {
		return board
	}

	data := prompts.TemplateData{
		Scenes: prompts.BuildSceneContexts(domain.Script{}, board, req.Mapping, nil),
	}
	var payload struct {
		Prompts []enhancedPrompt `json:"prompts"`
	}
	if err := er.deps.generateJSON(ctx, "enhance", prompts.ModeJSONSystem, prompts.ModeEnhance, data, &payload); err != nil {
		slog.WarnContext(ctx, "Prompt enhancement failed, keeping original prompts", "error", err)
		return board
	}

	enhanced := make(map[int]string, len(payload.Prompts))
	for _, p := range payload.Prompts {
		if text := strings.TrimSpace(p.Prompt); text != "" {
			enhanced[p.SceneNumber] = text
		}
	}
	for _, sc := range board.Scenes {
		if _, ok := enhanced[sc.SceneNumber]; !ok {
			slog.WarnContext(ctx, "Prompt enhancement left a scene unmapped, keeping original prompts", "scene", sc.SceneNumber)
			return board
		}
	}

	slog.InfoContext(ctx, "Prompts enhanced", "scenes", len(board.Scenes))
	return board.WithPrompts(enhanced)
}
