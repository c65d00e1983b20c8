package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/styles"
)

// PreviewRequest は画風プレビュー生成の入力です。
type PreviewRequest struct {
	Prompt string   `json:"prompt"`
	Styles []string `json:"styles"`
}

// PreviewItem は画風1件分の結果です。Image と Error のどちらか一方が入ります。
type PreviewItem struct {
	Style string `json:"style"`
	Image string `json:"image,omitempty"`
	Error string `json:"error,omitempty"`
}

// PreviewResult は部分的な失敗を許容した集計結果です。
type PreviewResult struct {
	Items     []PreviewItem `json:"items"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
}

// PreviewRunner は同じ主題を複数の画風で描き分けます。
type PreviewRunner struct {
	deps Deps
}

// NewPreviewRunner は依存関係を注入して初期化します。
func NewPreviewRunner(deps Deps) *PreviewRunner {
	return &PreviewRunner{deps: deps}
}

// Run は画風ごとに1枚ずつバッチで生成します。個々の失敗は結果に記録し、全体は失敗にしません。
func (pr *PreviewRunner) Run(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	subject := strings.TrimSpace(req.Prompt)
	if subject == "" {
		return PreviewResult{}, domain.NewValidationError("prompt is required")
	}
	if len(req.Styles) == 0 {
		return PreviewResult{}, domain.NewValidationError("at least one style is required")
	}

	out := PreviewResult{Items: make([]PreviewItem, len(req.Styles))}
	var tasks []batch.Task[string]
	var slots []int
	for i, name := range req.Styles {
		out.Items[i].Style = name
		style, ok := pr.lookup(name)
		if !ok {
			out.Items[i].Error = fmt.Sprintf("unknown style %q", name)
			out.Failed++
			continue
		}
		slots = append(slots, i)
		tasks = append(tasks, func(ctx context.Context) (string, error) {
			return pr.deps.generateOne(ctx, generator.ImageRequest{
				Prompt:      prompts.StylePreviewPrompt(subject, style.Keywords),
				Size:        generator.ImageSize1K,
				AspectRatio: pr.deps.Config.DefaultAspectRatio,
				Name:        "preview_" + style.Name,
			})
		})
	}

	policy := batch.Batched(pr.deps.Config.BatchSize, pr.deps.Config.BatchCooldown)
	results := batch.Run(ctx, pr.deps.batchOptions("style-previews", policy), tasks)
	for j, r := range results {
		item := &out.Items[slots[j]]
		if r.Err != nil {
			item.Error = r.Err.Error()
			out.Failed++
			continue
		}
		item.Image = r.Value
		out.Succeeded++
	}
	return out, nil
}

func (pr *PreviewRunner) lookup(name string) (styles.Style, bool) {
	if pr.deps.Styles == nil {
		return styles.Style{}, false
	}
	return pr.deps.Styles.Lookup(name)
}
