package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/config"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/parser"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/styles"
)

// Deps は各 Runner が共有する依存関係です。
type Deps struct {
	Config    config.Config
	Prompts   prompts.PromptBuilder
	Text      generator.TextGenerator
	Images    generator.ImageGenerator
	Styles    *styles.Catalogue
	Admission *batch.Admission
}

// generateJSON はシステム・ユーザープロンプトを構築してテキスト生成を1回呼び出し、応答を out にデコードします。
func (d Deps) generateJSON(ctx context.Context, stage, systemMode, userMode string, data prompts.TemplateData, out any) error {
	system, err := d.Prompts.Build(systemMode, data)
	if err != nil {
		return fmt.Errorf("プロンプト生成に失敗: %w", err)
	}
	user, err := d.Prompts.Build(userMode, data)
	if err != nil {
		return fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	slog.InfoContext(ctx, "Calling text model", "stage", stage, "model", d.Config.GeminiModel)
	startTime := time.Now()
	raw, err := d.Text.GenerateText(ctx, generator.TextRequest{
		Messages: []generator.Message{
			{Role: generator.RoleSystem, Content: system},
			{Role: generator.RoleUser, Content: user},
		},
		Temperature: d.Config.Temperature,
		JSON:        true,
	})
	if err != nil {
		return domain.NewGenerationError(err, "%s generation failed", stage)
	}
	slog.InfoContext(ctx, "Text model responded", "stage", stage, "chars", len(raw), "duration", time.Since(startTime).Round(time.Millisecond))

	return parser.Decode(raw, out)
}

// batchOptions は Runner 共通の Admission を付けた batch.Options を返します。
func (d Deps) batchOptions(label string, policy batch.Policy) batch.Options {
	return batch.Options{Policy: policy, Admission: d.Admission, Label: label}
}

// generateOne は画像を1枚生成して先頭の参照を返します。
func (d Deps) generateOne(ctx context.Context, req generator.ImageRequest) (string, error) {
	req.Watermark = d.Config.Watermark
	refs, err := d.Images.GenerateImages(ctx, req)
	if err != nil {
		return "", err
	}
	if len(refs) == 0 {
		return "", domain.ErrNoImages
	}
	return refs[0], nil
}

func (d Deps) styleKeywords(artStyle string) string {
	if d.Styles == nil {
		return artStyle
	}
	return d.Styles.Keywords(artStyle)
}
