package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	imgport "github.com/shouni/gemini-image-kit/ports"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// ImageService は ImageRenderer で生成した画像を AssetStore に保存し、参照を返します。
// 参照画像は生成前に ReferenceLoader で検証し、許可されない参照では生成を呼びません。
type ImageService struct {
	renderer       ImageRenderer
	references     ReferenceLoader
	store          AssetStore
	model          string
	negativePrompt string
}

// NewImageService は ImageService を初期化します。references が nil なら参照の事前検証を省きます。
func NewImageService(renderer ImageRenderer, references ReferenceLoader, store AssetStore, model, negativePrompt string) *ImageService {
	return &ImageService{
		renderer:       renderer,
		references:     references,
		store:          store,
		model:          model,
		negativePrompt: negativePrompt,
	}
}

// GenerateImages は ImageGenerator を実装します。
func (s *ImageService) GenerateImages(ctx context.Context, req ImageRequest) ([]string, error) {
	if req.ReferenceImage != "" && s.references != nil {
		// 読み込み結果はキャッシュされ、生成コアからの取得でも再利用されます
		if _, _, err := s.references.Load(ctx, req.ReferenceImage); err != nil {
			if domain.IsKind(err, domain.KindValidation) {
				return nil, err
			}
			return nil, domain.NewGenerationError(err, "reference image unavailable for %s", req.Name)
		}
	}

	genReq := imgport.ImagePanelRequest{
		GenerationOptions: imgport.GenerationOptions{
			Model:       s.model,
			Prompt:      req.Prompt,
			AspectRatio: req.AspectRatio,
			ImageSize:   req.Size,
		},
		Image: imgport.ImageURI{ReferenceURL: req.ReferenceImage},
	}
	if !req.Watermark {
		genReq.NegativePrompt = s.negativePrompt
	}
	if req.Seed != nil {
		seed := int64(*req.Seed)
		genReq.Seed = &seed
	}

	logger := slog.With("name", req.Name, "size", req.Size, "has_reference", req.ReferenceImage != "")
	startTime := time.Now()

	img, err := s.renderer.GenerateMangaPanel(ctx, genReq)
	if err != nil {
		return nil, domain.NewGenerationError(err, "image generation failed for %s", req.Name)
	}
	if img == nil || len(img.Data) == 0 {
		return nil, domain.ErrNoImages
	}

	ref, err := s.store.Save(ctx, req.Name, *img)
	if err != nil {
		return nil, fmt.Errorf("failed to store generated image for %s: %w", req.Name, err)
	}

	logger.Info("Image generation completed", "ref", ref, "duration", time.Since(startTime).Round(time.Millisecond))
	return []string{ref}, nil
}
