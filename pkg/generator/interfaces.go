package generator

import (
	"context"

	imgport "github.com/shouni/gemini-image-kit/ports"
)

// TextGenerator は役割付きメッセージから自由形式のテキストを生成します。
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// ImageGenerator は画像を生成し、保存済み画像の参照を返します。
// 成功扱いで0件の場合は domain.ErrNoImages を返します。
type ImageGenerator interface {
	GenerateImages(ctx context.Context, req ImageRequest) ([]string, error)
}

// ImageRenderer は単一画像を生成するバックエンドです。
// gemini-image-kit の GeminiGenerator が満たします。
type ImageRenderer interface {
	GenerateMangaPanel(ctx context.Context, req imgport.ImagePanelRequest) (*imgport.ImageResponse, error)
}

// AssetStore は生成画像を永続化し、参照文字列を返します。
type AssetStore interface {
	Save(ctx context.Context, name string, img imgport.ImageResponse) (string, error)
}

// ReferenceLoader は参照文字列（パス・URL・data URI）から画像を読み込みます。
type ReferenceLoader interface {
	Load(ctx context.Context, ref string) (data []byte, mimeType string, err error)
}
