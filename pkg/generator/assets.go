package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	imgport "github.com/shouni/gemini-image-kit/ports"
	"github.com/shouni/go-utils/urlpath"
)

// fileNameSanitizer はファイル名として使用できない文字を置換します。
var fileNameSanitizer = strings.NewReplacer(
	"/", "_",
	`\`, "_",
	":", "_",
	"*", "_",
	"?", "_",
	`"`, "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "_",
)

// FileAssetStore は生成画像をローカルディレクトリに保存します。
type FileAssetStore struct {
	baseDir string
}

// NewFileAssetStore は baseDir 配下に画像を保存する FileAssetStore を生成します。
func NewFileAssetStore(baseDir string) *FileAssetStore {
	return &FileAssetStore{baseDir: baseDir}
}

// Save は画像を "<name>_<uuid><ext>" として保存し、そのパスを参照として返します。
func (s *FileAssetStore) Save(_ context.Context, name string, img imgport.ImageResponse) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("画像データが空です")
	}

	prefix := fileNameSanitizer.Replace(strings.TrimSpace(name))
	if prefix == "" {
		prefix = "image"
	}
	fileName := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString()[:8], getPreferredExtension(img.MimeType))

	finalPath, err := urlpath.ResolvePath(s.baseDir, fileName)
	if err != nil {
		return "", fmt.Errorf("画像保存パスの生成に失敗しました (name: %s): %w", fileName, err)
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", fmt.Errorf("画像保存ディレクトリの作成に失敗しました: %w", err)
	}
	if err := os.WriteFile(finalPath, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("画像の保存に失敗しました (path: %s): %w", finalPath, err)
	}
	return finalPath, nil
}

func getPreferredExtension(mimeType string) string {
	preferred := map[string]string{"image/png": ".png", "image/jpeg": ".jpg", "image/webp": ".webp"}
	if ext, ok := preferred[mimeType]; ok {
		return ext
	}
	return ".png"
}

// ExtensionFor は MIME タイプに対応する拡張子を返します。
func ExtensionFor(mimeType string) string {
	return getPreferredExtension(mimeType)
}
