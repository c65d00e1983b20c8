package publisher

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shouni/go-remote-io/remoteio"
)

// OutputWriter はデータを保存先に書き出すためのインターフェースです。
// go-remote-io の書き出し先（GCS・S3）もそのまま渡せます。
type OutputWriter = remoteio.OutputWriter

var _ OutputWriter = LocalWriter{}

// LocalWriter はローカルファイルシステムに書き出す OutputWriter です。
type LocalWriter struct{}

// Write は親ディレクトリを作成してからファイルを書き出します。
func (LocalWriter) Write(ctx context.Context, path string, r io.Reader, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ファイルの作成に失敗しました (path: %s): %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return fmt.Errorf("ファイルの書き込みに失敗しました (path: %s): %w", path, err)
	}
	return f.Close()
}
