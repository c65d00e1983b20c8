package publisher

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/shouni/go-utils/urlpath"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
)

const (
	overallStyleName = "overall_style.txt"
	markdownName     = "storyboard.md"
	lockFileName     = ".export.lock"
)

// Package は書き出し対象の成果物です。Script は Markdown の見出し用で省略できます。
type Package struct {
	Script       *domain.Script
	Keyframes    domain.Keyframes
	VideoPrompts domain.VideoPrompts
}

// PackageFromRun は実行結果から書き出し対象を取り出します。
// キーフレームと動画プロンプトが揃っていなければ validation エラーです。
func PackageFromRun(run domain.Run) (Package, error) {
	if len(run.Keyframes) == 0 || run.VideoPrompts == nil {
		return Package{}, domain.NewValidationError("run %s has no keyframes or video prompts to export", run.ID)
	}
	return Package{Script: run.Script, Keyframes: run.Keyframes, VideoPrompts: *run.VideoPrompts}, nil
}

// File は書き出す1ファイル分のデータです。
type File struct {
	Name        string
	Data        []byte
	ContentType string
}

// ExportResult はディレクトリへの書き出し結果です。
type ExportResult struct {
	Dir   string
	Files []string
}

// Exporter はキーフレーム画像と動画プロンプトを配布用の形式にまとめます。
type Exporter struct {
	images generator.ReferenceLoader
	writer OutputWriter
}

// NewExporter は画像参照の読み込み元と書き出し先で Exporter を初期化します。writer が nil ならローカルに書き出します。
func NewExporter(images generator.ReferenceLoader, writer OutputWriter) *Exporter {
	if writer == nil {
		writer = LocalWriter{}
	}
	return &Exporter{images: images, writer: writer}
}

// Files はシーンごとの画像とテキスト、全体スタイル、Markdown の一覧を組み立てます。
func (e *Exporter) Files(ctx context.Context, pkg Package) ([]File, error) {
	if len(pkg.Keyframes) == 0 {
		return nil, domain.NewValidationError("no keyframes to export")
	}

	keyframes := pkg.Keyframes.Sorted()
	files := make([]File, 0, len(keyframes)*2+2)
	imageNames := make(map[int]string, len(keyframes))

	for _, kf := range keyframes {
		base := fmt.Sprintf("scene_%02d", kf.SceneNumber)
		if kf.Image != "" {
			data, mimeType, err := e.images.Load(ctx, kf.Image)
			if err != nil {
				return nil, fmt.Errorf("scene %d の画像読み込みに失敗しました: %w", kf.SceneNumber, err)
			}
			name := base + generator.ExtensionFor(mimeType)
			imageNames[kf.SceneNumber] = name
			files = append(files, File{Name: name, Data: data, ContentType: mimeType})
		}

		vp, _ := pkg.VideoPrompts.Find(kf.SceneNumber)
		files = append(files, File{
			Name:        base + ".txt",
			Data:        []byte(sceneText(kf, vp)),
			ContentType: "text/plain; charset=utf-8",
		})
	}

	files = append(files,
		File{Name: overallStyleName, Data: []byte(overallStyleText(pkg.VideoPrompts.OverallStyle)), ContentType: "text/plain; charset=utf-8"},
		File{Name: markdownName, Data: []byte(BuildMarkdown(pkg, imageNames)), ContentType: "text/markdown; charset=utf-8"},
	)
	return files, nil
}

// WriteZip は Files の内容を ZIP として w に書き出します。
func (e *Exporter) WriteZip(ctx context.Context, w io.Writer, pkg Package) error {
	files, err := e.Files(ctx, pkg)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	modified := time.Now()
	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return fmt.Errorf("zip エントリの作成に失敗しました (%s): %w", f.Name, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("zip エントリの書き込みに失敗しました (%s): %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zip の書き出しに失敗しました: %w", err)
	}
	slog.InfoContext(ctx, "Export archive written", "files", len(files))
	return nil
}

// ExportToDir は Files を dir に書き出します。同じディレクトリへの同時書き出しはファイルロックで排他します。
func (e *Exporter) ExportToDir(ctx context.Context, dir string, pkg Package) (ExportResult, error) {
	files, err := e.Files(ctx, pkg)
	if err != nil {
		return ExportResult{}, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ExportResult{}, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	ok, err := lock.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		return ExportResult{}, fmt.Errorf("acquire export lock: %w", err)
	}
	if !ok {
		return ExportResult{}, fmt.Errorf("another export into %s is in progress", dir)
	}
	defer func() { _ = lock.Unlock() }()

	result := ExportResult{Dir: dir}
	for _, f := range files {
		path, err := urlpath.ResolvePath(dir, f.Name)
		if err != nil {
			return result, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
		}
		if err := e.writer.Write(ctx, path, bytes.NewReader(f.Data), f.ContentType); err != nil {
			return result, err
		}
		result.Files = append(result.Files, path)
	}
	slog.InfoContext(ctx, "Export written", "dir", dir, "files", len(result.Files))
	return result, nil
}

func sceneText(kf domain.KeyframeScene, vp domain.VideoPromptScene) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Scene %d\n", kf.SceneNumber)
	if vp.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", vp.Description)
	}
	fmt.Fprintf(&sb, "Camera movement: %s\n", vp.CameraMovement)
	fmt.Fprintf(&sb, "Duration: %gs\n", vp.Duration)
	fmt.Fprintf(&sb, "Motion intensity: %s\n", vp.MotionIntensity)
	fmt.Fprintf(&sb, "Audio: %s\n", vp.Audio)
	sb.WriteString("\n")
	for _, tool := range domain.SupportedTools {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", strings.ToUpper(string(tool)), vp.Prompts[tool])
	}
	fmt.Fprintf(&sb, "[KEYFRAME PROMPT]\n%s\n", kf.Prompt)
	return sb.String()
}

func overallStyleText(s domain.OverallStyle) string {
	return fmt.Sprintf("Visual style: %s\nColor grade: %s\nPacing: %s\nMusic: %s\n",
		s.VisualStyle, s.ColorGrade, s.Pacing, s.Music)
}
