package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	imagekit "github.com/shouni/gemini-image-kit/generator"
	imgport "github.com/shouni/gemini-image-kit/ports"
	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

// fakeDownloader は imgport.Downloader のテスト実装です。
type fakeDownloader struct {
	hits  atomic.Int32
	delay time.Duration
	data  []byte
}

func (f *fakeDownloader) GetStream(_ context.Context, _ string) (io.ReadCloser, error) {
	f.hits.Add(1)
	time.Sleep(f.delay)
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (f *fakeDownloader) FetchStream(ctx context.Context, url string, fn func(io.Reader) error) error {
	rc, err := f.GetStream(ctx, url)
	if err != nil {
		return err
	}
	defer rc.Close()
	return fn(rc)
}

func writeAsset(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReferenceResolver_Load(t *testing.T) {
	ctx := context.Background()
	assetDir := t.TempDir()
	r := NewReferenceResolver(ReferencePolicy{
		AssetDirs:  []string{assetDir},
		TTL:        time.Minute,
		Downloader: &fakeDownloader{data: pngHeader},
	})

	t.Run("data URI", func(t *testing.T) {
		uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)
		data, mimeType, err := r.Load(ctx, uri)
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if mimeType != "image/png" || len(data) != len(pngHeader) {
			t.Errorf("mime=%s len=%d", mimeType, len(data))
		}
	})

	t.Run("アセットディレクトリ内のファイル", func(t *testing.T) {
		path := writeAsset(t, assetDir, "ref.png")
		_, mimeType, err := r.Load(ctx, path)
		if err != nil || mimeType != "image/png" {
			t.Errorf("mime=%s err=%v", mimeType, err)
		}
	})

	t.Run("不正な参照", func(t *testing.T) {
		for _, ref := range []string{"", "data:image/png,notbase64", filepath.Join(assetDir, "missing.png")} {
			if _, _, err := r.Load(ctx, ref); err == nil {
				t.Errorf("ref=%q: エラーを期待しましたが nil でした", ref)
			}
		}
	})
}

func TestReferenceResolver_RejectsOutsideReferences(t *testing.T) {
	ctx := context.Background()
	assetDir := t.TempDir()
	outside := writeAsset(t, t.TempDir(), "secret.png")
	downloader := &fakeDownloader{data: pngHeader}
	r := NewReferenceResolver(ReferencePolicy{
		AssetDirs:    []string{assetDir},
		AllowedHosts: []string{"cdn.example.com"},
		Downloader:   downloader,
	})

	rejected := []string{
		"/etc/passwd",
		outside,
		filepath.Join(assetDir, "..", filepath.Base(filepath.Dir(outside)), "secret.png"),
		"http://169.254.169.254/latest/meta-data/",
		"https://evil.example.net/a.png",
		"gs://bucket/a.png",
		"file:///etc/passwd",
	}
	for _, ref := range rejected {
		t.Run(ref, func(t *testing.T) {
			data, _, err := r.Load(ctx, ref)
			if !domain.IsKind(err, domain.KindValidation) {
				t.Fatalf("validation エラーを期待しましたが %v でした", err)
			}
			if len(data) != 0 {
				t.Errorf("拒否した参照のデータが返されました (%d bytes)", len(data))
			}
		})
	}
	if got := downloader.hits.Load(); got != 0 {
		t.Errorf("許可されていない URL でダウンロードが %d 回行われました", got)
	}

	t.Run("許可ホストはダウンロードする", func(t *testing.T) {
		_, mimeType, err := r.Load(ctx, "https://CDN.example.com/chars/aiko.png")
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if mimeType != "image/png" || downloader.hits.Load() != 1 {
			t.Errorf("mime=%s hits=%d", mimeType, downloader.hits.Load())
		}
	})
}

func TestReferenceResolver_DeduplicatesDownloads(t *testing.T) {
	downloader := &fakeDownloader{data: pngHeader, delay: 20 * time.Millisecond}
	r := NewReferenceResolver(ReferencePolicy{
		AllowedHosts: []string{"cdn.example.com"},
		TTL:          time.Minute,
		Downloader:   downloader,
	})
	const ref = "https://cdn.example.com/a.png"

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := r.Load(context.Background(), ref); err != nil {
				t.Errorf("予期しないエラー: %v", err)
			}
		}()
	}
	wg.Wait()

	if _, _, err := r.Load(context.Background(), ref); err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if got := downloader.hits.Load(); got != 1 {
		t.Errorf("ダウンロードは1回のはずですが %d 回行われました", got)
	}
}

func TestFileAssetStore_Save(t *testing.T) {
	dir := t.TempDir()
	s := NewFileAssetStore(dir)

	ref, err := s.Save(context.Background(), "character Mika/1", imgport.ImageResponse{Data: pngHeader, MimeType: "image/jpeg"})
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	base := filepath.Base(ref)
	if !strings.HasPrefix(base, "character_Mika_1_") || filepath.Ext(base) != ".jpg" {
		t.Errorf("ファイル名が不正です: %s", base)
	}
	if data, err := os.ReadFile(ref); err != nil || len(data) != len(pngHeader) {
		t.Errorf("保存内容を読み戻せません: %v", err)
	}

	if _, err := s.Save(context.Background(), "empty", imgport.ImageResponse{}); err == nil {
		t.Error("空の画像でエラーが発生しませんでした")
	}
}

type fakeRenderer struct {
	image *imgport.ImageResponse
	err   error
	calls int
	got   imgport.ImagePanelRequest
}

func (f *fakeRenderer) GenerateMangaPanel(_ context.Context, req imgport.ImagePanelRequest) (*imgport.ImageResponse, error) {
	f.calls++
	f.got = req
	return f.image, f.err
}

type memoryStore struct {
	mu    sync.Mutex
	saved []string
}

func (m *memoryStore) Save(_ context.Context, name string, _ imgport.ImageResponse) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := name + "#" + string(rune('a'+len(m.saved)))
	m.saved = append(m.saved, ref)
	return ref, nil
}

func TestImageService_GenerateImages(t *testing.T) {
	seed := int32(42)
	assetDir := t.TempDir()
	refPath := writeAsset(t, assetDir, "ref.png")
	resolver := NewReferenceResolver(ReferencePolicy{AssetDirs: []string{assetDir}, Downloader: &fakeDownloader{}})

	t.Run("画像を保存して参照を返す", func(t *testing.T) {
		renderer := &fakeRenderer{image: &imgport.ImageResponse{Data: pngHeader}}
		svc := NewImageService(renderer, resolver, &memoryStore{}, "image-model", "watermark")

		refs, err := svc.GenerateImages(context.Background(), ImageRequest{
			Prompt: "p", Size: ImageSize2K, AspectRatio: "16:9", ReferenceImage: refPath, Seed: &seed, Name: "scene_01",
		})
		if err != nil {
			t.Fatalf("予期しないエラー: %v", err)
		}
		if len(refs) != 1 || refs[0] != "scene_01#a" {
			t.Errorf("参照が不正です: %v", refs)
		}
		got := renderer.got
		if got.Model != "image-model" || got.NegativePrompt != "watermark" || got.Image.ReferenceURL != refPath || got.ImageSize != ImageSize2K {
			t.Errorf("レンダラへの要求が不正です: %+v", got)
		}
		if got.Seed == nil || *got.Seed != 42 {
			t.Errorf("シードが渡されていません: %v", got.Seed)
		}
	})

	t.Run("透かし許可時はネガティブプロンプトを付けない", func(t *testing.T) {
		renderer := &fakeRenderer{image: &imgport.ImageResponse{Data: pngHeader}}
		svc := NewImageService(renderer, resolver, &memoryStore{}, "m", "watermark")
		if _, err := svc.GenerateImages(context.Background(), ImageRequest{Prompt: "p", Watermark: true}); err != nil {
			t.Fatal(err)
		}
		if renderer.got.NegativePrompt != "" {
			t.Errorf("ネガティブプロンプトが設定されています: %q", renderer.got.NegativePrompt)
		}
	})

	t.Run("許可されない参照では生成を呼ばない", func(t *testing.T) {
		renderer := &fakeRenderer{image: &imgport.ImageResponse{Data: pngHeader}}
		svc := NewImageService(renderer, resolver, &memoryStore{}, "m", "")
		_, err := svc.GenerateImages(context.Background(), ImageRequest{Prompt: "p", ReferenceImage: "/etc/passwd"})
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("validation エラーを期待しましたが %v", err)
		}
		if renderer.calls != 0 {
			t.Errorf("生成が %d 回呼ばれました", renderer.calls)
		}
	})

	t.Run("0枚は失敗扱い", func(t *testing.T) {
		svc := NewImageService(&fakeRenderer{}, nil, &memoryStore{}, "m", "")
		_, err := svc.GenerateImages(context.Background(), ImageRequest{Prompt: "p"})
		if !errors.Is(err, domain.ErrNoImages) {
			t.Errorf("ErrNoImages を期待しましたが %v", err)
		}
	})

	t.Run("レンダラのエラーは generation 種別", func(t *testing.T) {
		svc := NewImageService(&fakeRenderer{err: errors.New("quota exceeded")}, nil, &memoryStore{}, "m", "")
		_, err := svc.GenerateImages(context.Background(), ImageRequest{Prompt: "p", Name: "x"})
		if domain.KindOf(err) != domain.KindGeneration || !strings.Contains(err.Error(), "quota exceeded") {
			t.Errorf("generation エラーを期待しましたが %v", err)
		}
	})
}

// fakeModel は gemini.GenerativeModel のテスト実装です。
type fakeModel struct {
	mu    sync.Mutex
	parts []*genai.Part
	opts  gemini.GenerateOptions
	model string
}

func (f *fakeModel) IsVertexAI() bool { return false }

func (f *fakeModel) UploadFile(_ context.Context, r io.Reader, _, _ string) (string, string, error) {
	_, err := io.ReadAll(r)
	return "https://files.example/ref", "files/ref", err
}

func (f *fakeModel) DeleteFile(context.Context, string) error { return nil }

func (f *fakeModel) GetFile(_ context.Context, name string) (*genai.File, error) {
	return &genai.File{Name: name}, nil
}

func (f *fakeModel) GenerateContent(context.Context, string, string) (*gemini.Response, error) {
	return nil, errors.New("not used")
}

func (f *fakeModel) GenerateWithParts(_ context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	f.mu.Lock()
	f.model, f.parts, f.opts = model, parts, opts
	f.mu.Unlock()
	return &gemini.Response{RawResponse: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{Parts: []*genai.Part{
				{InlineData: &genai.Blob{MIMEType: "image/png", Data: pngHeader}},
			}},
		}},
	}}, nil
}

func TestImageService_WithImageKit(t *testing.T) {
	assetDir := t.TempDir()
	refPath := writeAsset(t, assetDir, "aiko.png")
	resolver := NewReferenceResolver(ReferencePolicy{AssetDirs: []string{assetDir}, Downloader: &fakeDownloader{}})

	model := &fakeModel{}
	core, err := imagekit.NewGeminiImageCore(model, resolver, resolver, nil, time.Minute, false)
	if err != nil {
		t.Fatalf("NewGeminiImageCore() error = %v", err)
	}
	renderer, err := imagekit.NewGeminiGenerator(core)
	if err != nil {
		t.Fatalf("NewGeminiGenerator() error = %v", err)
	}

	outDir := t.TempDir()
	svc := NewImageService(renderer, resolver, NewFileAssetStore(outDir), "image-model", "text, watermark")
	refs, err := svc.GenerateImages(context.Background(), ImageRequest{
		Prompt: "a girl under the rain", Size: ImageSize1K, AspectRatio: "16:9", ReferenceImage: refPath, Name: "scene_01",
	})
	if err != nil {
		t.Fatalf("GenerateImages() error = %v", err)
	}
	if len(refs) != 1 || filepath.Dir(refs[0]) != outDir {
		t.Fatalf("保存先が不正です: %v", refs)
	}

	if model.model != "image-model" || model.opts.AspectRatio != "16:9" || model.opts.ImageSize != ImageSize1K {
		t.Errorf("生成オプションが不正です: model=%s opts=%+v", model.model, model.opts)
	}
	if len(model.parts) != 2 {
		t.Fatalf("parts = %d, want 参照画像とプロンプトの2つ", len(model.parts))
	}
	if model.parts[0].InlineData == nil || !bytes.Equal(model.parts[0].InlineData.Data, pngHeader) {
		t.Error("参照画像が先頭のパートとして渡されていません")
	}
	if text := model.parts[1].Text; !strings.Contains(text, "a girl under the rain") || !strings.Contains(text, "watermark") {
		t.Errorf("プロンプトパートが不正です: %q", text)
	}

	t.Run("アセット外の参照は生成前に拒否", func(t *testing.T) {
		model.parts = nil
		_, err := svc.GenerateImages(context.Background(), ImageRequest{Prompt: "p", ReferenceImage: "/etc/passwd"})
		if !domain.IsKind(err, domain.KindValidation) {
			t.Errorf("validation エラーを期待しましたが %v", err)
		}
		if model.parts != nil {
			t.Error("拒否した参照で生成が呼ばれました")
		}
	})
}
