package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	imgport "github.com/shouni/gemini-image-kit/ports"
	"github.com/shouni/go-http-kit/httpkit"
	"golang.org/x/sync/singleflight"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	defaultReferenceTTL   = 5 * time.Minute
	cacheCleanupInterval  = 15 * time.Minute
	maxReferenceImageSize = 20 << 20
	// DefaultHTTPTimeout は参照画像のダウンロードに使う HTTP クライアントのタイムアウトです。
	DefaultHTTPTimeout = 30 * time.Second
)

type referenceImage struct {
	data     []byte
	mimeType string
}

// ReferencePolicy は読み込みを許可する参照の範囲です。
// data URI は常に許可します。ローカルパスは AssetDirs 配下のみ、
// http(s) URL は AllowedHosts に含まれるホストのみ読み込みます。
type ReferencePolicy struct {
	AssetDirs    []string
	AllowedHosts []string
	TTL          time.Duration
	// Downloader は nil なら httpkit のクライアントを使います。
	Downloader imgport.Downloader
}

// ReferenceResolver は参照画像を読み込み、一定時間キャッシュします。
// 同じ参照への同時要求は singleflight で1回の読み込みにまとめます。
// 画像生成コアの Downloader と ContentReader を兼ねるため、コア経由の取得にも同じ制限が掛かります。
type ReferenceResolver struct {
	downloader imgport.Downloader
	assetDirs  []string
	hosts      []string
	cache      *cache.Cache
	group      singleflight.Group
}

var (
	_ imgport.Downloader    = (*ReferenceResolver)(nil)
	_ imgport.ContentReader = (*ReferenceResolver)(nil)
)

// NewReferenceResolver は ReferenceResolver を初期化します。
func NewReferenceResolver(policy ReferencePolicy) *ReferenceResolver {
	downloader := policy.Downloader
	if downloader == nil {
		downloader = httpkit.New(DefaultHTTPTimeout)
	}
	ttl := policy.TTL
	if ttl <= 0 {
		ttl = defaultReferenceTTL
	}

	dirs := make([]string, 0, len(policy.AssetDirs))
	for _, d := range policy.AssetDirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			slog.Warn("Ignoring asset directory", "dir", d, "error", err)
			continue
		}
		dirs = append(dirs, abs)
	}
	hosts := make([]string, 0, len(policy.AllowedHosts))
	for _, h := range policy.AllowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}

	return &ReferenceResolver{
		downloader: downloader,
		assetDirs:  dirs,
		hosts:      hosts,
		cache:      cache.New(ttl, cacheCleanupInterval),
	}
}

// Load は参照文字列から画像を読み込みます。許可されていない参照は validation エラーです。
func (r *ReferenceResolver) Load(ctx context.Context, ref string) ([]byte, string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, "", domain.NewValidationError("reference is empty")
	}
	if err := r.Allowed(ref); err != nil {
		return nil, "", err
	}

	if v, ok := r.cache.Get(ref); ok {
		img := v.(referenceImage)
		return img.data, img.mimeType, nil
	}

	val, err, shared := r.group.Do(ref, func() (interface{}, error) {
		// 待機中に他のゴルーチンが読み込みを終えている可能性があるため再確認
		if v, ok := r.cache.Get(ref); ok {
			return v, nil
		}
		img, err := r.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		r.cache.SetDefault(ref, img)
		return img, nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to load reference image %s: %w", shortRef(ref), err)
	}

	img, ok := val.(referenceImage)
	if !ok {
		return nil, "", fmt.Errorf("unexpected return type from singleflight: %T", val)
	}
	if shared {
		slog.Debug("Reference image load shared", "ref", shortRef(ref))
	}
	return img.data, img.mimeType, nil
}

// Allowed は参照が読み込み可能な範囲にあるかを検証します。
func (r *ReferenceResolver) Allowed(ref string) error {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		u, err := url.Parse(ref)
		if err != nil {
			return domain.NewValidationError("invalid reference URL: %v", err)
		}
		if !slices.Contains(r.hosts, strings.ToLower(u.Hostname())) {
			return domain.NewValidationError("reference host %q is not allowed", u.Hostname())
		}
		return nil
	case strings.Contains(ref, "://"):
		return domain.NewValidationError("unsupported reference scheme: %s", ref)
	default:
		_, err := r.localPath(ref)
		return err
	}
}

// localPath は ref を絶対パスに解決し、アセットディレクトリ配下であることを確かめます。
func (r *ReferenceResolver) localPath(ref string) (string, error) {
	abs, err := filepath.Abs(ref)
	if err != nil {
		return "", domain.NewValidationError("invalid reference path: %v", err)
	}
	for _, dir := range r.assetDirs {
		rel, err := filepath.Rel(dir, abs)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", domain.NewValidationError("reference path %q is outside the asset directory", ref)
}

// GetStream は imgport.Downloader を実装します。読み込んだ画像はキャッシュを経由します。
func (r *ReferenceResolver) GetStream(ctx context.Context, ref string) (io.ReadCloser, error) {
	data, _, err := r.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// FetchStream は imgport.Downloader を実装します。
func (r *ReferenceResolver) FetchStream(ctx context.Context, ref string, fn func(io.Reader) error) error {
	data, _, err := r.Load(ctx, ref)
	if err != nil {
		return err
	}
	return fn(bytes.NewReader(data))
}

// Open は imgport.ContentReader を実装します。クラウドストレージの参照は扱いません。
func (r *ReferenceResolver) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	return r.GetStream(ctx, uri)
}

func (r *ReferenceResolver) fetch(ctx context.Context, ref string) (referenceImage, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return r.download(ctx, ref)
	default:
		path, err := r.localPath(ref)
		if err != nil {
			return referenceImage{}, err
		}
		return readLocal(path)
	}
}

func (r *ReferenceResolver) download(ctx context.Context, rawURL string) (referenceImage, error) {
	rc, err := r.downloader.GetStream(ctx, rawURL)
	if err != nil {
		return referenceImage{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxReferenceImageSize+1))
	if err != nil {
		return referenceImage{}, err
	}
	if len(data) > maxReferenceImageSize {
		return referenceImage{}, fmt.Errorf("image exceeds %d bytes", maxReferenceImageSize)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(urlPath(rawURL))))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}
	return referenceImage{data: data, mimeType: mimeType}, nil
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Path
}

func readLocal(path string) (referenceImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return referenceImage{}, err
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return referenceImage{data: data, mimeType: mimeType}, nil
}

// decodeDataURI は "data:image/png;base64,..." 形式を復号します。
func decodeDataURI(uri string) (referenceImage, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return referenceImage{}, fmt.Errorf("malformed data URI")
	}
	mimeType, params, _ := strings.Cut(header, ";")
	if params != "base64" {
		return referenceImage{}, fmt.Errorf("only base64 data URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return referenceImage{}, fmt.Errorf("invalid base64 payload: %w", err)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return referenceImage{data: data, mimeType: mimeType}, nil
}

func shortRef(ref string) string {
	if strings.HasPrefix(ref, "data:") {
		return "data URI"
	}
	return ref
}
