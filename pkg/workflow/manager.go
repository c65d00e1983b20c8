package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/patrickmn/go-cache"
	imagekit "github.com/shouni/gemini-image-kit/generator"
	"github.com/shouni/go-gemini-client/gemini"

	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/config"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/runner"
	"github.com/shouni/go-storyboard-kit/pkg/styles"
)

// Manager は、ワークフローの各工程を担う Runner 群を構築・管理します。
// Runner は構築時点の設定を値として受け取るため、Reconfigure 後に構築したものから新しい設定が効きます。
type Manager struct {
	mu         sync.RWMutex
	cfg        config.Config
	admission  *batch.Admission
	text       generator.TextGenerator
	images     generator.ImageGenerator
	references generator.ReferenceLoader
	resolver   *generator.ReferenceResolver
	prompts    prompts.PromptBuilder
	styles     *styles.Catalogue

	// 自前で構築した Gemini 由来の生成器かどうか
	ownsText   bool
	ownsImages bool
	apiKey     string
	baseURL    string
	assetDir   string
}

// New は、設定を基に新しい Manager を初期化します。
func New(ctx context.Context, args ManagerArgs) (*Manager, error) {
	m := &Manager{
		cfg:        args.Config,
		admission:  batch.NewAdmission(args.Config.AdmissionRate, args.Config.AdmissionBurst),
		text:       args.Text,
		images:     args.Images,
		references: args.References,
		apiKey:     args.APIKey,
		baseURL:    args.BaseURL,
		assetDir:   args.AssetDir,
	}
	if m.assetDir == "" {
		m.assetDir = defaultAssetDir
	}
	m.resolver = generator.NewReferenceResolver(generator.ReferencePolicy{
		AssetDirs:    []string{m.assetDir},
		AllowedHosts: args.ReferenceHosts,
		TTL:          defaultReferenceTTL,
		Downloader:   args.HTTPClient,
	})
	if m.references == nil {
		m.references = m.resolver
	}

	m.ownsText = m.text == nil
	m.ownsImages = m.images == nil
	if m.ownsText || m.ownsImages {
		if err := m.initializeGemini(ctx); err != nil {
			return nil, err
		}
	}

	pb, err := initializePromptBuilder(args.Prompts)
	if err != nil {
		return nil, err
	}
	m.prompts = pb

	catalogue, err := initializeStyles(args.Styles)
	if err != nil {
		return nil, err
	}
	m.styles = catalogue

	return m, nil
}

// initializeGemini は Gemini クライアントを構築し、未指定の生成器を埋めます。
func (m *Manager) initializeGemini(ctx context.Context) error {
	client, err := generator.NewGeminiClient(ctx, generator.GeminiConfig{
		APIKey:    m.apiKey,
		BaseURL:   m.baseURL,
		TextModel: m.cfg.GeminiModel,
	})
	if err != nil {
		return fmt.Errorf("Gemini クライアントの初期化に失敗しました: %w", err)
	}
	if m.ownsText {
		m.text = client
	}
	if m.ownsImages {
		core, err := initializeCore(client, m.resolver)
		if err != nil {
			return fmt.Errorf("画像生成エンジンの初期化に失敗しました: %w", err)
		}
		renderer, err := imagekit.NewGeminiGenerator(core)
		if err != nil {
			return fmt.Errorf("画像生成エンジンの初期化に失敗しました: %w", err)
		}
		store := generator.NewFileAssetStore(filepath.Clean(m.assetDir))
		m.images = generator.NewImageService(renderer, m.resolver, store, m.cfg.ImageModel, prompts.NegativePrompt)
	}
	slog.InfoContext(ctx, "Gemini client initialized", "text_model", m.cfg.GeminiModel, "image_model", m.cfg.ImageModel)
	return nil
}

// initializeCore は参照画像の取得を ReferenceResolver に任せた GeminiImageCore を初期化します。
// File API の URI はコア側のキャッシュで再利用されます。
func initializeCore(aiClient gemini.GenerativeModel, resolver *generator.ReferenceResolver) (*imagekit.GeminiImageCore, error) {
	imgCache := cache.New(defaultCacheExpiration, cacheCleanupInterval)
	core, err := imagekit.NewGeminiImageCore(
		aiClient,
		resolver,
		resolver,
		imgCache,
		defaultCacheExpiration,
		false,
	)
	if err != nil {
		return nil, fmt.Errorf("GeminiImageCore の初期化に失敗しました: %w", err)
	}
	return core, nil
}

// initializePromptBuilder は PromptBuilder を初期化します。
// 引数として既存のビルダーが渡された場合はそれを返し、nil の場合は新規作成します。
func initializePromptBuilder(pb prompts.PromptBuilder) (prompts.PromptBuilder, error) {
	if pb != nil {
		return pb, nil
	}
	builder, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("TextPromptBuilder の新規作成に失敗しました: %w", err)
	}
	return builder, nil
}

func initializeStyles(c *styles.Catalogue) (*styles.Catalogue, error) {
	if c != nil {
		return c, nil
	}
	catalogue, err := styles.Default()
	if err != nil {
		return nil, fmt.Errorf("画風カタログの読み込みに失敗しました: %w", err)
	}
	return catalogue, nil
}

// Reconfigure は設定を差し替えます。Admission は新しいレートで作り直し、
// 自前の Gemini クライアントはモデル名が変わった場合に再構築します。
func (m *Manager) Reconfigure(ctx context.Context, cfg config.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	modelsChanged := cfg.GeminiModel != m.cfg.GeminiModel || cfg.ImageModel != m.cfg.ImageModel
	prev := m.cfg
	m.cfg = cfg
	if (m.ownsText || m.ownsImages) && modelsChanged {
		if err := m.initializeGemini(ctx); err != nil {
			m.cfg = prev
			return err
		}
	}
	m.admission = batch.NewAdmission(cfg.AdmissionRate, cfg.AdmissionBurst)
	slog.InfoContext(ctx, "Workflow reconfigured", "batch_size", cfg.BatchSize, "admission_rate", cfg.AdmissionRate)
	return nil
}

// Config は現在の設定を返します。
func (m *Manager) Config() config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Styles は画風カタログを返します。
func (m *Manager) Styles() *styles.Catalogue {
	return m.styles
}

// References は画像参照の読み込みに使うローダーを返します。
func (m *Manager) References() generator.ReferenceLoader {
	return m.references
}

// AssetDir は生成画像の保存先です。
func (m *Manager) AssetDir() string {
	return m.assetDir
}

func (m *Manager) deps() runner.Deps {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return runner.Deps{
		Config:    m.cfg,
		Prompts:   m.prompts,
		Text:      m.text,
		Images:    m.images,
		Styles:    m.styles,
		Admission: m.admission,
	}
}
