package generator

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shouni/go-gemini-client/gemini"
	"google.golang.org/genai"
)

// GeminiConfig は Gemini クライアントの設定です。
type GeminiConfig struct {
	APIKey    string
	BaseURL   string
	TextModel string
}

// GeminiClient は genai SDK を使ってテキストを生成し、
// 画像生成コアが要求する gemini.GenerativeModel としても振る舞います。
type GeminiClient struct {
	client    *genai.Client
	backend   genai.Backend
	textModel string
}

var _ gemini.GenerativeModel = (*GeminiClient)(nil)

// NewGeminiClient は Gemini API バックエンドのクライアントを初期化します。
// BaseURL が指定されていればカスタムエンドポイントを使用します。
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return &GeminiClient{
		client:    client,
		backend:   clientConfig.Backend,
		textModel: cfg.TextModel,
	}, nil
}

// GenerateText は TextGenerator を実装します。system メッセージはシステム指示として渡します。
func (g *GeminiClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if len(contents) == 0 {
		return "", fmt.Errorf("no user message to send")
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, contents, config)
	if err != nil {
		return "", fmt.Errorf("text generation failed (model: %s): %w", g.textModel, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("text generation returned an empty response (model: %s)", g.textModel)
	}
	return text, nil
}

// IsVertexAI は Vertex AI バックエンドかどうかを返します。
func (g *GeminiClient) IsVertexAI() bool {
	return g.backend == genai.BackendVertexAI
}

// GenerateContent は単一のテキストプロンプトで生成します。
func (g *GeminiClient) GenerateContent(ctx context.Context, model string, prompt string) (*gemini.Response, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("generation failed (model: %s): %w", model, err)
	}
	return &gemini.Response{RawResponse: resp}, nil
}

// GenerateWithParts は画像パーツを含むリクエストを送ります。画像生成コアから呼ばれます。
func (g *GeminiClient) GenerateWithParts(ctx context.Context, model string, parts []*genai.Part, opts gemini.GenerateOptions) (*gemini.Response, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
		SafetySettings:     opts.SafetySettings,
	}
	if opts.AspectRatio != "" || opts.ImageSize != "" {
		config.ImageConfig = &genai.ImageConfig{
			AspectRatio: opts.AspectRatio,
			ImageSize:   opts.ImageSize,
		}
	}
	if opts.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(opts.SystemPrompt, genai.RoleUser)
	}
	if opts.Seed != nil {
		config.Seed = genai.Ptr(int32(*opts.Seed))
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, config)
	if err != nil {
		return nil, fmt.Errorf("image generation failed (model: %s): %w", model, err)
	}
	return &gemini.Response{RawResponse: resp}, nil
}

// UploadFile は File API にアップロードし、URI とファイル名を返します。
func (g *GeminiClient) UploadFile(ctx context.Context, r io.Reader, mimeType, displayName string) (string, string, error) {
	file, err := g.client.Files.Upload(ctx, r, &genai.UploadFileConfig{MIMEType: mimeType, DisplayName: displayName})
	if err != nil {
		return "", "", fmt.Errorf("file upload failed: %w", err)
	}
	return file.URI, file.Name, nil
}

// GetFile は File API 上のファイル情報を返します。
func (g *GeminiClient) GetFile(ctx context.Context, name string) (*genai.File, error) {
	return g.client.Files.Get(ctx, name, nil)
}

// DeleteFile は File API 上のファイルを削除します。
func (g *GeminiClient) DeleteFile(ctx context.Context, name string) error {
	_, err := g.client.Files.Delete(ctx, name, nil)
	return err
}
