package config

import (
	"time"
)

// デフォルト値の定義
const (
	DefaultGeminiModel        = "gemini-3-flash-preview"
	DefaultImageModel         = "gemini-3-pro-image-preview"
	DefaultTemperature        = 0.8
	DefaultBatchSize          = 3
	DefaultBatchCooldown      = 1500 * time.Millisecond
	DefaultAdmissionRate      = 1.0
	DefaultAdmissionBurst     = 3
	DefaultStoryboardTimeout  = 120 * time.Second
	DefaultKeyframeFanoutSize = 0
)

// Config は各 Runner を動作させるための基本設定です。
type Config struct {
	// --- AI Model Settings ---
	GeminiModel string
	ImageModel  string
	Temperature float32

	// --- Fan-out Settings ---
	BatchSize     int
	BatchCooldown time.Duration
	// AdmissionRate は外部呼び出しの毎秒許可数です。0 以下で無制限。
	AdmissionRate  float64
	AdmissionBurst int
	// KeyframeBatchSize が 0 のときキーフレームは全シーン同時に投入します。
	KeyframeBatchSize int

	// --- Timeouts ---
	StoryboardTimeout time.Duration

	// --- Output ---
	DefaultAspectRatio string
	Watermark          bool
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数です。
func DefaultConfig() Config {
	return Config{
		GeminiModel:        DefaultGeminiModel,
		ImageModel:         DefaultImageModel,
		Temperature:        DefaultTemperature,
		BatchSize:          DefaultBatchSize,
		BatchCooldown:      DefaultBatchCooldown,
		AdmissionRate:      DefaultAdmissionRate,
		AdmissionBurst:     DefaultAdmissionBurst,
		KeyframeBatchSize:  DefaultKeyframeFanoutSize,
		StoryboardTimeout:  DefaultStoryboardTimeout,
		DefaultAspectRatio: "16:9",
	}
}
