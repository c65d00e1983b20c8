package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/shouni/go-utils/envutil"

	kitconfig "github.com/shouni/go-storyboard-kit/pkg/config"
)

// デフォルト値の定義
const (
	DefaultHTTPAddr          = ":8080"
	DefaultDataDir           = "data"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "auto"
	DefaultBatchCooldownMS   = 1500
	DefaultStoryboardTimeout = 120
	// DefaultHTTPTimeout は参照画像のダウンロードに使う HTTP クライアントのタイムアウトです。
	DefaultHTTPTimeout = 30 * time.Second
	// ConfigEnvKey は TOML 設定ファイルのパスを指定する環境変数です。
	ConfigEnvKey = "STORYBOARD_CONFIG"
)

// Config はアプリケーション全体の環境設定を保持する構造体です。
// 優先順位は 既定値 < TOML ファイル < 環境変数 です。
type Config struct {
	GeminiAPIKey string  `toml:"gemini_api_key"`
	BaseURL      string  `toml:"base_url"`
	GeminiModel  string  `toml:"gemini_model"`
	ImageModel   string  `toml:"image_model"`
	Temperature  float64 `toml:"temperature"`

	HTTPAddr   string `toml:"http_addr"`
	DataDir    string `toml:"data_dir"`
	StylesFile string `toml:"styles_file"`
	// ReferenceHosts は http(s) の参照画像を許可するホスト名です。空なら URL 参照は拒否します。
	ReferenceHosts []string `toml:"reference_hosts"`

	BatchSize                int     `toml:"batch_size"`
	BatchCooldownMS          int     `toml:"batch_cooldown_ms"`
	AdmissionRate            float64 `toml:"admission_rate"`
	AdmissionBurst           int     `toml:"admission_burst"`
	KeyframeBatchSize        int     `toml:"keyframe_batch_size"`
	StoryboardTimeoutSeconds int     `toml:"storyboard_timeout_seconds"`
	AspectRatio              string  `toml:"aspect_ratio"`
	Watermark                bool    `toml:"watermark"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Default は推奨されるデフォルト設定を返します。
func Default() Config {
	return Config{
		GeminiModel:              kitconfig.DefaultGeminiModel,
		ImageModel:               kitconfig.DefaultImageModel,
		Temperature:              kitconfig.DefaultTemperature,
		HTTPAddr:                 DefaultHTTPAddr,
		DataDir:                  DefaultDataDir,
		BatchSize:                kitconfig.DefaultBatchSize,
		BatchCooldownMS:          DefaultBatchCooldownMS,
		AdmissionRate:            kitconfig.DefaultAdmissionRate,
		AdmissionBurst:           kitconfig.DefaultAdmissionBurst,
		KeyframeBatchSize:        kitconfig.DefaultKeyframeFanoutSize,
		StoryboardTimeoutSeconds: DefaultStoryboardTimeout,
		AspectRatio:              "16:9",
		LogLevel:                 DefaultLogLevel,
		LogFormat:                DefaultLogFormat,
	}
}

// Load は .env・TOML ファイル・環境変数の順に設定を読み込み、検証して返します。
// path が空の場合は STORYBOARD_CONFIG を参照し、それも無ければ TOML は読みません。
func Load(path string) (*Config, error) {
	// .env は任意
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = envutil.GetEnv(ConfigEnvKey, "")
	}
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("設定ファイルが見つかりません: %s", path)
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.GeminiAPIKey = envutil.GetEnv("GEMINI_API_KEY", c.GeminiAPIKey)
	c.BaseURL = envutil.GetEnv("GEMINI_BASE_URL", c.BaseURL)
	c.GeminiModel = envutil.GetEnv("GEMINI_MODEL", c.GeminiModel)
	c.ImageModel = envutil.GetEnv("IMAGE_GEMINI_MODEL", c.ImageModel)
	c.HTTPAddr = envutil.GetEnv("HTTP_ADDR", c.HTTPAddr)
	c.DataDir = envutil.GetEnv("DATA_DIR", c.DataDir)
	c.StylesFile = envutil.GetEnv("STYLES_FILE", c.StylesFile)
	c.AspectRatio = envutil.GetEnv("ASPECT_RATIO", c.AspectRatio)
	c.LogLevel = envutil.GetEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envutil.GetEnv("LOG_FORMAT", c.LogFormat)
	if v := envutil.GetEnv("REFERENCE_HOSTS", ""); v != "" {
		c.ReferenceHosts = splitList(v)
	}

	var errs []error
	c.Temperature = envFloat("TEMPERATURE", c.Temperature, &errs)
	c.AdmissionRate = envFloat("ADMISSION_RATE", c.AdmissionRate, &errs)
	c.BatchSize = envInt("BATCH_SIZE", c.BatchSize, &errs)
	c.BatchCooldownMS = envInt("BATCH_COOLDOWN_MS", c.BatchCooldownMS, &errs)
	c.AdmissionBurst = envInt("ADMISSION_BURST", c.AdmissionBurst, &errs)
	c.KeyframeBatchSize = envInt("KEYFRAME_BATCH_SIZE", c.KeyframeBatchSize, &errs)
	c.StoryboardTimeoutSeconds = envInt("STORYBOARD_TIMEOUT_SECONDS", c.StoryboardTimeoutSeconds, &errs)
	if v := envutil.GetEnv("WATERMARK", ""); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("WATERMARK: %w", err))
		}
		c.Watermark = b
	}
	return errors.Join(errs...)
}

// splitList はカンマ区切りの値を空要素を除いて分割します。
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envInt(key string, def int, errs *[]error) int {
	v := envutil.GetEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func envFloat(key string, def float64, errs *[]error) float64 {
	v := envutil.GetEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (c *Config) normalize() {
	c.DataDir = filepath.Clean(strings.TrimSpace(c.DataDir))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

// Validate は設定値の範囲を検証します。API キーは必須にせず、利用時に検証します。
func (c Config) Validate() error {
	var errs []error
	if c.GeminiModel == "" {
		errs = append(errs, errors.New("gemini_model must not be empty"))
	}
	if c.ImageModel == "" {
		errs = append(errs, errors.New("image_model must not be empty"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be within [0, 2], got %v", c.Temperature))
	}
	if c.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.BatchCooldownMS < 0 {
		errs = append(errs, fmt.Errorf("batch_cooldown_ms must not be negative, got %d", c.BatchCooldownMS))
	}
	if c.AdmissionBurst < 1 {
		errs = append(errs, fmt.Errorf("admission_burst must be positive, got %d", c.AdmissionBurst))
	}
	if c.KeyframeBatchSize < 0 {
		errs = append(errs, fmt.Errorf("keyframe_batch_size must not be negative, got %d", c.KeyframeBatchSize))
	}
	if c.StoryboardTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("storyboard_timeout_seconds must not be negative, got %d", c.StoryboardTimeoutSeconds))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "auto", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be one of auto, text, json; got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// KitConfig は Runner 向けの設定値に変換します。
func (c Config) KitConfig() kitconfig.Config {
	return kitconfig.Config{
		GeminiModel:        c.GeminiModel,
		ImageModel:         c.ImageModel,
		Temperature:        float32(c.Temperature),
		BatchSize:          c.BatchSize,
		BatchCooldown:      time.Duration(c.BatchCooldownMS) * time.Millisecond,
		AdmissionRate:      c.AdmissionRate,
		AdmissionBurst:     c.AdmissionBurst,
		KeyframeBatchSize:  c.KeyframeBatchSize,
		StoryboardTimeout:  time.Duration(c.StoryboardTimeoutSeconds) * time.Second,
		DefaultAspectRatio: c.AspectRatio,
		Watermark:          c.Watermark,
	}
}

// Redacted は API キーを伏せたコピーを返します。
func (c Config) Redacted() Config {
	if c.GeminiAPIKey != "" {
		c.GeminiAPIKey = "********"
	}
	return c
}

// DBPath は実行履歴の SQLite ファイルのパスです。
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "runs.db")
}

// AssetDir は生成画像の保存先です。
func (c Config) AssetDir() string {
	return filepath.Join(c.DataDir, "assets")
}

// Holder は読み込み済みの設定を保持し、明示的な Reload で差し替えます。
type Holder struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewHolder は初期設定と再読み込み時のファイルパスで Holder を生成します。
func NewHolder(cfg Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Get は現在の設定のコピーを返します。
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Reload は設定を読み直します。失敗した場合は現在の設定を維持します。
func (h *Holder) Reload() (Config, error) {
	cfg, err := Load(h.path)
	if err != nil {
		return h.Get(), fmt.Errorf("設定の再読み込みに失敗しました: %w", err)
	}
	h.mu.Lock()
	h.cfg = *cfg
	h.mu.Unlock()
	return *cfg, nil
}
