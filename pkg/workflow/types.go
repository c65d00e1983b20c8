package workflow

import (
	"time"

	imgport "github.com/shouni/gemini-image-kit/ports"

	"github.com/shouni/go-storyboard-kit/pkg/config"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/styles"
)

const (
	defaultReferenceTTL    = 5 * time.Minute
	defaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = 10 * time.Minute
	defaultAssetDir        = "assets"
)

// ManagerArgs は Manager の初期化引数です。
// Text と Images が nil の場合は APIKey から Gemini クライアントを構築します。
type ManagerArgs struct {
	Config  config.Config
	APIKey  string
	BaseURL string
	// AssetDir は生成画像の保存先です。空なら "assets" を使います。
	AssetDir string
	// HTTPClient は許可ホストからの参照画像ダウンロードに使います。nil なら httpkit のクライアントです。
	HTTPClient imgport.Downloader
	// ReferenceHosts は http(s) の参照画像を許可するホスト名です。空なら URL 参照は拒否します。
	ReferenceHosts []string

	Text       generator.TextGenerator
	Images     generator.ImageGenerator
	References generator.ReferenceLoader
	Prompts    prompts.PromptBuilder
	Styles     *styles.Catalogue
}

// Stage はパイプラインの工程名です。
type Stage string

const (
	StageScript       Stage = "script"
	StageStoryboard   Stage = "storyboard"
	StageCharacters   Stage = "characters"
	StageKeyframes    Stage = "keyframes"
	StageVideoPrompts Stage = "video-prompts"
)

// Stages はパイプラインの実行順です。
var Stages = []Stage{StageScript, StageStoryboard, StageCharacters, StageKeyframes, StageVideoPrompts}

// EventStatus は進捗イベントの種類です。
type EventStatus string

const (
	EventStarted   EventStatus = "started"
	EventCompleted EventStatus = "completed"
	EventFailed    EventStatus = "failed"
	EventFinished  EventStatus = "finished"
)

// Event はパイプラインの進捗通知です。
type Event struct {
	RunID   string      `json:"runId"`
	Stage   Stage       `json:"stage,omitempty"`
	Status  EventStatus `json:"status"`
	Message string      `json:"message,omitempty"`
	Time    time.Time   `json:"time"`
}

// PipelineRequest はパイプライン一括実行の入力です。RunID が空なら採番します。
type PipelineRequest struct {
	RunID       string `json:"runId,omitempty"`
	Requirement string `json:"requirement"`
	ArtStyle    string `json:"artStyle"`
	Mode        string `json:"mode,omitempty"`
	AspectRatio string `json:"aspectRatio,omitempty"`
	// SkipEnhance が true ならキーフレーム生成前のプロンプト強化を省きます。
	// 強化は失敗しても元のプロンプトで続行するため、既定では常に実行します。
	SkipEnhance bool `json:"skipEnhance,omitempty"`
}
