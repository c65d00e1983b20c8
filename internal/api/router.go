package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RouterOptions はルーターの組み立てに使う設定です。
type RouterOptions struct {
	// AssetDir は生成画像の保存先です。空でなければ /assets として配信します。
	AssetDir string
}

// NewRouter はハンドラをルーティングした gin.Engine を返します。
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", h.Health)
	if opts.AssetDir != "" {
		r.Static("/assets", opts.AssetDir)
	}

	api := r.Group("/api")
	{
		api.POST("/script", h.Script)
		api.POST("/storyboard", h.Storyboard)
		api.POST("/characters", h.Characters)
		api.POST("/characters/regenerate", h.RegenerateCharacter)
		api.POST("/keyframes", h.Keyframes)
		api.POST("/keyframes/regenerate", h.RegenerateKeyframe)
		api.POST("/video-prompts", h.VideoPrompts)
		api.POST("/previews", h.Previews)
		api.POST("/pipeline", h.Pipeline)

		api.GET("/runs", h.ListRuns)
		api.GET("/runs/:id", h.GetRun)
		api.GET("/runs/:id/export", h.ExportRun)

		api.GET("/styles", h.Styles)
		api.POST("/config/reload", h.ReloadConfig)
	}

	r.GET("/ws/runs/:id", h.RunEvents)
	return r
}

// requestLogger はリクエストごとに1行の構造化ログを出力します。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start).Round(time.Millisecond),
		}
		switch {
		case status >= 500:
			slog.ErrorContext(c.Request.Context(), "HTTP request", attrs...)
		case status >= 400:
			slog.WarnContext(c.Request.Context(), "HTTP request", attrs...)
		default:
			slog.InfoContext(c.Request.Context(), "HTTP request", attrs...)
		}
	}
}
