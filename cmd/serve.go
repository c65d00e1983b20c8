package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/api"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/store"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
)

const shutdownTimeout = 15 * time.Second

// newServeCommand は各工程を HTTP API として公開するサーバーを起動します。
func newServeCommand(app *appContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "HTTP API サーバーを起動します",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.config()
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), cfg, strings.TrimSpace(app.configPath))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "待ち受けアドレス（未指定なら設定値）")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, configPath string) error {
	holder := config.NewHolder(cfg, configPath)

	manager, err := newManager(ctx, cfg)
	if err != nil {
		return err
	}

	runs, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer runs.Close()

	// 設定の再読み込みで変わるのは生成パラメータのみ。待ち受けアドレスやデータ置き場は再起動が必要です。
	reload := func(ctx context.Context) (config.Config, error) {
		next, err := holder.Reload()
		if err != nil {
			return next, err
		}
		if err := manager.Reconfigure(ctx, next.KitConfig()); err != nil {
			return next, fmt.Errorf("設定の適用に失敗しました: %w", err)
		}
		slog.InfoContext(ctx, "Configuration reloaded", "text_model", next.GeminiModel, "image_model", next.ImageModel)
		return next, nil
	}

	hub := api.NewHub()
	exporter := publisher.NewExporter(manager.References(), nil)
	handler := api.NewHandler(manager, runs, hub, exporter, reload)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(handler, api.RouterOptions{AssetDir: manager.AssetDir()})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTPAddr, "data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP サーバーの起動に失敗しました: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP サーバーの停止に失敗しました: %w", err)
	}
	return nil
}
