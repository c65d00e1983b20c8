package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/logging"
)

// appContext はサブコマンド間で共有するフラグと読み込み済みの設定です。
type appContext struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

// config は PersistentPreRunE で読み込んだ設定を返します。
func (a *appContext) config() config.Config {
	if a.cfg == nil {
		return config.Default()
	}
	return *a.cfg
}

// load は設定を読み込み、フラグで指定されたログ設定を優先してロガーを初期化します。
func (a *appContext) load() error {
	cfg, err := config.Load(strings.TrimSpace(a.configPath))
	if err != nil {
		return fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if _, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func newRootCommand() *cobra.Command {
	app := &appContext{}

	rootCmd := &cobra.Command{
		Use:           "storyboard",
		Short:         "ブリーフから絵コンテ・キーフレーム・動画プロンプトを生成します",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&app.configPath, "config", "c", "", "TOML 設定ファイルのパス（未指定なら "+config.ConfigEnvKey+"）")
	flags.StringVar(&app.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	flags.StringVar(&app.logFormat, "log-format", "", "ログ形式 (auto, text, json)")

	rootCmd.AddCommand(newServeCommand(app))
	rootCmd.AddCommand(newRunCommand(app))
	rootCmd.AddCommand(newScriptCommand(app))
	rootCmd.AddCommand(newStylesCommand(app))
	rootCmd.AddCommand(newRunsCommand(app))

	return rootCmd
}

// Execute は main.go から呼び出されるエントリポイントです。
// SIGINT / SIGTERM でコマンドのコンテキストをキャンセルします。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		stop()
		os.Exit(1)
	}
}
