package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shouni/go-http-kit/httpkit"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/styles"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

// newManager は設定から Gemini バックエンドの Manager を構築します。
func newManager(ctx context.Context, cfg config.Config) (*workflow.Manager, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY が設定されていません")
	}
	catalogue, err := styles.Load(cfg.StylesFile)
	if err != nil {
		return nil, err
	}
	httpClient := httpkit.New(config.DefaultHTTPTimeout)
	return workflow.New(ctx, workflow.ManagerArgs{
		Config:         cfg.KitConfig(),
		APIKey:         cfg.GeminiAPIKey,
		BaseURL:        cfg.BaseURL,
		AssetDir:       cfg.AssetDir(),
		HTTPClient:     httpClient,
		ReferenceHosts: cfg.ReferenceHosts,
		Styles:         catalogue,
	})
}

// readRequirement は引数・ファイル・標準入力の順に要件テキストを取得します。
func readRequirement(args []string, file string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	if file != "" && file != "-" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("要件ファイルの読み込みに失敗しました: %w", err)
		}
		return string(data), nil
	}
	if file == "-" || isStdin() {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("標準入力の読み込みに失敗しました: %w", err)
		}
		return string(data), nil
	}
	return "", fmt.Errorf("要件を引数・--file・標準入力のいずれかで指定してください")
}

func isStdin() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// truncate は表示幅に収まるようにルーン単位で切り詰めます。
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
