package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/runner"
)

// newScriptCommand は台本の生成（JSON 出力）のみを行うコマンドです。
func newScriptCommand(app *appContext) *cobra.Command {
	var (
		file     string
		output   string
		previous string
	)
	cmd := &cobra.Command{
		Use:   "script [requirement]",
		Short: "要件テキストから台本（JSON）だけを生成します",
		Long: `要件テキストを解析し、タイトル・ジャンル・シーン一覧を含む台本を JSON で出力します。
--previous に以前の台本を渡すと、その内容を踏まえて作り直します。画像生成は行いません。`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			requirement, err := readRequirement(args, file)
			if err != nil {
				return err
			}

			req := runner.ScriptRequest{Requirement: requirement}
			if previous != "" {
				data, err := os.ReadFile(previous)
				if err != nil {
					return fmt.Errorf("以前の台本の読み込みに失敗しました: %w", err)
				}
				var prev domain.Script
				if err := json.Unmarshal(data, &prev); err != nil {
					return fmt.Errorf("以前の台本の解析に失敗しました: %w", err)
				}
				req.PreviousScript = &prev
			}

			cfg := app.config()
			manager, err := newManager(ctx, cfg)
			if err != nil {
				return err
			}
			slog.InfoContext(ctx, "Generating script", "text_model", cfg.GeminiModel)

			script, err := manager.BuildScriptRunner().Run(ctx, req)
			if err != nil {
				return fmt.Errorf("台本生成中にエラーが発生しました: %w", err)
			}

			data, err := json.MarshalIndent(script, "", "  ")
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(output, append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("台本の書き出しに失敗しました: %w", err)
			}
			slog.InfoContext(ctx, "Script written", "output", output, "scenes", len(script.Scenes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "要件テキストのファイル（'-' で標準入力）")
	cmd.Flags().StringVarP(&output, "output", "o", "", "出力先 JSON ファイル（未指定なら標準出力）")
	cmd.Flags().StringVar(&previous, "previous", "", "作り直しの元にする台本 JSON")
	return cmd
}
