package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/store"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
	"github.com/shouni/go-storyboard-kit/pkg/workflow"
)

// newRunCommand はブリーフから動画プロンプトまでを一括で生成するコマンドです。
func newRunCommand(app *appContext) *cobra.Command {
	var (
		file        string
		artStyle    string
		mode        string
		aspectRatio string
		noEnhance   bool
		outDir      string
		noHistory   bool
	)
	cmd := &cobra.Command{
		Use:   "run [requirement]",
		Short: "台本・絵コンテ・キャラクター・キーフレーム・動画プロンプトを一括生成します",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			requirement, err := readRequirement(args, file)
			if err != nil {
				return err
			}

			cfg := app.config()
			manager, err := newManager(ctx, cfg)
			if err != nil {
				return err
			}

			var recorder workflow.RunRecorder
			if !noHistory {
				st, err := store.Open(cfg.DBPath())
				if err != nil {
					return err
				}
				defer st.Close()
				recorder = st
			}

			reporter := workflow.ReporterFunc(func(ev workflow.Event) {
				slog.InfoContext(ctx, "Progress", "stage", ev.Stage, "status", ev.Status, "message", ev.Message)
			})

			run, err := manager.NewPipeline(recorder, reporter).Run(ctx, workflow.PipelineRequest{
				Requirement: requirement,
				ArtStyle:    artStyle,
				Mode:        mode,
				AspectRatio: aspectRatio,
				SkipEnhance: noEnhance,
			})
			if run.ID != "" {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderRunSummary(run))
			}
			if err != nil {
				return err
			}

			if outDir != "" {
				pkg, err := publisher.PackageFromRun(run)
				if err != nil {
					return err
				}
				res, err := publisher.NewExporter(manager.References(), nil).ExportToDir(ctx, outDir, pkg)
				if err != nil {
					return fmt.Errorf("書き出しに失敗しました: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d files written to %s\n", len(res.Files), res.Dir)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "要件テキストのファイル（'-' で標準入力）")
	flags.StringVarP(&artStyle, "style", "s", "", "画風名またはスタイルキーワード（必須）")
	flags.StringVarP(&mode, "mode", "m", string(domain.RenderStandard), "キーフレームの解像度モード (fast, standard)")
	flags.StringVar(&aspectRatio, "aspect-ratio", "", "アスペクト比（未指定なら設定値）")
	flags.BoolVar(&noEnhance, "no-enhance", false, "キーフレーム生成前のプロンプト強化を省く")
	flags.StringVarP(&outDir, "out", "o", "", "成果物を書き出すディレクトリ")
	flags.BoolVar(&noHistory, "no-history", false, "実行履歴をデータベースに保存しない")
	_ = cmd.MarkFlagRequired("style")
	return cmd
}

// renderRunSummary は工程ごとの成果物数を表にします。
func renderRunSummary(run domain.Run) string {
	count := func(ok bool, n int) string {
		if !ok {
			return "-"
		}
		return strconv.Itoa(n)
	}
	rows := [][]string{
		{string(workflow.StageScript), count(run.Script != nil, lenScenes(run.Script))},
		{string(workflow.StageStoryboard), count(run.Storyboard != nil, lenShots(run.Storyboard))},
		{string(workflow.StageCharacters), count(run.CharacterDesign != nil, lenCharacters(run.CharacterDesign))},
		{string(workflow.StageKeyframes), count(run.Keyframes != nil, len(run.Keyframes))},
		{string(workflow.StageVideoPrompts), count(run.VideoPrompts != nil, lenVideo(run.VideoPrompts))},
	}
	title := fmt.Sprintf("Run %s: %s", run.ID, run.Status)
	if run.Status == domain.RunFailed {
		title += fmt.Sprintf(" at %s (%s)", run.Stage, run.Error)
	}
	return title + "\n" + renderTable([]string{"Stage", "Items"}, rows, []columnAlignment{alignLeft, alignRight})
}

func lenScenes(s *domain.Script) int {
	if s == nil {
		return 0
	}
	return len(s.Scenes)
}

func lenShots(b *domain.Storyboard) int {
	if b == nil {
		return 0
	}
	return len(b.Scenes)
}

func lenCharacters(d *domain.CharacterDesign) int {
	if d == nil {
		return 0
	}
	return len(d.Characters)
}

func lenVideo(v *domain.VideoPrompts) int {
	if v == nil {
		return 0
	}
	return len(v.Scenes)
}
