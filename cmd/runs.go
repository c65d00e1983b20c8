package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/internal/store"
	"github.com/shouni/go-storyboard-kit/pkg/generator"
	"github.com/shouni/go-storyboard-kit/pkg/publisher"
)

// newRunsCommand は保存済みの実行履歴を扱うコマンド群です。
func newRunsCommand(app *appContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "保存済みの実行履歴を表示・書き出します",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "実行履歴を新しい順に表示します",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(app, func(st *store.Store) error {
				runs, err := st.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet")
					return err
				}
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						r.ID,
						string(r.Status),
						r.Stage,
						truncate(r.ArtStyle, 16),
						truncate(r.Requirement, 40),
						r.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(),
					renderTable([]string{"ID", "Status", "Stage", "Style", "Requirement", "Created"}, rows, nil))
				return err
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "表示する件数")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "実行の成果物を JSON で表示します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(app, func(st *store.Store) error {
				run, err := st.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			})
		},
	}

	var outDir string
	exportCmd := &cobra.Command{
		Use:   "export <id>",
		Short: "実行のキーフレームと動画プロンプトをディレクトリに書き出します",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withStore(app, func(st *store.Store) error {
				run, err := st.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				pkg, err := publisher.PackageFromRun(run)
				if err != nil {
					return err
				}
				dir := outDir
				if dir == "" {
					dir = "output/" + run.ID
				}
				loader := generator.NewReferenceResolver(generator.ReferencePolicy{
					AssetDirs: []string{app.config().AssetDir()},
				})
				res, err := publisher.NewExporter(loader, nil).ExportToDir(ctx, dir, pkg)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d files written to %s\n", len(res.Files), res.Dir)
				return err
			})
		},
	}
	exportCmd.Flags().StringVarP(&outDir, "out", "o", "", "書き出し先（未指定なら output/<id>）")

	runsCmd.AddCommand(listCmd, showCmd, exportCmd)
	return runsCmd
}

func withStore(app *appContext, fn func(*store.Store) error) error {
	st, err := store.Open(app.config().DBPath())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
