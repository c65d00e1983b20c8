package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shouni/go-storyboard-kit/pkg/styles"
)

func newStylesCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "利用できる画風の一覧を表示します",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalogue, err := styles.Load(app.config().StylesFile)
			if err != nil {
				return err
			}
			var rows [][]string
			for _, s := range catalogue.All() {
				rows = append(rows, []string{s.Name, strings.Join(s.Aliases, ", "), truncate(s.Keywords, 60)})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Aliases", "Keywords"}, rows, nil))
			return err
		},
	}
}
