package cli

import (
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
)

func newDatasetsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets",
		Short: "Manage combined datasets",
		Long:  `List, inspect and delete the datasets written by combine.`,
	}
	cmd.AddCommand(
		newDatasetsListCommand(e),
		newDatasetsShowCommand(e),
		newDatasetsDeleteCommand(e),
	)
	return cmd
}

func newDatasetsListCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored datasets",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := e.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			list, err := app.Datasets.List(cmd.Context())
			if err != nil {
				return err
			}

			p := e.printer(cmd)
			if p.json() {
				if list == nil {
					list = []*models.DatasetMetadata{}
				}
				return p.JSON(map[string]any{"datasets": list})
			}
			if len(list) == 0 {
				p.Println("No datasets. Run 'lineqa combine' to create one.")
				return nil
			}
			rows := make([][]any, len(list))
			for i, m := range list {
				rows[i] = []any{m.Name, len(m.Lines), m.FinalCount, m.DuplicatesRemoved, m.Dedup.Strategy, m.CreatedAt.Format("2006-01-02 15:04")}
			}
			p.Table([]string{"Name", "Lines", "Records", "Duplicates", "Strategy", "Created"}, rows)
			return nil
		},
	}
}

func newDatasetsShowCommand(e *env) *cobra.Command {
	var maxRows int
	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a dataset's metadata and first rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			detail, err := app.Datasets.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p := e.printer(cmd)
			if p.json() {
				return p.JSON(detail)
			}
			printDatasetMetadata(p, detail.DatasetMetadata)
			if len(detail.Sources) > 0 {
				p.SourceStatuses(detail.Sources)
			}
			if maxRows == 0 {
				return nil
			}
			t, err := app.Datasets.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p.Preview(t, maxRows)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxRows, "max-rows", 10, "Rows to preview (0 skips the preview)")
	return cmd
}

func newDatasetsDeleteCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a dataset and its data file",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Datasets.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			p := e.printer(cmd)
			if p.json() {
				return p.JSON(map[string]any{"deleted": args[0]})
			}
			p.Printf("Deleted dataset %s\n", args[0])
			return nil
		},
	}
}
