package cli

import (
	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/sources"
)

func newSourcesCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "sources",
		Aliases: []string{"connections"},
		Short:   "List configured production line databases",
		Example: `  lineqa sources
  lineqa sources --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srcs, err := sources.LoadSources(e.cfg.SourcesFile)
			if err != nil {
				return err
			}
			passwords, err := sources.LoadPasswords(e.cfg.PasswordsFile)
			if err != nil {
				return err
			}
			// Describe needs no connections, so no pools or metadata store are opened.
			registry := sources.NewRegistry(srcs, sources.NewEnvFileCredentials(passwords, nil), nil, e.logger)
			return printSources(e.printer(cmd), registry.Describe())
		},
	}
}

func printSources(p *printer, infos []models.SourceInfo) error {
	if p.json() {
		if infos == nil {
			infos = []models.SourceInfo{}
		}
		return p.JSON(map[string]any{"sources": infos})
	}
	if len(infos) == 0 {
		p.Println("No sources configured.")
		return nil
	}
	rows := make([][]any, len(infos))
	for i, s := range infos {
		rows[i] = []any{s.Name, s.Type, s.Location, s.Table, s.Credentials}
	}
	p.Table([]string{"Name", "Type", "Location", "Table", "Credentials"}, rows)
	return nil
}
