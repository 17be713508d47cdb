package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/mcp"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/mcp/tools"
)

func newMCPCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		Long: `Mcp speaks JSON-RPC on stdin and stdout so an MCP client can launch lineqa
as a subprocess. Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := e.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			s := newMCPServer(app, e.version)
			e.logger.Info("Serving MCP over stdio")
			err = s.ServeStdio(cmd.Context(), os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		},
	}
}

func registerTools(s *mcp.Server, app *App, version string) {
	tools.RegisterHealthTool(s.MCP(), version, app.Sources)
	tools.RegisterLineQATools(s.MCP(), &tools.Deps{
		Sources:        app.Sources,
		Combiner:       app.Combiner,
		Analyzer:       app.Analyzer,
		Datasets:       app.Datasets,
		Products:       app.Products,
		DefaultDataset: app.Config.Combination.DefaultName,
		Logger:         app.Logger,
	})
}
