package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/handlers"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/mcp"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/middleware"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(e *env) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP endpoint",
		Long: `Serve exposes the fetch, combine, analyze, dataset and product operations
as a JSON API under /api, health checks at /health and /ping, and the MCP
tools over streamable HTTP at /mcp.`,
		Example: `  lineqa serve
  lineqa serve --addr 0.0.0.0:8085`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := e.openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if addr == "" {
				addr = e.cfg.Addr()
			}
			srv := &http.Server{
				Addr:              addr,
				Handler:           newHTTPHandler(app, e.version),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return runServer(cmd.Context(), srv, e.logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default bind_addr:port from config)")
	return cmd
}

// newHTTPHandler builds the routed, logged and recovered handler tree.
func newHTTPHandler(app *App, version string) http.Handler {
	mux := http.NewServeMux()

	handlers.NewHealthHandler(app.Config, app.Sources, app.Conns, app.Logger).RegisterRoutes(mux)
	handlers.NewLineQAHandler(
		app.Sources,
		app.Fetcher,
		app.Combiner,
		app.Analyzer,
		app.Datasets,
		app.Products,
		app.Config.Combination.DefaultName,
		app.Logger,
	).RegisterRoutes(mux)

	mcpServer := newMCPServer(app, version)
	mux.Handle("/mcp", middleware.MCPRequestLogger(app.Logger, app.Metrics)(mcpServer.NewStreamableHTTPServer()))

	var h http.Handler = mux
	h = middleware.RequestLogger(app.Logger, app.Metrics)(h)
	h = middleware.Recoverer(app.Logger)(h)
	return h
}

func runServer(ctx context.Context, srv *http.Server, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting lineqa server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func newMCPServer(app *App, version string) *mcp.Server {
	s := mcp.NewServer("lineqa", version, mcp.NewAuditLogger(app.Logger).Hooks(), app.Logger)
	registerTools(s, app, version)
	return s
}
