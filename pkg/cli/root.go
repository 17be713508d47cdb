// Package cli provides the lineqa command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/config"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/logging"
)

// env carries what every command needs once flags are parsed.
type env struct {
	version    string
	configPath string
	output     string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd(version string) *cobra.Command {
	e := &env{version: version}

	rootCmd := &cobra.Command{
		Use:   "lineqa",
		Short: "Production line quality analysis",
		Long: `lineqa fetches measurements from several production line databases,
combines them into one deduplicated dataset and reports on process quality.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
				return nil
			}
			return e.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().StringVarP(&e.output, "output", "o", OutputText, "Output format (text|json)")
	rootCmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "Override the configured log level")
	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{OutputText, OutputJSON}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		newVersionCommand(version),
		newSourcesCommand(e),
		newFetchCommand(e),
		newCombineCommand(e),
		newAnalyzeCommand(e),
		newExtractCommand(e),
		newSearchCommand(e),
		newDatasetsCommand(e),
		newServeCommand(e),
		newMCPCommand(e),
		newSecretsCommand(e),
	)
	return rootCmd
}

func (e *env) load() error {
	if _, err := newPrinter(os.Stdout, e.output); err != nil {
		return err
	}
	cfg, err := config.Load(e.configPath, e.version)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if e.logLevel != "" {
		level = e.logLevel
	}
	logger, err := logging.NewLogger(cfg.Env, level)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = logger
	return nil
}

// openApp wires the services for one command run.
func (e *env) openApp(cmd *cobra.Command) (*App, error) {
	return NewApp(cmd.Context(), e.cfg, e.logger)
}

func (e *env) printer(cmd *cobra.Command) *printer {
	p, err := newPrinter(cmd.OutOrStdout(), e.output)
	if err != nil {
		// load already rejected unknown formats
		return &printer{w: cmd.OutOrStdout(), mode: OutputText}
	}
	return p
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
