// Package cli implements the mvstore command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dot5enko/mvstore/config"
	"github.com/dot5enko/mvstore/manager"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type rootOptions struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "mvstore",
		Short:         "Materialized view storage tools",
		Long:          "Inspect segment files, list materialized views and sweep expired ones.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = opts.logLevel
			}

			opts.cfg = cfg
			opts.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			}))

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv(config.EnvPrefix+"CONFIG"), "path to mvstore.yaml")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newInspectCmd(opts),
		newListCmd(opts),
		newSweepCmd(opts),
		newBenchCmd(opts),
	)

	return rootCmd
}

// manager opens the catalog of the loaded configuration.
func (o *rootOptions) manager() (*manager.Manager, error) {
	return manager.Open(o.cfg, o.logger)
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed)
)

func printHeader(w io.Writer, format string, args ...any) {
	headerColor.Fprintf(w, format+"\n", args...)
}

func printKV(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "  %-14s %v\n", key+":", value)
}
