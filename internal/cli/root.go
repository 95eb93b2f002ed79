// Package cli implements the threatkit command tree.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/straja-ai/threatkit/internal/config"
	"github.com/straja-ai/threatkit/internal/logging"
)

type globals struct {
	configPath string
	logLevel   string
	logFormat  string
}

// load reads, overrides and validates the configuration, then installs the
// default logger.
func (g *globals) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Logging.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Logging.Format = g.logFormat
	}
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}
	return cfg, logging.Init(cfg.Logging), nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "threatkit",
		Short: "Phishing detection for emails and URLs",
		Long: `threatkit scores emails and URLs for phishing risk by combining rule based
detectors with optional transformer classifiers. It runs as an HTTP API or
as one-shot commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.HiddenDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", config.DefaultPath, "Path to the threatkit config file")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format override (json, text)")

	root.AddCommand(
		newServeCmd(g),
		newEmailCmd(g),
		newURLCmd(g),
		newEvalCmd(g),
		newBenchCmd(g),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
