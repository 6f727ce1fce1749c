// Package main is the entry point for the workbench service and its
// offline tools.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/flexinfer/mentatlab/services/workbench-go/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "workbench",
	Short: "Workflow workbench: saved workflows, output schemas and graph diffs",
	Long: `workbench serves the workflow editor backend: versioned workflow storage,
output schema inference against a node metadata catalog, graph diffs,
fuzzy search, model classification and node presets.

The infer, diff and models subcommands run the same logic offline on files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: json or text (default from LOG_FORMAT)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inferCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the process logger writing to w. Flags override the
// environment.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	format := cfg.LogFormat
	if logFormat != "" {
		format = logFormat
	}

	slogLevel := slog.LevelInfo
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slogLevel})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel})
	}
	return slog.New(handler)
}
