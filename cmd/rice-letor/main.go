package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-letor/internal/config"
	apperrors "github.com/ricesearch/rice-letor/internal/pkg/errors"
	"github.com/ricesearch/rice-letor/internal/pkg/logger"
)

// logOutput receives the structured log. main prints the final error itself.
var logOutput io.Writer = os.Stderr

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := newRootCmd()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	cmd, err := rootCmd.ExecuteContextC(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if apperrors.IsConfig(err) && cmd != nil {
			fmt.Fprintln(os.Stderr)
			fmt.Fprint(os.Stderr, cmd.UsageString())
		}
		os.Exit(apperrors.ExitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rice-letor",
		Short: "Rice LETOR - batch query execution with learning-to-rank reranking",
		Long: `Rice LETOR runs a batch of queries against a candidate provider,
optionally reranks the candidates with an intermediate and a final
learning-to-rank stage, and writes one ranked result list per requested size.

Run 'rice-letor index' to build the document index.
Run 'rice-letor run' to execute a query batch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")

	rootCmd.AddCommand(
		runCmd(),
		indexCmd(),
		versionCmd(),
	)
	return rootCmd
}

// loadConfig reads the config file named by --config and applies the global log flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.NewWithWriter(logOutput, cfg.Log.Level, cfg.Log.Format)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rice-letor %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}
