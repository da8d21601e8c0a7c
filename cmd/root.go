package main

import (
	"fmt"
	"io"
	"os"

	"vrflottery/internal/config"

	"github.com/google/logger"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "lottery",
		Short:         "Automated lottery driven by an upkeep keeper and a randomness oracle",
		Long:          "lottery runs a provably fair raffle: players enter for a fee, a keeper triggers the draw once the interval elapses, and a randomness oracle picks the winner who receives the whole pool.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config", ".", "directory holding .env and config.yaml")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newSimulateCmd(opts),
		newVersionCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
}

// initLogger sets up the process logger. The returned function closes it.
func initLogger(cfg config.LogConfig, verbose bool) (func(), error) {
	var out io.Writer = io.Discard
	var file *os.File
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o660)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		file = f
		out = f
	}
	l := logger.Init("lottery", verbose, false, out)
	return func() {
		l.Close()
		if file != nil {
			file.Close()
		}
	}, nil
}
