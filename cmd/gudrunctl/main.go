// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Command gudrunctl drives the Gudrun purge and reduction engines over a
// project configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mesh-intelligence/gudrunctl/pkg/history"
	"github.com/mesh-intelligence/gudrunctl/pkg/orchestrator"
)

var (
	configPath  string
	projectPath string
	binDir      string
	verbose     bool
	save        bool

	logger *zap.Logger
	cfg    orchestrator.Config
)

var rootCmd = &cobra.Command{
	Use:   "gudrunctl",
	Short: "Configure and orchestrate Gudrun data reduction runs",
	Long: `gudrunctl reads a Gudrun project (YAML or the legacy input file format),
runs the purge and reduction engines over it, and drives iterative
refinement of sample parameters between runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		orchestrator.SetLogger(logger)

		cfg, err = orchestrator.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if binDir != "" {
			cfg.BinDir = binDir
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "gudrunctl.yaml", "orchestrator configuration file")
	pf.StringVarP(&projectPath, "project", "p", "", "project file (.yaml or legacy .txt)")
	pf.StringVar(&binDir, "bin-dir", "", "directory holding purge_det and gudrun_dcs")
	pf.BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	for _, c := range operationCommands() {
		c.Flags().BoolVar(&save, "save", false, "save the resulting configuration to the project")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(convertCmd, inspectGudCmd, historyCmd)
}

// openHistory opens the configured ledger, or returns nil when disabled.
func openHistory() (*history.Store, error) {
	if cfg.HistoryDB == "" {
		return nil, nil
	}
	return history.Open(cfg.HistoryDB)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
