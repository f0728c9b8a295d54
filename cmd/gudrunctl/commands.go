// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/gudrunctl/pkg/gudfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/gudrunfile"
	"github.com/mesh-intelligence/gudrunctl/pkg/iterate"
	"github.com/mesh-intelligence/gudrunctl/pkg/model"
	"github.com/mesh-intelligence/gudrunctl/pkg/orchestrator"
	"github.com/mesh-intelligence/gudrunctl/pkg/project"
)

// operationFunc is one orchestrated operation.
type operationFunc func(o *orchestrator.Orchestrator, ctx context.Context, gf *model.GudrunFile) (*model.GudrunFile, *orchestrator.Outcome, error)

var (
	strategyName string
	iterations   int
	radius       string
)

func operationCommands() []*cobra.Command {
	iterateCmd := &cobra.Command{
		Use:   "iterate",
		Short: "Run an iteration strategy over the project",
		Long: "Strategies: " + strings.Join(iterate.Names(), ", ") + `.

Every strategy except tweak-factor starts with an unmodified run; each
iteration then adjusts the running samples from the previous results.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("strategy") {
				cfg.Iteration.Strategy = strategyName
			}
			if cmd.Flags().Changed("iterations") {
				cfg.Iteration.Iterations = iterations
			}
			if cmd.Flags().Changed("radius") {
				cfg.Iteration.Radius = radius
			}
			s, err := cfg.Strategy()
			if err != nil {
				return err
			}
			return runOperation(cmd, func(o *orchestrator.Orchestrator, ctx context.Context, gf *model.GudrunFile) (*model.GudrunFile, *orchestrator.Outcome, error) {
				return o.Iterate(ctx, gf, s)
			})
		},
	}
	iterateCmd.Flags().StringVar(&strategyName, "strategy", "", "iteration strategy")
	iterateCmd.Flags().IntVar(&iterations, "iterations", 0, "number of iterations")
	iterateCmd.Flags().StringVar(&radius, "radius", "", "inner or outer, for strategy radius")

	return []*cobra.Command{
		{
			Use:   "run",
			Short: "Purge, then run the reduction engine once",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOperation(cmd, (*orchestrator.Orchestrator).Run)
			},
		},
		iterateCmd,
		{
			Use:   "composition",
			Short: "Search the mixing ratio of weighted components",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOperation(cmd, (*orchestrator.Orchestrator).ComposeRatios)
			},
		},
		{
			Use:   "batch",
			Short: "Process the sample data files in batches",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOperation(cmd, (*orchestrator.Orchestrator).RunBatches)
			},
		},
		{
			Use:   "containers-as-samples",
			Short: "Run every container flagged runAsSample as an independent sample",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOperation(cmd, (*orchestrator.Orchestrator).RunContainersAsSamples)
			},
		},
		{
			Use:   "per-file",
			Short: "Run every sample data file as its own sample",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runOperation(cmd, (*orchestrator.Orchestrator).RunPerFile)
			},
		},
	}
}

// runOperation opens the project, runs op and optionally saves the result.
func runOperation(cmd *cobra.Command, op operationFunc) error {
	if projectPath == "" {
		return errors.New("--project is required")
	}
	p, err := project.Open(projectPath)
	if err != nil {
		return err
	}
	store, err := openHistory()
	if err != nil {
		return err
	}
	opts := []orchestrator.Option{}
	if store != nil {
		defer store.Close()
		opts = append(opts, orchestrator.WithHistory(store))
	}

	o := orchestrator.New(cfg, opts...)
	work, out, err := op(o, cmd.Context(), p.File)
	if err != nil {
		return err
	}
	logger.Info("operation finished",
		zap.String("operation", out.Operation),
		zap.String("output", out.OutputDir),
		zap.Int("runs", len(out.Runs)),
		zap.Int("batches", len(out.Batches)))
	for name, res := range out.Searches {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ratio %g cost %g converged=%v (%d evaluations)\n",
			name, res.X, res.Cost, res.Converged, res.Evaluations)
	}
	if !save {
		return nil
	}
	p.File = work
	return p.Save()
}

var convertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Convert between the legacy input format and YAML",
	Long:  "The output format follows the extension of <out>: .yaml/.yml write YAML, anything else the legacy format.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		gf, err := project.Load(args[0])
		if err != nil {
			return err
		}
		switch strings.ToLower(filepath.Ext(args[1])) {
		case ".yaml", ".yml":
			data, err := project.Marshal(gf)
			if err != nil {
				return err
			}
			return os.WriteFile(args[1], data, 0o644)
		}
		return gudrunfile.WriteFile(gf, args[1])
	},
}

var inspectGudCmd = &cobra.Command{
	Use:   "inspect-gud <file>",
	Short: "Print the interpreted contents of a result report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gf, err := gudfile.Parse(args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Expected DCS\t%g\n", gf.ExpectedDCS)
		fmt.Fprintf(w, "Average level of merged DCS\t%g\n", gf.AverageLevelMergedDCS)
		fmt.Fprintf(w, "Gradient of merged DCS\t%g%%\n", gf.GradientMergedDCS)
		fmt.Fprintf(w, "Output\t%s\n", gf.Output)
		fmt.Fprintf(w, "Suggested tweak factor\t%s\n", gf.SuggestedTweakFactor)
		if c, err := gf.Coefficient(); err == nil {
			fmt.Fprintf(w, "Coefficient\t%g\n", c)
		}
		w.Flush()
		fmt.Fprintln(cmd.OutOrStdout(), gf.Message())
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded operations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openHistory()
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("no history_db configured")
		}
		defer store.Close()
		recs, err := store.List(historyLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STARTED\tOPERATION\tSTATUS\tRUNS\tDURATION\tPROJECT")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				r.StartedAt.Format(time.DateTime), r.Operation, r.Status, r.Runs, r.Duration.Round(time.Second), r.Project)
			if r.Error != "" {
				fmt.Fprintf(w, "\t\terror: %s\t\t\t\n", r.Error)
			}
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records (0 for all)")
}
