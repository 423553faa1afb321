package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/trialscope/internal/model"
)

var runFlags struct {
	maxTrials    int
	yearsBack    int
	industryOnly bool
	financial    bool
}

var runCmd = &cobra.Command{
	Use:   "run <disease>",
	Short: "Run the landscape pipeline for one disease",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		params := model.RunParams{
			Disease:           args[0],
			MaxTrials:         runFlags.maxTrials,
			YearsBack:         runFlags.yearsBack,
			IndustryOnly:      runFlags.industryOnly,
			FinancialAnalysis: runFlags.financial,
		}
		if err := validateParams(params); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID := env.Runner.Submit(params)
		zap.L().Info("run submitted", zap.String("run_id", runID))

		runCtx := ctx
		if timeout := cfg.Pipeline.ReportTimeout(); timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := env.Runner.Execute(runCtx, runID); err != nil {
			return err
		}

		rec, err := env.Registry.Get(runID)
		if err != nil {
			return err
		}
		printRunResult(cmd, rec)
		return nil
	},
}

func printRunResult(cmd *cobra.Command, rec model.RunRecord) {
	cmd.Printf("Run %s: %s\n", rec.ID, rec.Status)
	if rec.StorageError != "" {
		cmd.Printf("Storage note: %s\n", rec.StorageError)
	}
	for _, w := range rec.Warnings {
		cmd.Printf("Warning: %s\n", w)
	}

	paths := make([]string, 0, len(rec.Files))
	for p := range rec.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		cmd.Printf("  %s -> %s\n", p, rec.Files[p])
	}
}

// validateParams enforces the run parameter bounds shared by the CLI and
// the API.
func validateParams(p model.RunParams) error {
	if p.Disease == "" {
		return fmt.Errorf("disease is required")
	}
	if p.MaxTrials < 5 || p.MaxTrials > 500 {
		return fmt.Errorf("max_trials must be between 5 and 500, got %d", p.MaxTrials)
	}
	if p.YearsBack < 1 || p.YearsBack > 30 {
		return fmt.Errorf("years_back must be between 1 and 30, got %d", p.YearsBack)
	}
	return nil
}

func init() {
	runCmd.Flags().IntVar(&runFlags.maxTrials, "max-trials", 100, "maximum number of trials to analyze (5-500)")
	runCmd.Flags().IntVar(&runFlags.yearsBack, "years-back", 10, "how many years of trial history to include (1-30)")
	runCmd.Flags().BoolVar(&runFlags.industryOnly, "industry-only", true, "restrict to industry-sponsored trials")
	runCmd.Flags().BoolVar(&runFlags.financial, "financial", false, "include the financial analysis stage")
	rootCmd.AddCommand(runCmd)
}
