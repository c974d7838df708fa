package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/qwerty-development/tableflow/internal/simulate"
)

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate <scenario.yaml>...",
		Short: "Replay scenarios against an in-memory engine",
		Long: `Replay one or more scenario files on a fake clock and print the trace:
board summaries, conflicts and delivered notifications per tick, and the
outcome of every expectation.

Exit codes:
  0 - All expectations held
  1 - One or more expectations failed
  2 - Command error (unreadable or invalid scenario)

Examples:
  tableflow simulate scenarios/walk_in_conflict.yaml
  tableflow simulate --format json scenarios/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(rootOpts, args, cmd)
		},
	}
	return cmd
}

// simulateReport is the JSON payload of the simulate command.
type simulateReport struct {
	Results []*simulate.Result `json:"results"`
	Passed  int                `json:"passed"`
	Failed  int                `json:"failed"`
}

func runSimulate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	// Engine logs are noise next to the trace unless asked for.
	var logger *slog.Logger
	if opts.Verbose {
		logger = slog.Default()
	}

	report := simulateReport{Results: []*simulate.Result{}}
	for _, path := range paths {
		sc, err := simulate.LoadScenario(path)
		if err != nil {
			_ = out.Error(CodeScenario, err.Error(), map[string]string{"path": path})
			return WrapExitError(ExitCommandError, "failed to load scenario", err)
		}
		out.VerboseLog("running scenario %s (%d steps)", sc.Name, len(sc.Steps))

		result, err := simulate.Run(ctx, sc, logger)
		if err != nil {
			_ = out.Error(CodeScenario, err.Error(), map[string]string{"scenario": sc.Name})
			return WrapExitError(ExitCommandError, "failed to run scenario", err)
		}
		report.Results = append(report.Results, result)
		if result.Passed() {
			report.Passed++
		} else {
			report.Failed++
		}

		if out.Format != "json" {
			if err := result.WriteText(out.Writer); err != nil {
				return err
			}
		}
	}

	if out.Format == "json" {
		if err := out.Success(report); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out.Writer, "\n%d passed, %d failed\n", report.Passed, report.Failed)
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", report.Failed))
	}
	return nil
}
