package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/engage/internal/scenario"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Golden string
	Update bool
}

type scenarioSummary struct {
	Scenario string   `json:"scenario"`
	Pass     bool     `json:"pass"`
	Steps    int      `json:"steps"`
	Errors   []string `json:"errors,omitempty"`
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <file>",
		Short: "Run a reaction scenario against a fresh in-memory store",
		Long: `Run a YAML reaction scenario and check its expectations.

With --golden the trace is compared against the given file; add --update to
rewrite it instead.

Example:
  engage scenario ./testdata/scenarios/walkthrough.yaml
  engage scenario walkthrough.yaml --golden walkthrough.golden`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden trace file to compare against")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "write the trace to --golden instead of comparing")

	return cmd
}

func runScenario(opts *ScenarioOptions, path string, cmd *cobra.Command) error {
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	sc, err := scenario.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	out.VerboseLog("running scenario %s (%d steps)", sc.Name, len(sc.Steps))

	result, err := scenario.Run(ctx, sc, scenario.WithLogger(opts.logger(cmd)))
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario run failed", err)
	}

	summary := scenarioSummary{
		Scenario: sc.Name,
		Pass:     result.Pass,
		Steps:    len(result.Trace),
		Errors:   result.Errors,
	}

	if opts.Golden != "" {
		trace, err := scenario.MarshalTrace(sc.Name, result)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to render trace", err)
		}
		if opts.Update {
			if err := os.WriteFile(opts.Golden, trace, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write golden file", err)
			}
			out.VerboseLog("wrote %s", opts.Golden)
		} else {
			want, err := os.ReadFile(opts.Golden)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read golden file", err)
			}
			if !bytes.Equal(want, trace) {
				summary.Pass = false
				summary.Errors = append(summary.Errors, fmt.Sprintf("trace differs from %s", opts.Golden))
			}
		}
	}

	if err := out.Success(summary, func(w io.Writer) {
		status := "PASS"
		if !summary.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(w, "%s %s (%d steps)\n", status, summary.Scenario, summary.Steps)
		for _, e := range summary.Errors {
			fmt.Fprintf(w, "  - %s\n", e)
		}
	}); err != nil {
		return err
	}

	if !summary.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", sc.Name))
	}
	return nil
}
