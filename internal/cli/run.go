package cli

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/stately/internal/canon"
	"github.com/roach88/stately/internal/harness"
	"github.com/roach88/stately/internal/journal"
	"github.com/roach88/stately/internal/settings"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal  string   // SQLite journal path, optional
	Settings string   // YAML settings file, optional
	Set      []string // name=value overrides
}

// RunResult is the output of the run command.
type RunResult struct {
	Name   string               `json:"name"`
	Pass   bool                 `json:"pass"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace"`
	State  map[string]any       `json:"state"`
	Digest string               `json:"digest"` // canonical digest of the trace
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario and print its trace",
		Long: `Run a scenario file and print every recorded notification and the
final state of the object.

Settings from --settings and --set are merged over the scenario's own
settings (--set wins) and applied as one batch before the steps run.
With --journal every notification of the object is also recorded in a
SQLite journal that the trace command can query.

Examples:
  stately run ./scenarios/counter.yaml
  stately run ./scenarios/counter.yaml --set limit=5 --set label=x
  stately run ./scenarios/counter.yaml --journal ./trace.db -v`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record notifications in a SQLite journal")
	cmd.Flags().StringVar(&opts.Settings, "settings", "", "YAML settings file")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "override a configurable field as name=value (repeatable)")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	overrides, err := loadOverrides(opts.Settings, opts.Set)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid settings", err)
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	runOpts := []harness.Option{
		harness.WithLogger(logger),
		harness.WithOverrides(overrides),
	}
	if opts.Verbose {
		runOpts = append(runOpts, harness.WithEventLog(slog.LevelDebug))
	}
	if opts.Journal != "" {
		j, err := journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		runOpts = append(runOpts, harness.WithJournal(j))
	}

	logger.Debug("running scenario", "name", scenario.Name, "schema", scenario.Schema, "type", scenario.Type)
	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario setup failed", err)
	}

	digest, err := canon.Digest("stately.trace", result.Trace)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to digest trace", err)
	}
	out := RunResult{
		Name:   scenario.Name,
		Pass:   result.Pass,
		Errors: result.Errors,
		Trace:  result.Trace,
		State:  result.State,
		Digest: digest,
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: out}
		if !out.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    "E_SCENARIO_FAILED",
				Message: fmt.Sprintf("%d failure(s)", len(out.Errors)),
			}
		}
		if err := formatter.Response(resp); err != nil {
			return err
		}
	} else {
		outputRunText(formatter, out)
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", out.Name))
	}
	return nil
}

// loadOverrides merges the settings file (if any) with name=value pairs.
func loadOverrides(file string, pairs []string) (settings.Values, error) {
	var base settings.Values
	if file != "" {
		v, err := settings.LoadFile(file)
		if err != nil {
			return nil, err
		}
		base = v
	}
	set, err := settings.ParseOverrides(pairs)
	if err != nil {
		return nil, err
	}
	return settings.Merge(base, set), nil
}

func outputRunText(formatter *OutputFormatter, out RunResult) {
	w := formatter.Writer

	mark := "✓"
	if !out.Pass {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s (%d notification(s))\n", mark, out.Name, len(out.Trace))
	for _, e := range out.Errors {
		fmt.Fprintf(w, "  %s\n", indent(e))
	}

	if len(out.Trace) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Trace:")
		for _, e := range out.Trace {
			fmt.Fprintf(w, "  [%d] %s %s %s %s: %s -> %s\n",
				e.Seq, e.Observer, e.Kind, e.Field, e.Stage, formatValue(e.Old), formatValue(e.New))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "State:")
	for _, name := range canon.SortedKeys(out.State) {
		fmt.Fprintf(w, "  %s = %s\n", name, formatValue(out.State[name]))
	}

	if formatter.Verbose {
		fmt.Fprintf(w, "\nDigest: %s\n", out.Digest)
	}
}

// indent keeps multi-line assertion errors aligned under their bullet.
func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}
