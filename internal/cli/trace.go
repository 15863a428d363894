package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/stately/internal/journal"
	"github.com/roach88/stately/internal/state"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Object   string
	Field    string
	Stage    string
	Event    string
}

// TraceResult holds the trace output.
type TraceResult struct {
	Objects []journal.Object `json:"objects"`
	Entries []journal.Entry  `json:"entries"`
	Stats   TraceStats       `json:"stats"`
}

// TraceStats summarises the selected entries.
type TraceStats struct {
	Entries   int `json:"entries"`
	Events    int `json:"events"`
	Completed int `json:"completed"` // events that reached the done stage
	Failed    int `json:"failed"`    // events that ended without reaching done
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Query a notification journal",
		Long: `Query the journal written by "stately run --journal".

Lists the recorded objects and their stage notifications in recording
order. Each event is shown once per stage it reached, and once more for
its terminal notification, so a failed event ends at the stage where it
stopped.

Examples:
  stately trace --db ./trace.db
  stately trace --db ./trace.db --object counter_basics --field n
  stately trace --db ./trace.db --stage done --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Object, "object", "", "filter to one object id")
	cmd.Flags().StringVar(&opts.Field, "field", "", "filter to one field")
	cmd.Flags().StringVar(&opts.Stage, "stage", "", "filter to one stage (none for terminal notifications)")
	cmd.Flags().StringVar(&opts.Event, "event", "", "filter to one event id")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// journal.Open creates missing files; a trace of nothing is a typo.
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	objects, err := j.Objects(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list objects", err)
	}
	if opts.Object != "" {
		objects = filterObjects(objects, opts.Object)
		if len(objects) == 0 {
			return NewExitError(ExitCommandError, fmt.Sprintf("no object %q in journal", opts.Object))
		}
	}

	entries, err := j.Entries(ctx, journal.Filter{
		Object:  opts.Object,
		Field:   opts.Field,
		Stage:   opts.Stage,
		EventID: opts.Event,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query entries", err)
	}

	result := TraceResult{
		Objects: objects,
		Entries: entries,
		Stats:   traceStats(entries),
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

func filterObjects(objects []journal.Object, id string) []journal.Object {
	for _, o := range objects {
		if o.ID == id {
			return []journal.Object{o}
		}
	}
	return nil
}

// traceStats counts events by whether one of their entries is the done
// stage. With a --stage filter only matching entries are seen, so the
// split is only meaningful unfiltered.
func traceStats(entries []journal.Entry) TraceStats {
	stats := TraceStats{Entries: len(entries)}
	done := make(map[string]bool)
	var order []string
	for _, e := range entries {
		if _, seen := done[e.EventID]; !seen {
			order = append(order, e.EventID)
			done[e.EventID] = false
		}
		if e.Stage == state.StageDone {
			done[e.EventID] = true
		}
	}
	stats.Events = len(order)
	for _, id := range order {
		if done[id] {
			stats.Completed++
		} else {
			stats.Failed++
		}
	}
	return stats
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	if len(result.Objects) == 0 {
		fmt.Fprintln(w, "Journal is empty.")
		return
	}

	fmt.Fprintln(w, "Objects:")
	for _, o := range result.Objects {
		fmt.Fprintf(w, "  %s (%s): %d entries\n", o.ID, o.Type, o.Entries)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Entries:")
	if len(result.Entries) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, e := range result.Entries {
		fmt.Fprintf(w, "  [%d] %s %s %s %s: %s -> %s\n", e.Seq, e.Object, e.Kind, e.Field, e.Stage, e.Old, e.New)
		if verbose {
			fmt.Fprintf(w, "       Event: %s\n", e.EventID)
			if e.Batch != "" {
				fmt.Fprintf(w, "       Batch: %s\n", e.Batch)
			}
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Stats:")
	fmt.Fprintf(w, "  Entries:   %d\n", result.Stats.Entries)
	fmt.Fprintf(w, "  Events:    %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Completed: %d\n", result.Stats.Completed)
	fmt.Fprintf(w, "  Failed:    %d\n", result.Stats.Failed)
}
