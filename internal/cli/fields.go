package cli

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/stately/internal/canon"
	"github.com/roach88/stately/internal/schema"
	"github.com/roach88/stately/internal/settings"
	"github.com/roach88/stately/internal/state"
)

// FieldsOptions holds flags for the fields command.
type FieldsOptions struct {
	*RootOptions
	Type string
	Tags []string // k=v pairs, YAML scalar values
}

// FieldInfo describes one declared field.
type FieldInfo struct {
	Name     string         `json:"name"`
	Datatype string         `json:"datatype"`
	Default  any            `json:"default,omitempty"`
	Computed bool           `json:"computed_default,omitempty"`
	Writable bool           `json:"writable"`
	Tags     map[string]any `json:"tags,omitempty"`
	Docs     string         `json:"docs,omitempty"`
}

// FieldsResult is the output of the fields command.
type FieldsResult struct {
	Type   string      `json:"type"`
	Docs   string      `json:"docs,omitempty"`
	Fields []FieldInfo `json:"fields"`
}

// NewFieldsCommand creates the fields command.
func NewFieldsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FieldsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fields <schema-dir>",
		Short: "List the fields of a schema type",
		Long: `List the fields of a type in declaration order, with datatype,
default, writability, tags and docs.

--tag selects fields whose tags match; repeat it to require several tags.

Examples:
  stately fields ./schema --type Server
  stately fields ./schema --type Server --tag config=true
  stately fields ./schema --type Server --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFields(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Type, "type", "", "type name (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringArrayVar(&opts.Tags, "tag", nil, "tag filter as key=value (repeatable)")

	return cmd
}

func runFields(opts *FieldsOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	query, err := tagQuery(opts.Tags)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --tag", err)
	}

	s, err := schema.Load(dir)
	if err != nil {
		var loadErr *schema.LoadError
		if errors.As(err, &loadErr) && loadErr.Code != schema.ErrCodeBuildFailed {
			return WrapExitError(ExitCommandError, "failed to load schema", err)
		}
		return WrapExitError(ExitFailure, "invalid schema", err)
	}

	t, ok := s.Type(opts.Type)
	if !ok {
		_ = formatter.Error(schema.ErrCodeNotFound, fmt.Sprintf("schema has no type %q", opts.Type), s.Names())
		return NewExitError(ExitCommandError, fmt.Sprintf("schema has no type %q", opts.Type))
	}

	result, err := describeFields(t, query)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to describe fields", err)
	}
	result.Docs = s.Docs(t.Name())

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputFieldsText(formatter, result)
}

// tagQuery parses k=v pairs the way settings overrides are parsed, so
// config=true matches the boolean tag.
func tagQuery(pairs []string) (state.TagQuery, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	values, err := settings.ParseOverrides(pairs)
	if err != nil {
		return nil, err
	}
	return state.TagQuery(values), nil
}

func describeFields(t *state.Type, q state.TagQuery) (*FieldsResult, error) {
	defaults, err := t.Defaults(q)
	if err != nil {
		return nil, err
	}

	result := &FieldsResult{Type: t.Name(), Fields: []FieldInfo{}}
	for _, f := range t.Fields(q) {
		info := FieldInfo{
			Name:     f.Name(),
			Datatype: "any",
			Writable: f.Writable(),
			Docs:     f.Docs(),
		}
		if dt := f.Datatype(); dt != nil {
			info.Datatype = dt.String()
		}
		if d, ok := defaults[f.Name()]; ok {
			info.Default = d
		} else if f.HasDefault() {
			info.Computed = true
		}
		if tags := f.Tags(); len(tags) > 0 {
			info.Tags = tags
		}
		result.Fields = append(result.Fields, info)
	}
	return result, nil
}

func outputFieldsText(formatter *OutputFormatter, result *FieldsResult) error {
	w := formatter.Writer
	fmt.Fprintf(w, "%s\n", result.Type)
	if result.Docs != "" {
		fmt.Fprintf(w, "  %s\n", result.Docs)
	}
	fmt.Fprintln(w)

	if len(result.Fields) == 0 {
		fmt.Fprintln(w, "No matching fields.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tDEFAULT\tACCESS\tTAGS")
	for _, f := range result.Fields {
		access := "rw"
		if !f.Writable {
			access = "ro"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.Name, f.Datatype, formatDefault(f), access, formatTags(f.Tags))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, f := range result.Fields {
		if f.Docs != "" {
			fmt.Fprintf(w, "\n%s: %s", f.Name, f.Docs)
		}
	}
	fmt.Fprintln(w)
	return nil
}

func formatDefault(f FieldInfo) string {
	switch {
	case f.Computed:
		return "(computed)"
	case f.Default == nil:
		return "-"
	}
	return formatValue(f.Default)
}

func formatTags(tags map[string]any) string {
	if len(tags) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(tags))
	for _, k := range slices.Sorted(maps.Keys(tags)) {
		parts = append(parts, k+"="+formatValue(tags[k]))
	}
	return strings.Join(parts, ",")
}

// formatValue renders v as canonical JSON, falling back to %v.
func formatValue(v any) string {
	data, err := canon.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
