package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stately/internal/schema"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Types  []string          `json:"types,omitempty"`
	Files  int               `json:"files,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ValidationError is one schema error with its source position.
type ValidationError struct {
	Code    string `json:"code"`
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate a CUE schema",
		Long: `Compile the CUE schema in a directory and report declaration errors.

Checks the shape of every type and field, default_from references,
numeric bounds and that each static default passes its own field's checks.

Exit codes:
  0 - Schema valid
  1 - Schema has declaration errors
  2 - Command error (directory not found, no CUE files, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	s, err := schema.Load(dir)
	if err != nil {
		var loadErr *schema.LoadError
		if errors.As(err, &loadErr) && loadErr.Code != schema.ErrCodeBuildFailed {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		return outputValidationErrors(formatter, []ValidationError{toValidationError(err)})
	}

	formatter.VerboseLog("Compiled %d type(s) from %d CUE file(s) in %s", len(s.Names()), s.Files, dir)

	if opts.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Types: s.Names(), Files: s.Files})
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid: %d type(s)\n", len(s.Names()))
	for _, name := range s.Names() {
		fmt.Fprintf(formatter.Writer, "  %s\n", name)
	}
	return nil
}

func toValidationError(err error) ValidationError {
	var ce *schema.CompileError
	if errors.As(err, &ce) {
		ve := ValidationError{Code: ce.Code, Path: ce.Path, Message: ce.Message}
		if ce.Pos.IsValid() {
			ve.File = ce.Pos.Filename()
			ve.Line = ce.Pos.Line()
		}
		return ve
	}
	var le *schema.LoadError
	if errors.As(err, &le) {
		ve := ValidationError{Code: le.Code, Message: le.Message}
		if le.Pos.IsValid() {
			ve.File = le.Pos.Filename()
			ve.Line = le.Pos.Line()
		}
		return ve
	}
	return ValidationError{Code: schema.ErrCodeGeneric, Message: err.Error()}
}

func outputValidationErrors(formatter *OutputFormatter, errs []ValidationError) error {
	if formatter.Format == "json" {
		if err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s line %d\n", e.File, e.Line)
		}
		if e.Path != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", e.Code, e.Path, e.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", e.Code, e.Message)
		}
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
