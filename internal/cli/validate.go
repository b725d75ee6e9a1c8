package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/asbelov/alepiz-sub006/internal/harness"
	"github.com/asbelov/alepiz-sub006/internal/rules"
)

// ValidationIssue is one problem found in a rules directory or scenario.
type ValidationIssue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Counters int               `json:"counters"`
	Scenario int               `json:"scenarios"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate counter rules and scenario files",
		Long: `Validate counter rule directories (CUE) and scenario files (YAML)
without touching the database.

A directory is loaded as a rules directory, a .yaml/.yml file as a scenario.
Without arguments the configured rules_dir is validated.

Examples:
  alepiz-events validate ./rules
  alepiz-events validate ./rules ./scenarios/maintenance.yaml --format json`,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := formatterFor(opts, cmd)

	if len(paths) == 0 {
		cfg, err := loadConfig(opts)
		if err != nil {
			return err
		}
		if cfg.RulesDir == "" {
			return outputValidateError(formatter, ErrCodeNotFound, "no paths given and rules_dir is not configured", nil)
		}
		paths = []string{cfg.RulesDir}
	}

	result := ValidationResult{}
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("path not found: %s", path), nil)
		}

		if info.IsDir() {
			formatter.VerboseLog("Validating rules directory: %s", path)
			rs, err := rules.Load(path)
			if err != nil {
				result.Errors = append(result.Errors, rulesIssue(path, err))
				continue
			}
			result.Counters += len(rs)
			continue
		}

		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			formatter.VerboseLog("Validating scenario: %s", path)
			if _, err := harness.LoadScenario(path); err != nil {
				result.Errors = append(result.Errors, ValidationIssue{
					Path:    path,
					Code:    ErrCodeScenario,
					Message: err.Error(),
				})
				continue
			}
			result.Scenario++
		default:
			result.Errors = append(result.Errors, ValidationIssue{
				Path:    path,
				Code:    ErrCodeGeneric,
				Message: "expected a rules directory or a .yaml scenario",
			})
		}
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}

	// Output success
	return outputValidateSuccess(formatter, result)
}

// rulesIssue converts a rule loading error, keeping its CUE position.
func rulesIssue(path string, err error) ValidationIssue {
	issue := ValidationIssue{Path: path, Code: ErrCodeRules, Message: err.Error()}
	var rerr *rules.Error
	if errors.As(err, &rerr) {
		issue.Field = rerr.Field
		issue.Message = rerr.Message
		issue.Line = getLineFromCuePos(rerr.Pos)
		if rerr.Pos.IsValid() && rerr.Pos.Filename() != "" {
			issue.Path = rerr.Pos.Filename()
		}
	}
	return issue
}

// getLineFromCuePos extracts line number from a token.Pos.
func getLineFromCuePos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	result.Valid = true
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ All valid (%d counter rule(s), %d scenario(s))\n", result.Counters, result.Scenario)
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Validation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		if err := formatter.encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s line %d\n", err.Path, err.Line)
		} else {
			fmt.Fprintln(formatter.Writer, err.Path)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
