package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/bindery/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate resource specs",
		Long: `Validate CUE resource specs without writing any output.

Compiles every resource declared under "resource" and checks names, field
types, validation rules, permissions and interested fields. All problems
are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	// validateAll recompiles every resource, so compile errors from the
	// loader are reported from there.
	validationErrors := validateAll(loadResult.CUEValue, formatter)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	// Output success
	return outputValidateSuccess(formatter)
}

// validateAll compiles and validates every resource in the CUE value.
func validateAll(value cue.Value, formatter *OutputFormatter) []compiler.ValidationError {
	var allErrors []compiler.ValidationError

	resourcesVal := value.LookupPath(cue.ParsePath("resource"))
	count := 0
	if resourcesVal.Exists() {
		iter, err := resourcesVal.Fields()
		if err == nil {
			for iter.Next() {
				count++
				name := iter.Label()
				formatter.VerboseLog("Validating resource: %s", name)

				spec, compileErr := compiler.CompileResource(iter.Value())
				if compileErr != nil {
					var cErr *compiler.CompileError
					if errors.As(compileErr, &cErr) {
						allErrors = append(allErrors, compiler.ValidationError{
							Field:   cErr.Field,
							Message: cErr.Message,
							Code:    compileErrorCode(cErr),
							Line:    getLineFromCuePos(cErr.Pos),
						})
					} else {
						allErrors = append(allErrors, compiler.ValidationError{
							Field:   "resource." + name,
							Message: compileErr.Error(),
							Code:    ErrCodeGeneric,
						})
					}
					continue
				}

				allErrors = append(allErrors, compiler.Validate(spec)...)
			}
		}
	}

	if count == 0 && len(allErrors) == 0 {
		allErrors = append(allErrors, compiler.ValidationError{
			Field:   "specs",
			Message: "no resources found in specs",
			Code:    ErrCodeGeneric,
		})
	}

	return allErrors
}

// getLineFromCuePos extracts line number from a token.Pos.
func getLineFromCuePos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter) error {
	if formatter.Format == "json" {
		result := ValidationResult{Valid: true}
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ All specs valid")
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Validation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		result := ValidationResult{
			Valid:  false,
			Errors: errs,
		}

		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
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
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}

// ValidateSpecsDir validates all specs in a directory.
// This is a helper function for external callers.
func ValidateSpecsDir(specsDir string) ([]compiler.ValidationError, error) {
	// Use shared loader
	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	// Create a silent formatter for validateAll
	silentFormatter := &OutputFormatter{Format: "text", Verbose: false, Writer: io.Discard}
	validationErrs := validateAll(loadResult.CUEValue, silentFormatter)

	return validationErrs, nil
}
