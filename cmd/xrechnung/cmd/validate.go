package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung/internal/model"
	"github.com/rezonia/xrechnung/internal/validator"
)

// ValidationResult is the outcome for one file
type ValidationResult struct {
	File        string                `json:"file"`
	Syntax      string                `json:"syntax,omitempty"`
	Valid       bool                  `json:"valid"`
	Unvalidated bool                  `json:"unvalidated,omitempty"`
	Violations  []validator.Violation `json:"violations,omitempty"`
	Error       string                `json:"error,omitempty"`
}

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Validate invoice files",
	Long: `Validate XRechnung XML or JSON invoices against the configured rules.

Checks performed:
  - Required fields (number, date, supplier, buyer, line items)
  - Tax id presence (XRECHNUNG_REQUIRE_TAX_ID) and format
  - Sign of amounts and currency consistency
  - Net, tax and total amounts against the line items
  - Line totals against quantity times unit price
  - Contiguous line positions

Examples:
  xrechnung validate invoice.xml
  xrechnung validate invoices/ --format table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}

	v := validator.New(settings)
	results := make([]*ValidationResult, 0, len(files))
	allValid := true
	for _, file := range files {
		result := validateFile(cmd, v, file)
		results = append(results, result)
		if !result.Valid {
			allValid = false
		}
	}

	w := cmd.OutOrStdout()
	if outputFormat == "json" {
		if err := writeJSON(w, results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(w, "✓ %s: VALID\n", r.File)
				continue
			}
			fmt.Fprintf(w, "✗ %s: INVALID\n", r.File)
			if r.Error != "" {
				fmt.Fprintf(w, "  - %s\n", r.Error)
			}
			for _, viol := range r.Violations {
				fmt.Fprintf(w, "  - %s\n", viol)
			}
		}
	}

	if !allValid {
		return fmt.Errorf("validation failed for some files")
	}
	return nil
}

func validateFile(cmd *cobra.Command, v *validator.Validator, path string) *ValidationResult {
	result := &ValidationResult{File: path}

	data, err := readInput(cmd, path)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	var inv *model.Invoice
	if isJSONFile(path) {
		result.Syntax = "json"
		if inv, err = model.DecodeJSON(data, settings.DefaultTaxRate); err != nil {
			result.Error = err.Error()
			return result
		}
	} else {
		res, err := newCodec().Decode(data)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		inv = res.Invoice
		result.Syntax = res.Syntax
		result.Unvalidated = res.Unvalidated
		result.Violations = append(result.Violations, res.Violations...)
	}

	result.Violations = append(result.Violations, v.Validate(inv).Violations...)
	result.Valid = len(result.Violations) == 0
	log.Debug().Str("file", path).Bool("valid", result.Valid).Msg("validated")
	return result
}
