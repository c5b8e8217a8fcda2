package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung/internal/model"
	"github.com/rezonia/xrechnung/internal/validator"
)

var decodeOutput string

// DecodeOutput is the JSON written by the decode command
type DecodeOutput struct {
	Syntax      string                `json:"syntax"`
	Unvalidated bool                  `json:"unvalidated,omitempty"`
	Violations  []validator.Violation `json:"violations,omitempty"`
	Invoice     *model.Invoice        `json:"invoice"`
}

var decodeCmd = &cobra.Command{
	Use:   "decode <invoice.xml>",
	Short: "Decode XRechnung XML to JSON",
	Long: `Decode a UBL or CII document into the JSON invoice form.

The syntax is detected from the root element. Totals are re-derived from
the line items; declared totals that disagree are reported as violations.

Examples:
  xrechnung decode invoice.xml
  xrechnung decode invoice.xml -o invoice.json`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVarP(&decodeOutput, "output", "o", "", "Output file (default: stdout)")
}

func runDecode(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	res, err := newCodec().Decode(data)
	if err != nil {
		return err
	}
	for _, v := range res.Violations {
		log.Warn().Str("field", v.Field).Msg(v.Message)
	}

	out, err := jsonBytes(DecodeOutput{
		Syntax:      res.Syntax,
		Unvalidated: res.Unvalidated,
		Violations:  res.Violations,
		Invoice:     res.Invoice,
	})
	if err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), decodeOutput, out)
}
