package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung/internal/codec"
	"github.com/rezonia/xrechnung/internal/model"
)

var encodeOutput string

var encodeCmd = &cobra.Command{
	Use:   "encode <invoice.json>",
	Short: "Encode a JSON invoice as XRechnung XML",
	Long: `Encode a JSON invoice as UBL or CII XML.

Line items without tax_rate use the configured default rate. Invoices that
fail validation are rejected unless --no-validation is set.

Examples:
  xrechnung encode invoice.json
  xrechnung encode invoice.json --syntax cii -o invoice.xml
  cat invoice.json | xrechnung encode -`,
	Args: cobra.ExactArgs(1),
	RunE: runEncode,
}

func init() {
	rootCmd.AddCommand(encodeCmd)

	encodeCmd.Flags().StringVarP(&encodeOutput, "output", "o", "", "Output file (default: stdout)")
}

func runEncode(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	inv, err := model.DecodeJSON(data, settings.DefaultTaxRate)
	if err != nil {
		return fmt.Errorf("invalid invoice JSON: %w", err)
	}

	out, err := newCodec().Encode(inv)
	var rejected *codec.EncodeRejectedError
	if errors.As(err, &rejected) {
		for _, v := range rejected.Violations {
			fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", v)
		}
		return err
	}
	if err != nil {
		return err
	}

	return writeOutput(cmd.OutOrStdout(), encodeOutput, out)
}
