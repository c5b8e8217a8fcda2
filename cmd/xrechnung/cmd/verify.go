package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung/internal/signature"
)

var caFiles []string

// VerifyResult is the outcome for one file
type VerifyResult struct {
	File   string                        `json:"file"`
	Result *signature.VerificationResult `json:"result,omitempty"`
	Error  string                        `json:"error,omitempty"`
}

var verifyCmd = &cobra.Command{
	Use:   "verify [files...]",
	Short: "Verify sealed documents",
	Long: `Verify enveloped XMLDSig signatures on XRechnung documents.

Verifies:
  - Signature validity (digest and signature value)
  - Signer certificate validity period
  - Chain from the signer to a certificate in --ca-file

Examples:
  xrechnung verify signed.xml --ca-file root.pem
  xrechnung verify signed/*.xml --ca-file root.pem --ca-file partner.pem -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringArrayVar(&caFiles, "ca-file", nil, "Trusted certificate file (PEM), repeatable")
	_ = verifyCmd.MarkFlagRequired("ca-file")
}

func runVerify(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to verify")
	}

	ts, err := signature.LoadTrustStore(caFiles...)
	if err != nil {
		return err
	}
	verifier := signature.NewVerifier(ts, signature.WithVerifierLogger(log))

	results := make([]*VerifyResult, 0, len(files))
	allValid := true
	for _, file := range files {
		r := verifyFile(cmd, verifier, file)
		results = append(results, r)
		if r.Result == nil || !r.Result.Valid {
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
			if r.Result != nil && r.Result.Valid {
				fmt.Fprintf(w, "✓ %s: VALID", r.File)
				if r.Result.Signer != nil {
					fmt.Fprintf(w, " (signer: %s)", r.Result.Signer.Name)
				}
				fmt.Fprintln(w)
				continue
			}
			fmt.Fprintf(w, "✗ %s: INVALID\n", r.File)
			if r.Error != "" {
				fmt.Fprintf(w, "  - %s\n", r.Error)
			}
			if r.Result != nil {
				for _, e := range r.Result.Errors {
					fmt.Fprintf(w, "  - %s\n", e)
				}
				for _, warn := range r.Result.Warnings {
					fmt.Fprintf(w, "  ⚠ %s\n", warn)
				}
			}
		}
	}

	if !allValid {
		return fmt.Errorf("verification failed for some files")
	}
	return nil
}

func verifyFile(cmd *cobra.Command, verifier *signature.Verifier, path string) *VerifyResult {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	out := &VerifyResult{File: path}
	data, err := readInput(cmd, path)
	if err != nil {
		out.Error = err.Error()
		return out
	}
	result, err := verifier.Verify(ctx, data)
	out.Result = result
	if err != nil {
		out.Error = err.Error()
	}
	return out
}
