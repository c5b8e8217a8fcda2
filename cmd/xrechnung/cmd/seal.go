package cmd

import (
	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung/internal/signature"
)

var (
	sealCert   string
	sealKey    string
	sealOutput string
)

var sealCmd = &cobra.Command{
	Use:   "seal <invoice.xml>",
	Short: "Sign an XRechnung document",
	Long: `Append an enveloped XMLDSig signature to an encoded document.

The certificate file may carry intermediates after the signer certificate;
they are embedded in the signature's KeyInfo. The key must be RSA.

Examples:
  xrechnung seal invoice.xml --cert signer.pem --key signer.key -o signed.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runSeal,
}

func init() {
	rootCmd.AddCommand(sealCmd)

	sealCmd.Flags().StringVar(&sealCert, "cert", "", "Signer certificate (PEM)")
	sealCmd.Flags().StringVar(&sealKey, "key", "", "Signer RSA private key (PEM)")
	sealCmd.Flags().StringVarP(&sealOutput, "output", "o", "", "Output file (default: stdout)")
	_ = sealCmd.MarkFlagRequired("cert")
	_ = sealCmd.MarkFlagRequired("key")
}

func runSeal(cmd *cobra.Command, args []string) error {
	sealer, err := signature.LoadSealer(sealCert, sealKey)
	if err != nil {
		return err
	}
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	signed, err := sealer.Seal(data)
	if err != nil {
		return err
	}
	log.Debug().Str("signer", sealer.Certificate().Subject.CommonName).Msg("document sealed")
	return writeOutput(cmd.OutOrStdout(), sealOutput, signed)
}
