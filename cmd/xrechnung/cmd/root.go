package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung/internal/codec"
	"github.com/rezonia/xrechnung/internal/config"
	"github.com/rezonia/xrechnung/internal/logger"
)

var (
	version = "1.0.0"

	// Global flags
	configFile   string
	verbose      bool
	outputFormat string
	syntaxFlag   string
	noValidation bool

	// Resolved in PersistentPreRunE
	settings config.Settings
	app      config.App
	log      zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "xrechnung",
	Short: "Encode, decode and validate XRechnung invoices",
	Long: `xrechnung converts invoices between JSON and XRechnung XML.

Supports:
  - UBL 2.1 Invoice and UN/CEFACT CII documents
  - EN 16931 consistency checks (totals, line items, tax ids)
  - Enveloped XMLDSig sealing and verification
  - An HTTP API backed by sqlite or postgres

Settings come from xrechnung.{yaml,toml,json}, .env and XRECHNUNG_* variables.

Examples:
  # Encode a JSON invoice as UBL
  xrechnung encode invoice.json -o invoice.xml

  # Decode any supported syntax to JSON
  xrechnung decode invoice.xml

  # Validate several documents
  xrechnung validate *.xml --format table`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (env: XRECHNUNG_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table)")
	rootCmd.PersistentFlags().StringVar(&syntaxFlag, "syntax", "", "Document syntax, ubl or cii (env: XRECHNUNG_SYNTAX)")
	rootCmd.PersistentFlags().BoolVar(&noValidation, "no-validation", false, "Encode invalid invoices with an unvalidated marker")
}

func loadSettings(cmd *cobra.Command, _ []string) error {
	opts := []config.Option{config.WithFile(configFile)}
	if syntaxFlag != "" {
		opts = append(opts, config.WithSyntax(syntaxFlag))
	}
	if noValidation {
		opts = append(opts, config.WithXMLValidation(false))
	}

	var err error
	if settings, err = config.Load(opts...); err != nil {
		return err
	}
	if app, err = config.LoadApp(configFile); err != nil {
		return err
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = app.LogLevel
	logCfg.Format = app.LogFormat
	logCfg.Writer = cmd.ErrOrStderr()
	if verbose {
		logCfg.Level = "debug"
	}
	if err := logger.Setup(logCfg); err != nil {
		return err
	}
	log = logger.GetLogger()
	return nil
}

func newCodec() *codec.Codec {
	return codec.New(settings, codec.WithLogger(log.With().Str("component", "codec").Logger()))
}

// writeOutput writes data to path, or to w when path is empty or "-".
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Debug().Str("file", path).Int("bytes", len(data)).Msg("written")
	return nil
}

// readInput reads path, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}
