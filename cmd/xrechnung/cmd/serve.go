package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rezonia/xrechnung/internal/server"
	"github.com/rezonia/xrechnung/internal/signature"
	"github.com/rezonia/xrechnung/internal/store"
	"github.com/rezonia/xrechnung/internal/store/gormstore"
)

var (
	serverAddr    string
	serverDebug   bool
	serverCAFiles []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start an HTTP API server for storing and converting invoices.

The API provides endpoints for:
  - GET  /api/v1/invoices              - List invoices (supplier, start_date, end_date)
  - POST /api/v1/invoices              - Create an invoice from JSON
  - POST /api/v1/invoices/import       - Import an XRechnung document
  - GET  /api/v1/invoices/:number      - Get an invoice
  - GET  /api/v1/invoices/:number/xml  - Export as XML (?syntax=ubl|cii)
  - POST /api/v1/validate              - Validate an XRechnung document
  - POST /api/v1/verify                - Verify a sealed document (needs --ca-file)
  - GET  /health                       - Health check

Invoices are kept in memory unless XRECHNUNG_DATABASE_DSN names a postgres
database or a sqlite file.

Examples:
  xrechnung serve
  XRECHNUNG_DATABASE_DSN=invoices.db xrechnung serve --address :9090
  xrechnung serve --ca-file root.pem --debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverAddr, "address", "", "Server listen address (env: XRECHNUNG_ADDRESS)")
	serveCmd.Flags().BoolVar(&serverDebug, "debug", false, "Enable gin debug mode")
	serveCmd.Flags().StringArrayVar(&serverCAFiles, "ca-file", nil, "Trusted certificate file (PEM) for /verify, repeatable")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := &server.Config{
		Address:      app.Address,
		ReadTimeout:  app.ReadTimeout,
		WriteTimeout: app.WriteTimeout,
		Debug:        serverDebug,
	}
	if serverAddr != "" {
		cfg.Address = serverAddr
	}

	opts := []server.Option{server.WithLogger(log.With().Str("component", "server").Logger())}

	var st store.Store = store.NewMemory()
	if app.DatabaseDSN != "" {
		db, err := gormstore.Open(ctx, app.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close database")
			}
		}()
		st = db
	}
	opts = append(opts, server.WithStore(st))

	if len(serverCAFiles) > 0 {
		ts, err := signature.LoadTrustStore(serverCAFiles...)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithVerifier(signature.NewVerifier(ts, signature.WithVerifierLogger(log))))
	}

	log.Info().
		Str("syntax", settings.Syntax).
		Bool("xml_validation", settings.XMLValidation).
		Bool("persistent", app.DatabaseDSN != "").
		Msg("starting server")
	return server.NewServer(cfg, settings, opts...).Run(ctx)
}
