package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/rezonia/xrechnung/internal/codec"
	"github.com/rezonia/xrechnung/internal/config"
	"github.com/rezonia/xrechnung/internal/signature"
	"github.com/rezonia/xrechnung/internal/store"
	"github.com/rezonia/xrechnung/internal/validator"
)

// Config holds server configuration
type Config struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
}

// Server represents the HTTP API server
type Server struct {
	config    *Config
	settings  config.Settings
	router    *gin.Engine
	codec     *codec.Codec
	validator *validator.Validator
	store     store.Store
	verifier  *signature.Verifier
	logger    zerolog.Logger
}

// Option configures optional server dependencies
type Option func(*Server)

// WithStore sets the invoice store. Defaults to an in-memory store.
func WithStore(s store.Store) Option {
	return func(srv *Server) {
		srv.store = s
	}
}

// WithVerifier enables POST /api/v1/verify.
func WithVerifier(v *signature.Verifier) Option {
	return func(srv *Server) {
		srv.verifier = v
	}
}

// WithLogger sets the base logger for request logging.
func WithLogger(l zerolog.Logger) Option {
	return func(srv *Server) {
		srv.logger = l
	}
}

// NewServer creates a new API server
func NewServer(cfg *Config, settings config.Settings, opts ...Option) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config:    cfg,
		settings:  settings,
		router:    gin.New(),
		validator: validator.New(settings),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = store.NewMemory()
	}
	s.codec = codec.New(settings, codec.WithLogger(s.logger.With().Str("component", "codec").Logger()))

	s.router.Use(gin.Recovery(), requestLogger(s.logger))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/invoices", s.handleListInvoices)
		v1.POST("/invoices", s.handleCreateInvoice)
		v1.POST("/invoices/import", s.handleImportInvoice)
		v1.GET("/invoices/:number", s.handleGetInvoice)
		v1.GET("/invoices/:number/xml", s.handleExportInvoice)

		v1.POST("/validate", s.handleValidate)
		v1.POST("/verify", s.handleVerify)
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.config.Address).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler returns the http.Handler for use with custom servers
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
