package webhookapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/fossengine/docsync-go/internal/sync"
)

const shutdownTimeout = 10 * time.Second

// Store is the subset of sync.Store the intake server depends on: it only
// ever enqueues and reports counts, never resolves or writes documents.
type Store interface {
	Enqueue(ctx context.Context, item *sync.WebhookQueueItem) error
	QueueCounts(ctx context.Context) (pending, processing int, err error)
}

// Config configures the intake HTTP server (§6's webhook_* options).
type Config struct {
	Addr            string
	CloudSecret     string
	LocalSecret     string
	SignatureHeader string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// DefaultConfig returns the standard signature header and server timeouts.
// New fills in only an empty SignatureHeader; zero timeouts passed to New
// stay zero.
func DefaultConfig() Config {
	return Config{
		SignatureHeader: "X-Frappe-Webhook-Signature",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
	}
}

// Server is the webhook intake of §4.5: it authenticates, parses, and
// enqueues change notifications, and never performs sync work itself.
type Server struct {
	store           Store
	logger          *slog.Logger
	httpServer      *http.Server
	signatureHeader string

	// secret is the signing key of one source. It is empty on the Server
	// returned by New; withSecret builds a scoped copy per source with it
	// set, and handleWebhook reads it from that copy.
	secret string
}

// New builds the intake server. Each source endpoint (cloud/local) is
// authenticated against its own secret, since the two systems do not share
// a signing key.
func New(cfg Config, store Store, logger *slog.Logger) *Server {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Frappe-Webhook-Signature"
	}

	s := &Server{
		store:           store,
		logger:          logger,
		signatureHeader: cfg.SignatureHeader,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	cloudHandler := s.withSecret(cfg.CloudSecret, sync.SourceCloud)
	localHandler := s.withSecret(cfg.LocalSecret, sync.SourceLocal)

	router.POST("/webhook/cloud", cloudHandler)
	router.POST("/webhook/local", localHandler)
	router.GET("/health", s.handleHealth)
	router.GET("/status", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// withSecret binds handleWebhook to a per-source secret without mutating
// shared state across concurrent requests from both sources.
func (s *Server) withSecret(secret string, source sync.Source) gin.HandlerFunc {
	scoped := &Server{store: s.store, logger: s.logger, signatureHeader: s.signatureHeader, secret: secret}
	return scoped.handleWebhook(source)
}

// Run starts the HTTP server and blocks until ctx is cancelled, at which
// point it shuts down gracefully within shutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.logger.Info("webhook intake listening", "addr", s.httpServer.Addr)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server: %w", err)
		}

		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown: %w", err)
		}

		return nil
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}
