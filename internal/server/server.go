// =============================================================================
// ETC Mailer - HTTP Front End
// =============================================================================
//
// This module serves the web front end used by operators who prefer a
// browser over the CLI.
//
// ROUTES:
//   GET  /api/status       Mail configuration status
//   POST /api/upload       Consolidate one uploaded sheet (multipart "file")
//   POST /api/preview      Render one customer's email {"recordIndex": n}
//   GET  /api/send-stream  Dispatch the batch, progress as server-sent events
//   GET  /api/data         The consolidated customers
//   POST /api/clear        Discard the consolidated customers
//   GET  /metrics          Prometheus metrics
//
// STATE:
//   One Service is created per process. It owns the batch of the last
//   upload; a mutex serializes access to it. Only one dispatch may run at a
//   time.
//
// =============================================================================

package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ginjaninja78/etc-mailer/internal/batch"
	"github.com/ginjaninja78/etc-mailer/internal/config"
	"github.com/ginjaninja78/etc-mailer/internal/mailer"
	"github.com/ginjaninja78/etc-mailer/internal/metrics"
	"github.com/ginjaninja78/etc-mailer/internal/render"
	"github.com/ginjaninja78/etc-mailer/pkg/logger"
)

const (
	defaultShutdownTimeout   = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second

	// maxUploadBytes bounds an uploaded sheet.
	maxUploadBytes = 32 << 20
)

// Deps are the collaborators of a Service.
type Deps struct {
	Config     *config.Config
	Processor  *batch.Processor
	Engine     *render.Engine
	Dispatcher *mailer.Dispatcher
	Metrics    *metrics.Registry
	Logger     *slog.Logger
}

// Service is the HTTP front end.
type Service struct {
	cfg        *config.Config
	engine     *render.Engine
	dispatcher *mailer.Dispatcher
	metrics    *metrics.Registry
	logger     *slog.Logger

	mu        sync.Mutex
	processor *batch.Processor

	sending atomic.Bool
}

// New creates a Service.
func New(deps Deps) *Service {
	l := deps.Logger
	if l == nil {
		l = logger.NewNope()
	}
	return &Service{
		cfg:        deps.Config,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     l,
		processor:  deps.Processor,
	}
}

// Routes returns the HTTP handler.
func (s *Service) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/upload", s.handleUpload)
		r.Post("/preview", s.handlePreview)
		r.Get("/send-stream", s.handleSendStream)
		r.Get("/data", s.handleData)
		r.Post("/clear", s.handleClear)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	address := s.cfg.Server.Address
	if address == "" {
		address = ":8080"
	}
	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	server := &http.Server{
		Addr:              address,
		Handler:           s.Routes(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("shutdown completed")
	return nil
}
