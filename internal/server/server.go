// Package server exposes the analyzers over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/straja-ai/threatkit/internal/analyzer"
	"github.com/straja-ai/threatkit/internal/config"
	"github.com/straja-ai/threatkit/internal/summarizer"
)

// EmailAnalyzer scores emails.
type EmailAnalyzer interface {
	Analyze(ctx context.Context, in analyzer.EmailInput) (*analyzer.EmailResult, error)
}

// URLAnalyzer scores links.
type URLAnalyzer interface {
	Analyze(ctx context.Context, raw string) (*analyzer.URLResult, error)
}

// Recorder persists finished analyses. Implementations must not block.
type Recorder interface {
	RecordEmail(ctx context.Context, in analyzer.EmailInput, res *analyzer.EmailResult, storeBody bool)
	RecordURL(ctx context.Context, res *analyzer.URLResult)
}

// ReadyCheck reports whether one dependency can serve traffic.
type ReadyCheck struct {
	Name  string
	Check func() error
}

// Deps are the components the server routes to. Email and URL are required;
// the rest are optional.
type Deps struct {
	Email      EmailAnalyzer
	URL        URLAnalyzer
	Recorder   Recorder
	Summarizer summarizer.Summarizer
	Ready      []ReadyCheck
	Metrics    http.Handler
	Logger     *slog.Logger
}

// Server wraps the HTTP server components for ThreatKit.
type Server struct {
	mux    *http.ServeMux
	cfg    config.ServerConfig
	deps   Deps
	logger *slog.Logger
}

// New creates a server with all routes registered.
func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Email == nil || deps.URL == nil {
		return nil, errors.New("server: email and url analyzers are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:    http.NewServeMux(),
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/readyz", s.handleReady)
	s.mux.HandleFunc("/api/email/check", s.handleEmailCheck)
	s.mux.HandleFunc("/api/url/check", s.handleURLCheck)
	if s.deps.Metrics != nil {
		s.mux.Handle("/metrics", s.deps.Metrics)
	}
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.accessLog(s.mux), "threatkit",
		otelhttp.WithFilter(func(r *http.Request) bool {
			switch r.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				return false
			}
			return true
		}),
	)
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("threatkit listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("shutting down http server", "timeout", timeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
