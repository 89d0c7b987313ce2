package gateway

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/haasonsaas/mira/internal/auth"
	"github.com/haasonsaas/mira/internal/channels"
)

// OAuthCompleter finishes an OAuth grant and returns the user it belongs to.
type OAuthCompleter interface {
	Complete(ctx context.Context, state, code string) (string, error)
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string
	Port int
	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration
}

// Routes are the optional handlers mounted by the server. Nil entries are
// not mounted.
type Routes struct {
	WhatsApp http.Handler
	OAuth    OAuthCompleter
	Metrics  http.Handler
	// Notifier tells the user when a grant completes.
	Notifier channels.Sender
	// Ready reports dependency health for /healthz.
	Ready func(ctx context.Context) error
}

const connectedText = "Thanks! Your Google account is connected. Ask me again and I'll check your calendar."

// Server is the HTTP surface.
type Server struct {
	cfg     ServerConfig
	routes  Routes
	handler http.Handler
	logger  *slog.Logger
}

// NewServer builds the mux and middleware.
func NewServer(cfg ServerConfig, routes Routes, logger *slog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, routes: routes, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if routes.WhatsApp != nil {
		mux.Handle("/webhooks/whatsapp", routes.WhatsApp)
	}
	if routes.OAuth != nil {
		mux.HandleFunc("GET /oauth/google/callback", s.handleGoogleCallback)
	}
	if routes.Metrics != nil {
		mux.Handle("GET /metrics", routes.Metrics)
	}
	s.handler = recoverer(logger, requestLogger(logger, mux))
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Addr returns the listen address.
func (s *Server) Addr() string { return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port) }

// Run listens and serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", listener.Addr().String())
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	<-errCh
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.routes.Ready != nil {
		if err := s.routes.Ready(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

var resultPage = template.Must(template.New("result").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Mira</title></head>
<body><p>{{.}}</p></body></html>
`))

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		s.logger.InfoContext(r.Context(), "oauth grant declined", "reason", reason)
		s.renderResult(w, http.StatusBadRequest, "Authorization was cancelled. You can close this window.")
		return
	}

	userID, err := s.routes.OAuth.Complete(r.Context(), q.Get("state"), q.Get("code"))
	switch {
	case errors.Is(err, auth.ErrInvalidState), errors.Is(err, auth.ErrAuthDisabled):
		s.logger.WarnContext(r.Context(), "oauth callback rejected", "error", err)
		s.renderResult(w, http.StatusBadRequest, "This link is invalid or has expired. Please ask me for a new one.")
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "oauth callback failed", "error", err)
		s.renderResult(w, http.StatusBadGateway, "Something went wrong while connecting your account. Please try again.")
		return
	}

	s.renderResult(w, http.StatusOK, "Your Google account is connected. You can return to the chat.")
	if s.routes.Notifier != nil {
		if err := s.routes.Notifier.Send(r.Context(), userID, connectedText); err != nil {
			s.logger.WarnContext(r.Context(), "notify grant completion failed", "error", err, "user_id", userID)
		}
	}
}

func (s *Server) renderResult(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := resultPage.Execute(w, message); err != nil {
		s.logger.Warn("render result page", "error", err)
	}
}
