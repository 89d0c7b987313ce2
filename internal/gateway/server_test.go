package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/mira/internal/auth"
	"github.com/haasonsaas/mira/internal/observability"
)

type fakeCompleter struct {
	userID string
	err    error
	state  string
	code   string
}

func (f *fakeCompleter) Complete(_ context.Context, state, code string) (string, error) {
	f.state, f.code = state, code
	return f.userID, f.err
}

func serve(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	healthy := NewServer(ServerConfig{}, Routes{}, nil)
	rec := serve(t, healthy, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("healthy = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}

	unhealthy := NewServer(ServerConfig{}, Routes{Ready: func(context.Context) error { return errors.New("db down") }}, nil)
	if rec := serve(t, unhealthy, http.MethodGet, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rec.Code)
	}
}

func TestRoutesMountedOnlyWhenConfigured(t *testing.T) {
	bare := NewServer(ServerConfig{}, Routes{}, nil)
	for _, path := range []string{"/webhooks/whatsapp", "/oauth/google/callback", "/metrics"} {
		if rec := serve(t, bare, http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}

	var hits int
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	})
	metrics := observability.Nop()
	metrics.DuplicatesSuppressed.Inc()
	full := NewServer(ServerConfig{}, Routes{WhatsApp: webhook, Metrics: metrics.Handler()}, nil)

	if rec := serve(t, full, http.MethodPost, "/webhooks/whatsapp"); rec.Code != http.StatusOK || hits != 1 {
		t.Errorf("webhook status = %d, hits = %d", rec.Code, hits)
	}
	rec := serve(t, full, http.MethodGet, "/metrics")
	if !strings.Contains(rec.Body.String(), "mira_duplicates_suppressed_total 1") {
		t.Errorf("metrics body missing counter")
	}
}

func TestGoogleCallback(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		err      error
		status   int
		notified int
	}{
		{name: "success", query: "state=s1&code=c1", status: http.StatusOK, notified: 1},
		{name: "declined", query: "error=access_denied", status: http.StatusBadRequest},
		{name: "invalid state", query: "state=bad&code=c1", err: auth.ErrInvalidState, status: http.StatusBadRequest},
		{name: "exchange failure", query: "state=s1&code=c1", err: fmt.Errorf("auth: exchange code: %w", errors.New("502")), status: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{userID: "whatsapp:1", err: tt.err}
			notifier := &recordingSender{}
			s := NewServer(ServerConfig{}, Routes{OAuth: completer, Notifier: notifier}, nil)

			rec := serve(t, s, http.MethodGet, "/oauth/google/callback?"+tt.query)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if notifier.count() != tt.notified {
				t.Errorf("notifications = %d, want %d", notifier.count(), tt.notified)
			}
			if tt.name == "success" {
				if completer.state != "s1" || completer.code != "c1" {
					t.Errorf("Complete(%q, %q)", completer.state, completer.code)
				}
				if notifier.sent[0] != "whatsapp:1: "+connectedText {
					t.Errorf("notification = %q", notifier.sent[0])
				}
			}
		})
	}
}

func TestRecovererHandlesPanics(t *testing.T) {
	s := NewServer(ServerConfig{}, Routes{WhatsApp: http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})}, nil)
	if rec := serve(t, s, http.MethodPost, "/webhooks/whatsapp"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(ServerConfig{ShutdownTimeout: time.Second}, Routes{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listener) }()

	transport := &http.Transport{DisableKeepAlives: true}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport, Timeout: time.Second}
	resp, err := client.Get("http://" + listener.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != `{"status":"ok"}` {
		t.Errorf("body = %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
