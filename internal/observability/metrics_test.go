package observability

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	first := NewMetrics(nil)
	second := Nop()

	first.ToolInvocations.WithLabelValues("web_search", "success").Inc()
	first.ToolInvocations.WithLabelValues("web_search", "success").Inc()
	second.ToolInvocations.WithLabelValues("web_search", "error").Inc()

	if got := testutil.ToFloat64(first.ToolInvocations.WithLabelValues("web_search", "success")); got != 2 {
		t.Errorf("first registry count = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(second.ToolInvocations); got != 1 {
		t.Errorf("second registry series = %d, want 1", got)
	}
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := Nop()
	m.Classifications.WithLabelValues("chat").Inc()
	m.DuplicatesSuppressed.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`mira_classifications_total{intent="chat"} 1`,
		"mira_duplicates_suppressed_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewTracerWithoutEndpointIsNoop(t *testing.T) {
	tracer, shutdown := NewTracer(TraceConfig{ServiceName: "mira-test"})
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := tracer.TraceTool(context.Background(), "web_search")
	defer span.End()
	if ctx == nil {
		t.Fatal("TraceTool returned nil context")
	}
	if tracer.String() != "tracing disabled" {
		t.Errorf("String() = %q", tracer.String())
	}
	RecordError(span, nil)
}
