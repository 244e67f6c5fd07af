package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveTool(t *testing.T) {
	m := New("test")
	m.ObserveTool("get_current_scores", 10*time.Millisecond, false)
	m.ObserveTool("knowledge_query_fast", time.Second, true)
	m.ObserveTool("knowledge_query_fast", time.Second, true)

	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("knowledge_query_fast", "fallback")); got != 2 {
		t.Errorf("fallback count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ToolCallsTotal.WithLabelValues("get_current_scores", "ok")); got != 1 {
		t.Errorf("ok count = %v, want 1", got)
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := New("test")
	m.SessionStarted("genz", false)
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Fatalf("active = %v, want 1", got)
	}
	m.SessionEnded(time.Minute, 120, 300)
	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.TokensTotal.WithLabelValues("output")); got != 300 {
		t.Errorf("output tokens = %v, want 300", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTool("x", time.Second, false)
	m.SessionStarted("default", true)
	m.SessionEnded(time.Second, 1, 1)
	m.Audio("in", 10)
	m.CredentialResolved("platform")
	m.KnowledgeReady("fast", true)
	m.WebhookEvent("customer.subscription.deleted", "ok")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("mindcure")
	m.KnowledgeReady("deep", false)
	m.CredentialResolved("user")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{`mindcure_knowledge_source_ready{source="deep"} 0`, `mindcure_credentials_resolved_total{source="user"} 1`} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
