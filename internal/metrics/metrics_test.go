package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPushSendsGatheredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_runs_total", Help: "h"}, []string{"type"})
	reg.MustRegister(runs)
	runs.WithLabelValues("preview").Inc()

	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path, body = r.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := Push(context.Background(), srv.URL, "wx-ci", reg, map[string]string{"app_id": "wx123", "env": ""})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.Contains(path, "/job/wx-ci") || !strings.Contains(path, "/app_id/wx123") {
		t.Fatalf("unexpected push path %q", path)
	}
	if strings.Contains(path, "/env/") {
		t.Fatalf("empty grouping values must be skipped, got %q", path)
	}
	if !strings.Contains(body, "test_runs_total") {
		t.Fatalf("expected metric family in body")
	}
}

func TestPushWithoutURLIsNoop(t *testing.T) {
	if err := Push(context.Background(), "", "", prometheus.NewRegistry(), nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)
	NotificationsTotal.WithLabelValues("preview", "sent").Inc()
	if got := testutil.ToFloat64(NotificationsTotal.WithLabelValues("preview", "sent")); got < 1 {
		t.Fatalf("expected counter >= 1, got %v", got)
	}
}
