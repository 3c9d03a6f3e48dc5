package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/speedwagon-io/hevt/internal/lib/logger/sl"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAggregatesCheckers(t *testing.T) {
	ready := true
	s := NewServer(sl.Discard(), ":0", nil, func() bool { return ready })
	s.AddChecker(NewChannelHealthChecker(func() bool { return ready }))
	s.AddChecker(NewPushHealthChecker(time.Hour, func(ctx context.Context, since time.Time) (int64, error) {
		return 2, nil
	}))
	h := s.Handler()

	rec := get(t, h, "/health")
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Status != StatusDegraded || len(resp.Components) != 2 {
		t.Fatalf("unexpected health: %d %+v", rec.Code, resp)
	}

	ready = false
	if rec := get(t, h, "/health"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when sockets are down, got %d", rec.Code)
	}
	if rec := get(t, h, "/ready"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected /ready 503, got %d", rec.Code)
	}
	if rec := get(t, h, "/live"); rec.Code != http.StatusOK {
		t.Fatalf("expected /live 200, got %d", rec.Code)
	}
}

func TestHistoryChecker(t *testing.T) {
	c := NewHistoryHealthChecker(func(ctx context.Context) error { return errors.New("database is locked") })
	if st, msg := c.Check(context.Background()); st != StatusDegraded || msg != "database is locked" {
		t.Fatalf("unexpected check result %s %q", st, msg)
	}
}

func TestMetricsAndMounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "hevt_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := NewServer(sl.Discard(), ":0", reg, nil)
	s.Mount("/api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("api"))
	}))
	h := s.Handler()

	rec := get(t, h, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "hevt_test_total 1") {
		t.Fatalf("unexpected metrics output: %d %s", rec.Code, rec.Body.String())
	}
	if rec := get(t, h, "/api/anything"); rec.Body.String() != "api" {
		t.Fatalf("mounted handler not reached: %q", rec.Body.String())
	}
	if rec := get(t, h, "/ready"); rec.Code != http.StatusOK {
		t.Fatalf("nil ready func should report ready, got %d", rec.Code)
	}
}
