package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PratikDhanave/event-pipeline/internal/config"
	"github.com/PratikDhanave/event-pipeline/internal/metrics"
	"github.com/PratikDhanave/event-pipeline/internal/models"
)

type memStore struct {
	mu      sync.Mutex
	events  []models.Event
	pingErr error
}

func (m *memStore) InsertEvents(_ context.Context, _ string, events []models.Event) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return events, nil
}

func (m *memStore) CountEvents(context.Context, string, string, time.Time, time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

func (m *memStore) Ping(context.Context) error { return m.pingErr }

func testRouter(t *testing.T, st *memStore) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.RegisterCollector(reg)
	cfg := config.Config{
		APIKeys:     map[string]string{"k1": "tenant1"},
		NATSSubject: "events.ingested",
		CORSOrigin:  "*",
	}
	return NewRouter(cfg, Deps{
		Store:    st,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Gatherer: reg,
	})
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthAndReady(t *testing.T) {
	st := &memStore{}
	r := testRouter(t, st)

	if w := do(r, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("/health = %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/ready", "", nil); w.Code != http.StatusOK {
		t.Fatalf("/ready = %d", w.Code)
	}
	st.pingErr = errors.New("db down")
	if w := do(r, http.MethodGet, "/ready", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("/ready with db down = %d", w.Code)
	}
}

func TestPreflightSkipsAuth(t *testing.T) {
	r := testRouter(t, &memStore{})
	w := do(r, http.MethodOptions, "/analytics", "", map[string]string{"Origin": "https://app.example.com"})
	if w.Code != http.StatusNoContent {
		t.Fatalf("OPTIONS /analytics = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Allow-Origin = %q", got)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatalf("Allow-Headers = %q", w.Header().Get("Access-Control-Allow-Headers"))
	}
}

func TestAnalyticsRoundTripAndMetrics(t *testing.T) {
	st := &memStore{}
	r := testRouter(t, st)

	w := do(r, http.MethodPost, "/analytics", `{"events":[{"id":"e1","name":"signup","timestamp":1}]}`,
		map[string]string{"Authorization": "Bearer k1", "Content-Type": "application/json"})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /analytics = %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing on POST")
	}

	w = do(r, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`http_requests_total{handler="/analytics",method="POST",status="201"}`,
		`collector_events_ingested_total{tenant="tenant1"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
}

func TestAnalyticsRequiresKey(t *testing.T) {
	r := testRouter(t, &memStore{})
	w := do(r, http.MethodPost, "/analytics", `{"events":[{"name":"a"}]}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
