package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/event-pipeline/internal/auth"
	"github.com/PratikDhanave/event-pipeline/internal/bus"
	"github.com/PratikDhanave/event-pipeline/internal/models"
	"github.com/PratikDhanave/event-pipeline/internal/wire"
)

const testKey = "tenant-key-123"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeStore dedupes on (tenant, id) like the real unique constraint.
type fakeStore struct {
	mu        sync.Mutex
	seen      map[string]bool
	stored    []models.Event
	insertErr error

	countArgs []any
	count     int64
	countErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: map[string]bool{}}
}

func (f *fakeStore) InsertEvents(_ context.Context, tenantID string, events []models.Event) ([]models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	var inserted []models.Event
	for _, ev := range events {
		key := tenantID + "/" + ev.ID
		if f.seen[key] {
			continue
		}
		f.seen[key] = true
		f.stored = append(f.stored, ev)
		inserted = append(inserted, ev)
	}
	return inserted, nil
}

func (f *fakeStore) CountEvents(_ context.Context, tenantID, eventName string, from, to time.Time) (int64, error) {
	f.countArgs = []any{tenantID, eventName, from, to}
	return f.count, f.countErr
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	msgs     []bus.IngestedBatch
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, subject string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.msgs = append(p.msgs, msg.(bus.IngestedBatch))
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

func newRouter(st EventStore, pub bus.Publisher, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	}
	r := gin.New()
	RegisterObservabilityRoutes(r, logger)
	g := r.Group("/")
	g.Use(auth.APIKeyMiddleware(map[string]string{testKey: "tenant1"}))
	RegisterAnalyticsRoutes(g, &Ingestor{
		Store:     st,
		Publisher: pub,
		Subject:   "events.test",
		Logger:    logger,
		Now:       func() time.Time { return fixedNow },
	})
	RegisterStatsRoutes(g, st)
	return r
}

func postBatch(t *testing.T, r http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/analytics", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeIngest(t *testing.T, w *httptest.ResponseRecorder) models.EventIngestResponse {
	t.Helper()
	var resp models.EventIngestResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestIngestStoresAndPublishes(t *testing.T) {
	st := newFakeStore()
	pub := &fakePublisher{}
	r := newRouter(st, pub, nil)

	w := postBatch(t, r, `{"events":[
		{"id":"e1","name":"signup","timestamp":1700000000000,"properties":{"plan":"pro"},"userId":"u1"},
		{"id":"e2","name":"login","timestamp":1700000000001,"properties":{}}
	]}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if resp := decodeIngest(t, w); resp.Accepted != 2 || resp.Duplicates != 0 {
		t.Fatalf("resp = %+v", resp)
	}
	if len(st.stored) != 2 || st.stored[0].UserID != "u1" || st.stored[0].Properties["plan"] != "pro" {
		t.Fatalf("stored = %+v", st.stored)
	}
	if len(pub.msgs) != 1 || pub.subjects[0] != "events.test" {
		t.Fatalf("published %d messages on %v", len(pub.msgs), pub.subjects)
	}
	if msg := pub.msgs[0]; msg.TenantID != "tenant1" || len(msg.Events) != 2 || msg.ReceivedAt != fixedNow.UnixMilli() {
		t.Fatalf("published %+v", msg)
	}
}

func TestIngestRedeliveryCountsDuplicates(t *testing.T) {
	st := newFakeStore()
	pub := &fakePublisher{}
	r := newRouter(st, pub, nil)
	body := `{"events":[{"id":"e1","name":"a","timestamp":1},{"id":"e2","name":"b","timestamp":2}]}`

	if w := postBatch(t, r, body); w.Code != http.StatusCreated {
		t.Fatalf("first status = %d", w.Code)
	}
	w := postBatch(t, r, body)
	if w.Code != http.StatusOK {
		t.Fatalf("redelivery status = %d, want 200", w.Code)
	}
	if resp := decodeIngest(t, w); resp.Accepted != 0 || resp.Duplicates != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	if len(st.stored) != 2 {
		t.Fatalf("stored %d events, want 2", len(st.stored))
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("pure redelivery was published again")
	}
}

func TestIngestFillsMissingIDAndTimestamp(t *testing.T) {
	st := newFakeStore()
	r := newRouter(st, nil, nil)

	w := postBatch(t, r, `{"events":[{"name":"page_view"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	ev := st.stored[0]
	if ev.ID == "" {
		t.Error("missing id was not assigned")
	}
	if ev.Timestamp != fixedNow.UnixMilli() {
		t.Errorf("Timestamp = %d, want receive time", ev.Timestamp)
	}
	if ev.Properties == nil {
		t.Error("Properties should default to an empty map")
	}
}

func TestIngestAcceptsGzipCBOR(t *testing.T) {
	st := newFakeStore()
	r := newRouter(st, nil, nil)

	p, err := wire.Encode(models.EventBatch{Events: []models.Event{
		{ID: "c1", Name: "cbor_event", Timestamp: 5, Properties: map[string]interface{}{"n": "v"}},
	}}, wire.CBOR, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/analytics", bytes.NewReader(p.Body))
	req.Header.Set("Content-Type", p.ContentType)
	req.Header.Set("Content-Encoding", p.ContentEncoding)
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if st.stored[0].Name != "cbor_event" || st.stored[0].Properties["n"] != "v" {
		t.Fatalf("stored = %+v", st.stored[0])
	}
}

func TestIngestRejects(t *testing.T) {
	tooMany := make([]string, MaxBatchEvents+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf(`{"id":"e%d","name":"x"}`, i)
	}

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"malformed", `{"events":`, http.StatusBadRequest},
		{"empty batch", `{"events":[]}`, http.StatusBadRequest},
		{"missing name", `{"events":[{"id":"e1"}]}`, http.StatusBadRequest},
		{"too many", `{"events":[` + strings.Join(tooMany, ",") + `]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newFakeStore()
			w := postBatch(t, newRouter(st, nil, nil), tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if len(st.stored) != 0 {
				t.Fatal("rejected batch was stored")
			}
		})
	}
}

func TestIngestRequiresAPIKey(t *testing.T) {
	r := newRouter(newFakeStore(), nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/analytics", strings.NewReader(`{"events":[{"name":"a"}]}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestIngestStoreFailureIs500(t *testing.T) {
	st := newFakeStore()
	st.insertErr = errors.New("connection reset")
	pub := &fakePublisher{}
	w := postBatch(t, newRouter(st, pub, nil), `{"events":[{"id":"e1","name":"a"}]}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if len(pub.msgs) != 0 {
		t.Fatal("failed batch was published")
	}
}

func TestIngestPublishFailureStillSucceeds(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	w := postBatch(t, newRouter(newFakeStore(), pub, nil), `{"events":[{"id":"e1","name":"a"}]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
}

func TestStats(t *testing.T) {
	st := newFakeStore()
	st.count = 42
	r := newRouter(st, nil, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/stats?event_name=signup&from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00%2B01:00", nil)
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp models.EventCountResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.EventName != "signup" || resp.Count != 42 {
		t.Fatalf("resp = %+v", resp)
	}
	wantTo := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
	if st.countArgs[0] != "tenant1" || !st.countArgs[3].(time.Time).Equal(wantTo) {
		t.Fatalf("CountEvents args = %v", st.countArgs)
	}
}

func TestStatsValidation(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing params", "event_name=a", http.StatusBadRequest},
		{"bad from", "event_name=a&from=yesterday&to=2026-01-01T00:00:00Z", http.StatusBadRequest},
		{"bad to", "event_name=a&from=2026-01-01T00:00:00Z&to=later", http.StatusBadRequest},
		{"inverted window", "event_name=a&from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z", http.StatusBadRequest},
	}
	r := newRouter(newFakeStore(), nil, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/stats?"+tt.query, nil)
			req.Header.Set("X-API-Key", testKey)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestObservabilityLogsStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := newRouter(newFakeStore(), nil, logger)

	body := `{"type":"structured_log","timestamp":"2026-03-01T12:00:00Z","level":"ERROR",
		"message":"checkout failed","metadata":{"cart":"c1"},"error":{"name":"TypeError","message":"x is undefined"}}`
	req := httptest.NewRequest(http.MethodPost, "/observability", strings.NewReader(body))
	req.Header.Set("Service-Name", "web")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	out := buf.String()
	for _, want := range []string{"level=ERROR", `msg="checkout failed"`, "service=web", "error_name=TypeError"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestObservabilityRejectsUnknownType(t *testing.T) {
	r := newRouter(newFakeStore(), nil, nil)
	for _, body := range []string{`{"type":"trace"}`, `{"resourceSpans":[]}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/observability", strings.NewReader(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, w.Code)
		}
	}
}
