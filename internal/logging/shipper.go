package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/PratikDhanave/event-pipeline/internal/models"
)

// Mode selects how a Shipper delivers records. It is fixed at construction.
type Mode int

const (
	// ModeSync posts each record inside Handle.
	ModeSync Mode = iota
	// ModeAsync hands records to a background sender; Close drains it.
	ModeAsync
)

const defaultShipperBuffer = 256

// Output delivers one record. The default posts it to the collector.
type Output func(ctx context.Context, rec models.StructuredLog) error

// ShipperConfig configures a Shipper.
type ShipperConfig struct {
	Endpoint        string // collector /observability URL
	Service         string
	MinLevel        slog.Level
	DefaultMetadata map[string]interface{}
	Mode            Mode
	Buffer          int // async queue capacity, <= 0 uses 256
	Client          *http.Client
	Output          Output       // overrides the HTTP output
	Fallback        *slog.Logger // receives output failures; nil discards
}

// Shipper is a slog.Handler that turns records into StructuredLog
// documents. Output failures never reach the caller; they are reported to
// the fallback logger.
type Shipper struct {
	cfg    ShipperConfig
	attrs  []slog.Attr
	prefix string
	out    *shipperOutput
}

type shipperOutput struct {
	send     Output
	fallback *slog.Logger
	mode     Mode

	mu     sync.Mutex
	closed bool
	queue  chan models.StructuredLog
	done   chan struct{}
}

func NewShipper(cfg ShipperConfig) *Shipper {
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = Discard()
	}
	send := cfg.Output
	if send == nil {
		send = HTTPOutput(cfg.Endpoint, cfg.Service, cfg.Client)
	}

	out := &shipperOutput{send: send, fallback: fallback, mode: cfg.Mode}
	if cfg.Mode == ModeAsync {
		capacity := cfg.Buffer
		if capacity <= 0 {
			capacity = defaultShipperBuffer
		}
		out.queue = make(chan models.StructuredLog, capacity)
		out.done = make(chan struct{})
		go out.run()
	}
	return &Shipper{cfg: cfg, out: out}
}

func (s *Shipper) Enabled(_ context.Context, level slog.Level) bool {
	return level >= s.cfg.MinLevel
}

func (s *Shipper) Handle(ctx context.Context, r slog.Record) error {
	rec := models.StructuredLog{
		Type:      models.StructuredLogType,
		Timestamp: r.Time.UTC().Format(time.RFC3339Nano),
		Level:     levelName(r.Level),
		Message:   r.Message,
		Service:   s.cfg.Service,
		Metadata:  make(map[string]interface{}, len(s.cfg.DefaultMetadata)+len(s.attrs)+r.NumAttrs()),
	}
	for k, v := range s.cfg.DefaultMetadata {
		rec.Metadata[k] = v
	}
	for _, a := range s.attrs {
		s.addAttr(&rec, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		s.addAttr(&rec, s.prefix, a)
		return true
	})
	if len(rec.Metadata) == 0 {
		rec.Metadata = nil
	}

	s.out.deliver(ctx, rec)
	return nil
}

func (s *Shipper) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *s
	clone.attrs = make([]slog.Attr, 0, len(s.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, s.attrs...)
	for _, a := range attrs {
		clone.attrs = append(clone.attrs, slog.Attr{Key: s.prefix + a.Key, Value: a.Value})
	}
	return &clone
}

func (s *Shipper) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	clone := *s
	clone.prefix = s.prefix + name + "."
	return &clone
}

// Close drains queued records in async mode, giving up when ctx ends.
func (s *Shipper) Close(ctx context.Context) error {
	return s.out.close(ctx)
}

func (s *Shipper) addAttr(rec *models.StructuredLog, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			s.addAttr(rec, prefix+a.Key+".", ga)
		}
		return
	}
	if err, ok := v.Any().(error); ok && rec.Error == nil {
		rec.Error = &models.LogError{Name: fmt.Sprintf("%T", err), Message: err.Error()}
		return
	}
	rec.Metadata[prefix+a.Key] = v.Any()
}

func (o *shipperOutput) deliver(ctx context.Context, rec models.StructuredLog) {
	if o.mode == ModeSync {
		if err := o.send(ctx, rec); err != nil {
			o.fallback.Warn("failed to ship log record", "error", err, "level", rec.Level)
		}
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	select {
	case o.queue <- rec:
	default:
		o.fallback.Warn("log shipper queue full, dropping record", "level", rec.Level)
	}
}

func (o *shipperOutput) run() {
	defer close(o.done)
	for rec := range o.queue {
		if err := o.send(context.Background(), rec); err != nil {
			o.fallback.Warn("failed to ship log record", "error", err, "level", rec.Level)
		}
	}
}

func (o *shipperOutput) close(ctx context.Context) error {
	if o.mode != ModeAsync {
		return nil
	}
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()

	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HTTPOutput posts each record as JSON to endpoint. Non-2xx responses are errors.
func HTTPOutput(endpoint, service string, client *http.Client) Output {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context, rec models.StructuredLog) error {
		if endpoint == "" {
			return errors.New("no observability endpoint configured")
		}
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling log record: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Service-Name", service)

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("posting log record: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("collector responded %s: %s", resp.Status, bytes.TrimSpace(msg))
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
}
