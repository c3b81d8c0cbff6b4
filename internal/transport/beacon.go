package transport

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/PratikDhanave/event-pipeline/internal/logging"
	"github.com/PratikDhanave/event-pipeline/internal/models"
	"github.com/PratikDhanave/event-pipeline/internal/wire"
)

// DefaultBeaconCapacity bounds the number of accepted but unsent beacons.
const DefaultBeaconCapacity = 64

// BeaconConfig configures the best-effort transport.
type BeaconConfig struct {
	Endpoint string
	APIKey   string
	Capacity int          // <= 0 uses DefaultBeaconCapacity
	Client   *http.Client // nil uses DefaultHTTPClient
	Logger   *slog.Logger // nil discards
}

// Beacon accepts batches without waiting on the network. Accepted batches
// are posted by a background goroutine that keeps running until Close, so a
// teardown flush can return before delivery finishes. The collector's
// response is never reported back: acceptance is the only outcome.
//
// Beacons authenticate with X-API-Key rather than a bearer token.
type Beacon struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBeacon(cfg BeaconConfig) *Beacon {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultBeaconCapacity
	}
	client := cfg.Client
	if client == nil {
		client = DefaultHTTPClient()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Beacon{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   client,
		logger:   logger,
		pending:  make(chan []byte, capacity),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

// Send encodes the batch and queues it. It never blocks on I/O. It returns
// ErrRejected when the beacon is closed or its queue is full.
func (b *Beacon) Send(_ context.Context, events []models.Event) error {
	p, err := wire.Encode(models.EventBatch{Events: events}, wire.JSON, false)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrRejected
	}
	select {
	case b.pending <- p.Body:
		return nil
	default:
		return ErrRejected
	}
}

// Close stops accepting beacons and waits for queued ones to be posted.
// If ctx ends first, in-flight requests are cancelled and the remaining
// beacons are abandoned.
func (b *Beacon) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return nil
	}
	b.closed = true
	close(b.pending)
	b.mu.Unlock()

	select {
	case <-b.done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-b.done
		return ctx.Err()
	}
}

func (b *Beacon) run() {
	defer close(b.done)
	for body := range b.pending {
		b.post(body)
	}
}

func (b *Beacon) post(body []byte) {
	if b.ctx.Err() != nil {
		b.logger.Debug("beacon abandoned", "bytes", len(body))
		return
	}
	req, err := http.NewRequestWithContext(b.ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		b.logger.Debug("beacon request build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", wire.ContentTypeJSON)
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Debug("beacon post failed", "error", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.logger.Debug("beacon not accepted by collector", "status", resp.StatusCode)
	}
}
