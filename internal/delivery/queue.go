// Package delivery buffers events in memory and delivers them in batches.
//
// A Queue flushes on three triggers: the pending count reaching BatchSize
// (synchronously, inside Enqueue), a periodic timer, and an explicit
// teardown. Every flush detaches the whole pending buffer before calling
// the transport, so events enqueued during a send land in a fresh buffer.
// A failed send puts the batch back in front of anything enqueued since,
// preserving FIFO order for the next attempt. There is no backoff and no
// retry cap: the next trigger simply tries again.
//
// Delivery is at-least-once. A batch the collector stored but whose
// response was lost will be sent again; events carry an ID so the
// collector can ignore the duplicate.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/PratikDhanave/event-pipeline/internal/logging"
	"github.com/PratikDhanave/event-pipeline/internal/metrics"
	"github.com/PratikDhanave/event-pipeline/internal/models"
	"github.com/PratikDhanave/event-pipeline/internal/transport"
)

const (
	DefaultBatchSize     = 10
	DefaultFlushInterval = 5 * time.Second
	DefaultMaxPending    = 10000
)

// Trigger names what caused a flush. It labels metrics and log lines.
type Trigger string

const (
	TriggerSize     Trigger = "size"
	TriggerTimer    Trigger = "timer"
	TriggerTeardown Trigger = "teardown"
	TriggerManual   Trigger = "manual"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("delivery queue closed")

// Config configures a Queue. Transport is required.
type Config struct {
	// BatchSize is the pending count that triggers an immediate flush.
	// Values <= 0 use DefaultBatchSize.
	BatchSize int
	// FlushInterval is the periodic flush cadence. Zero disables the timer.
	FlushInterval time.Duration
	// MaxPending bounds the buffer. When exceeded the oldest events are
	// dropped. Zero uses DefaultMaxPending; negative means unbounded.
	MaxPending int

	// Transport is the confirmable send used by size, timer and manual flushes.
	Transport transport.Transport
	// TeardownTransport is used by Teardown and Close. Nil falls back to Transport.
	TeardownTransport transport.Transport

	Clock   clockwork.Clock   // nil uses the real clock
	Logger  *slog.Logger      // nil discards
	Metrics *metrics.Delivery // nil records into unregistered collectors
	NewID   func() string
}

// Queue is the delivery queue. It exclusively owns the pending buffer.
type Queue struct {
	batchSize  int
	maxPending int
	transport  transport.Transport
	teardown   transport.Transport
	clock      clockwork.Clock
	logger     *slog.Logger
	metrics    *metrics.Delivery
	newID      func() string

	mu        sync.Mutex
	pending   []models.Event
	lastStamp int64
	dropped   uint64
	closed    bool

	// flushing is a one-slot semaphore serializing flushes, so a failed
	// batch is requeued before the next flush detaches. Waiting for it
	// honours the caller's context.
	flushing chan struct{}

	// loopCtx bounds timer flushes; it is cancelled when the timer stops.
	loopCtx    context.Context
	loopCancel context.CancelFunc
	stop       chan struct{}
	loopDone   chan struct{}
	stopOnce   sync.Once
	closeOnce  sync.Once
	closeErr   error
}

// New creates a Queue and starts its flush timer when FlushInterval > 0.
func New(cfg Config) (*Queue, error) {
	if cfg.Transport == nil {
		return nil, errors.New("delivery: transport required")
	}
	q := &Queue{
		batchSize:  cfg.BatchSize,
		maxPending: cfg.MaxPending,
		transport:  cfg.Transport,
		teardown:   cfg.TeardownTransport,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		newID:      cfg.NewID,
		flushing:   make(chan struct{}, 1),
		stop:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	q.loopCtx, q.loopCancel = context.WithCancel(context.Background())
	if q.batchSize <= 0 {
		q.batchSize = DefaultBatchSize
	}
	if q.maxPending == 0 {
		q.maxPending = DefaultMaxPending
	}
	if q.teardown == nil {
		q.teardown = q.transport
	}
	if q.clock == nil {
		q.clock = clockwork.NewRealClock()
	}
	if q.logger == nil {
		q.logger = logging.Discard()
	}
	if q.metrics == nil {
		q.metrics = metrics.NewDelivery("")
	}
	if q.newID == nil {
		q.newID = uuid.NewString
	}

	if cfg.FlushInterval > 0 {
		ticker := q.clock.NewTicker(cfg.FlushInterval)
		go q.runFlushLoop(ticker)
	} else {
		close(q.loopDone)
	}
	return q, nil
}

// Enqueue stamps and appends an event, flushing inline when the pending
// count reaches BatchSize. Delivery failures are never returned: the
// contract is acceptance into the buffer. The properties map is copied.
func (q *Queue) Enqueue(ctx context.Context, name string, properties map[string]interface{}, userID string) (models.Event, error) {
	props := make(map[string]interface{}, len(properties))
	for k, v := range properties {
		props[k] = v
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return models.Event{}, ErrClosed
	}
	ts := q.clock.Now().UnixMilli()
	if ts < q.lastStamp {
		ts = q.lastStamp
	}
	q.lastStamp = ts

	ev := models.Event{
		ID:         q.newID(),
		Name:       name,
		Timestamp:  ts,
		Properties: props,
		UserID:     userID,
	}
	q.pending = append(q.pending, ev)
	dropped := q.trimLocked()
	due := len(q.pending) >= q.batchSize
	q.mu.Unlock()

	q.metrics.EventsEnqueued.Inc()
	q.reportDropped(dropped)

	if due {
		_ = q.flush(ctx, TriggerSize, q.transport)
	}
	return ev, nil
}

// Flush delivers everything pending through the confirmable transport.
// On failure the events are requeued and the transport error returned.
func (q *Queue) Flush(ctx context.Context) error {
	return q.flush(ctx, TriggerManual, q.transport)
}

// Teardown is the lifecycle-end flush: it sends pending events through the
// teardown transport without waiting for the timer. Each call is one
// teardown event; callers fire it once per event. The queue stays open.
// When a flush is already in flight, Teardown waits for it only until ctx
// ends and then returns ctx.Err() with the events still pending.
func (q *Queue) Teardown(ctx context.Context) error {
	return q.flush(ctx, TriggerTeardown, q.teardown)
}

// Close rejects further events, runs a final teardown flush and then
// cancels the timer, aborting any timer flush still in flight. Neither
// step outlives ctx. It is safe to call more than once; later calls
// return the first result.
func (q *Queue) Close(ctx context.Context) error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()

		err := q.Teardown(ctx)
		if stopErr := q.stopTimer(ctx); err == nil {
			err = stopErr
		}
		if n := q.Len(); n > 0 {
			q.logger.Warn("delivery queue closed with undelivered events", "events", n)
		}
		q.closeErr = err
	})
	return q.closeErr
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dropped returns how many events were discarded by the MaxPending bound.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) flush(ctx context.Context, trigger Trigger, tr transport.Transport) error {
	select {
	case q.flushing <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-q.flushing }()

	batch := q.detach()
	if len(batch) == 0 {
		return nil
	}

	start := q.clock.Now()
	err := tr.Send(ctx, batch)
	q.metrics.FlushDuration.Observe(q.clock.Since(start).Seconds())

	if err != nil {
		dropped := q.requeue(batch)
		q.reportDropped(dropped)
		q.metrics.Flushes.WithLabelValues(string(trigger), "failure").Inc()
		q.metrics.EventsRequeued.Add(float64(len(batch)))
		q.logger.Debug("flush failed, events requeued",
			"trigger", trigger,
			"events", len(batch),
			"error", err,
		)
		return err
	}

	q.metrics.Flushes.WithLabelValues(string(trigger), "success").Inc()
	q.metrics.EventsDelivered.Add(float64(len(batch)))
	q.logger.Debug("flush delivered", "trigger", trigger, "events", len(batch))
	return nil
}

// detach hands the whole pending buffer to the caller and resets it.
func (q *Queue) detach() []models.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.pending
	q.pending = nil
	return batch
}

// requeue puts batch in front of whatever was enqueued during the send.
func (q *Queue) requeue(batch []models.Event) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]models.Event, 0, len(batch)+len(q.pending))
	merged = append(merged, batch...)
	merged = append(merged, q.pending...)
	q.pending = merged
	return q.trimLocked()
}

// trimLocked enforces MaxPending by dropping the oldest events.
func (q *Queue) trimLocked() int {
	if q.maxPending < 0 || len(q.pending) <= q.maxPending {
		return 0
	}
	over := len(q.pending) - q.maxPending
	kept := make([]models.Event, q.maxPending)
	copy(kept, q.pending[over:])
	q.pending = kept
	q.dropped += uint64(over)
	return over
}

func (q *Queue) reportDropped(n int) {
	if n == 0 {
		return
	}
	q.metrics.EventsDropped.Add(float64(n))
	q.logger.Warn("delivery queue full, dropped oldest events", "dropped", n, "max_pending", q.maxPending)
}

func (q *Queue) runFlushLoop(ticker clockwork.Ticker) {
	defer close(q.loopDone)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			_ = q.flush(q.loopCtx, TriggerTimer, q.transport)
		case <-q.stop:
			return
		}
	}
}

// stopTimer cancels the timer and any timer flush in flight, then waits
// for the loop to exit until ctx ends.
func (q *Queue) stopTimer(ctx context.Context) error {
	q.stopOnce.Do(func() {
		close(q.stop)
		q.loopCancel()
	})
	select {
	case <-q.loopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
