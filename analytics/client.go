package analytics

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PratikDhanave/event-pipeline/internal/delivery"
	"github.com/PratikDhanave/event-pipeline/internal/logging"
	"github.com/PratikDhanave/event-pipeline/internal/metrics"
	"github.com/PratikDhanave/event-pipeline/internal/models"
	"github.com/PratikDhanave/event-pipeline/internal/transport"
)

// Event is one tracked occurrence as it travels on the wire.
type Event = models.Event

// StatusError is returned when the collector answers with a non-2xx status.
type StatusError = transport.StatusError

// Client batches events and delivers them in the background. It is safe
// for concurrent use.
type Client struct {
	queue    *delivery.Queue
	beacon   *transport.Beacon
	metrics  *metrics.Delivery
	tags     map[string]string
	logger   *slog.Logger
	disabled bool

	closeOnce sync.Once
	closeErr  error
}

// NewClient resolves cfg against the environment and starts the flush timer.
// When the resolved config is disabled the returned Client accepts calls
// and does nothing.
func NewClient(cfg Config) (*Client, error) {
	s, err := resolve(cfg, os.Getenv)
	if err != nil {
		return nil, err
	}
	logger := clientLogger(cfg.Logger, s.debug)
	if s.disabled {
		logger.Debug("analytics disabled, events will be discarded")
		return &Client{disabled: true, logger: logger}, nil
	}
	if s.endpoint == "" {
		s.endpoint = DefaultEndpoint
	}
	if s.apiKey == "" {
		logger.Warn("no API key configured, the collector will reject events")
	}

	confirmable := transport.NewHTTP(transport.HTTPConfig{
		Endpoint: s.endpoint,
		APIKey:   s.apiKey,
		Encoding: cfg.Encoding,
		Gzip:     cfg.Gzip,
		Client:   cfg.HTTPClient,
	})

	c := &Client{tags: s.defaultTags, logger: logger, metrics: metrics.NewDelivery(s.endpoint)}
	var teardown transport.Transport = confirmable
	if !cfg.DisableBeacon {
		c.beacon = transport.NewBeacon(transport.BeaconConfig{
			Endpoint: s.endpoint,
			APIKey:   s.apiKey,
			Client:   cfg.HTTPClient,
			Logger:   logger,
		})
		teardown = transport.Fallback{Primary: c.beacon, Secondary: confirmable, Logger: logger}
	}

	c.queue, err = delivery.New(delivery.Config{
		BatchSize:         s.batchSize,
		FlushInterval:     s.flushInterval,
		MaxPending:        s.maxPending,
		Transport:         confirmable,
		TeardownTransport: teardown,
		Clock:             cfg.clock,
		Logger:            logger,
		Metrics:           c.metrics,
		NewID:             cfg.newID,
	})
	if err != nil {
		return nil, err
	}
	logger.Debug("analytics client started",
		"endpoint", s.endpoint,
		"batch_size", s.batchSize,
		"flush_interval", s.flushInterval,
	)
	return c, nil
}

// Track queues an event. It never fails: delivery problems are retried on
// later flushes and only surface in debug logs. Default tags are applied
// first so event properties win on conflict.
func (c *Client) Track(name string, properties map[string]any, userID string) {
	if c.disabled {
		return
	}
	if name == "" {
		c.logger.Debug("ignoring event without a name")
		return
	}

	props := properties
	if len(c.tags) > 0 {
		props = make(map[string]any, len(c.tags)+len(properties))
		for k, v := range c.tags {
			props[k] = v
		}
		for k, v := range properties {
			props[k] = v
		}
	}

	ev, err := c.queue.Enqueue(context.Background(), name, props, userID)
	if err != nil {
		c.logger.Debug("event not queued", "name", name, "error", err)
		return
	}
	c.logger.Debug("event queued", "name", ev.Name, "id", ev.ID)
}

// Flush sends everything pending now and returns the transport error, if
// any. Failed events stay queued.
func (c *Client) Flush(ctx context.Context) error {
	if c.disabled {
		return nil
	}
	return c.queue.Flush(ctx)
}

// Teardown runs a lifecycle flush without closing the client: pending
// events go out through the beacon, falling back to a confirmable send if
// the beacon refuses them. The timer keeps running and Track keeps
// accepting events. Hosts call it when the app is backgrounded or asked to
// checkpoint, for example on SIGHUP.
func (c *Client) Teardown(ctx context.Context) error {
	if c.disabled {
		return nil
	}
	return c.queue.Teardown(ctx)
}

// Pending returns the number of queued, undelivered events.
func (c *Client) Pending() int {
	if c.disabled {
		return 0
	}
	return c.queue.Len()
}

// Close stops accepting events, runs the teardown flush (beacon first,
// then a confirmable send if the beacon refuses) and waits for accepted
// beacons until ctx ends. Later calls return the first result.
func (c *Client) Close(ctx context.Context) error {
	if c.disabled {
		return nil
	}
	c.closeOnce.Do(func() {
		err := c.queue.Close(ctx)
		if c.beacon != nil {
			err = errors.Join(err, c.beacon.Close(ctx))
		}
		c.closeErr = err
	})
	return c.closeErr
}

// RegisterMetrics exposes this client's delivery metrics on reg, labelled
// with its endpoint. Calling it again with the same registerer is a no-op.
func (c *Client) RegisterMetrics(reg prometheus.Registerer) error {
	if c.disabled {
		return nil
	}
	return c.metrics.Register(reg)
}

func clientLogger(l *slog.Logger, debug bool) *slog.Logger {
	if !debug {
		return logging.Discard()
	}
	if l != nil {
		return l
	}
	return logging.New(os.Stderr, true)
}
