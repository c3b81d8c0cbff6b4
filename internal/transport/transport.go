// Package transport delivers event batches to the collection endpoint.
//
// Two strategies exist. HTTP is the confirmable send: it reports success only
// for a 2xx response. Beacon is the best-effort send used on teardown: it only
// reports whether the batch was accepted for background delivery. Fallback
// chains them so a rejected beacon still gets a confirmable attempt.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/PratikDhanave/event-pipeline/internal/models"
)

// Transport sends one batch. Implementations hold no state between calls
// that affects the outcome of a later call.
type Transport interface {
	Send(ctx context.Context, events []models.Event) error
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, events []models.Event) error

func (f Func) Send(ctx context.Context, events []models.Event) error { return f(ctx, events) }

// ErrRejected is returned by Beacon when it cannot accept a batch.
var ErrRejected = errors.New("beacon rejected batch")

// StatusError reports a non-2xx response from the collector.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("collector responded %s", e.Status)
}

// Fallback tries Primary and, when it fails or is nil, Secondary.
type Fallback struct {
	Primary   Transport
	Secondary Transport
	Logger    *slog.Logger
}

func (f Fallback) Send(ctx context.Context, events []models.Event) error {
	if f.Primary != nil {
		err := f.Primary.Send(ctx, events)
		if err == nil {
			return nil
		}
		if f.Logger != nil {
			f.Logger.Debug("primary transport failed, falling back", "error", err, "events", len(events))
		}
	}
	if f.Secondary == nil {
		return errors.New("no fallback transport configured")
	}
	return f.Secondary.Send(ctx, events)
}

// DefaultHTTPClient returns a client with pooled keep-alive connections and
// short dial timeouts, suited to many small POSTs against one host.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   2 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   2 * time.Second,
			ExpectContinueTimeout: 500 * time.Millisecond,
		},
		Timeout: 10 * time.Second,
	}
}
