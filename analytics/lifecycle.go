package analytics

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// NotifyContext returns a context cancelled on SIGINT or SIGTERM.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// CloseOnDone runs the teardown flush once ctx is done, bounded by timeout,
// and reports the result on the returned channel. Pair it with
// NotifyContext to flush when the process is asked to stop.
func (c *Client) CloseOnDone(ctx context.Context, timeout time.Duration) <-chan error {
	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		done <- c.Close(closeCtx)
	}()
	return done
}
