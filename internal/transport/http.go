package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/PratikDhanave/event-pipeline/internal/models"
	"github.com/PratikDhanave/event-pipeline/internal/wire"
)

// HTTPConfig configures the confirmable transport.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Encoding wire.Encoding
	Gzip     bool
	Client   *http.Client // nil uses DefaultHTTPClient
}

// HTTP posts batches and reports success iff the collector answers 2xx.
type HTTP struct {
	endpoint string
	apiKey   string
	encoding wire.Encoding
	gzip     bool
	client   *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	client := cfg.Client
	if client == nil {
		client = DefaultHTTPClient()
	}
	return &HTTP{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		encoding: cfg.Encoding,
		gzip:     cfg.Gzip,
		client:   client,
	}
}

// Send POSTs {"events": [...]} with a bearer credential.
func (h *HTTP) Send(ctx context.Context, events []models.Event) error {
	p, err := wire.Encode(models.EventBatch{Events: events}, h.encoding, h.gzip)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(p.Body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", p.ContentType)
	if p.ContentEncoding != "" {
		req.Header.Set("Content-Encoding", p.ContentEncoding)
	}
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting batch to %s: %w", h.endpoint, err)
	}
	defer resp.Body.Close()
	// Drain so the connection goes back to the pool.
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
