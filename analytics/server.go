package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/PratikDhanave/event-pipeline/internal/models"
	"github.com/PratikDhanave/event-pipeline/internal/transport"
)

var (
	// ErrMissingEndpoint is returned by NewServer when no endpoint is configured.
	ErrMissingEndpoint = errors.New("analytics: no server endpoint provided")
	// ErrMissingAPIKey is returned by NewServer when no API key is configured.
	ErrMissingAPIKey = errors.New("analytics: no API key provided")
)

// Server sends each event as its own batch and reports the outcome. Nothing
// is buffered or retried.
type Server struct {
	transport transport.Transport
	logger    *slog.Logger
	disabled  bool
	now       func() time.Time
	newID     func() string
}

// NewServer resolves cfg against the environment. Unlike clients there is
// no default endpoint: both endpoint and API key must be configured.
func NewServer(cfg Config) (*Server, error) {
	s, err := resolve(cfg, os.Getenv)
	if err != nil {
		return nil, err
	}
	logger := clientLogger(cfg.Logger, s.debug)
	if s.disabled {
		return &Server{disabled: true, logger: logger}, nil
	}
	if s.endpoint == "" {
		return nil, ErrMissingEndpoint
	}
	if s.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	srv := &Server{
		transport: transport.NewHTTP(transport.HTTPConfig{
			Endpoint: s.endpoint,
			APIKey:   s.apiKey,
			Encoding: cfg.Encoding,
			Gzip:     cfg.Gzip,
			Client:   cfg.HTTPClient,
		}),
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	if cfg.clock != nil {
		srv.now = cfg.clock.Now
	}
	if cfg.newID != nil {
		srv.newID = cfg.newID
	}
	return srv, nil
}

// Track stamps and sends one event, returning any delivery error.
func (s *Server) Track(ctx context.Context, name string, properties map[string]any, userID string) error {
	if s.disabled {
		return nil
	}
	if name == "" {
		return errors.New("analytics: event name required")
	}
	props := make(map[string]any, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	ev := models.Event{
		ID:         s.newID(),
		Name:       name,
		Timestamp:  s.now().UnixMilli(),
		Properties: props,
		UserID:     userID,
	}
	if err := s.transport.Send(ctx, []models.Event{ev}); err != nil {
		s.logger.Debug("failed to send event", "name", name, "error", err)
		return fmt.Errorf("sending event %q: %w", name, err)
	}
	return nil
}
