package handlers

import (
	"context"
	"time"

	"github.com/PratikDhanave/event-pipeline/internal/models"
)

// EventStore is the persistence the collector handlers need.
// *store.PostgresStore satisfies it.
type EventStore interface {
	InsertEvents(ctx context.Context, tenantID string, events []models.Event) ([]models.Event, error)
	CountEvents(ctx context.Context, tenantID, eventName string, from, to time.Time) (int64, error)
}
