// Package bus fans ingested batches out to downstream consumers.
package bus

import (
	"context"

	"github.com/PratikDhanave/event-pipeline/internal/models"
)

// DefaultSubject is where the collector announces stored batches.
const DefaultSubject = "events.ingested"

// Publisher delivers a message to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, msg any) error
	Close() error
}

// IngestedBatch is published after the collector stores a batch. Events
// holds only the newly inserted ones; redelivered duplicates are omitted.
type IngestedBatch struct {
	TenantID   string         `json:"tenant_id"`
	ReceivedAt int64          `json:"received_at"`
	Duplicates int            `json:"duplicates"`
	Events     []models.Event `json:"events"`
}
