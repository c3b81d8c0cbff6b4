package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/PratikDhanave/event-pipeline/internal/auth"
	"github.com/PratikDhanave/event-pipeline/internal/bus"
	"github.com/PratikDhanave/event-pipeline/internal/metrics"
	"github.com/PratikDhanave/event-pipeline/internal/models"
	"github.com/PratikDhanave/event-pipeline/internal/wire"
)

const (
	// MaxBatchEvents caps the events accepted in one request.
	MaxBatchEvents = 1000
	// MaxBodyBytes caps the (possibly compressed) request body.
	MaxBodyBytes = 5 << 20
)

// Ingestor stores batches posted to /analytics and announces them on the bus.
type Ingestor struct {
	Store     EventStore
	Publisher bus.Publisher // nil disables fan-out
	Subject   string
	Logger    *slog.Logger
	Now       func() time.Time
}

// RegisterAnalyticsRoutes registers the ingestion-path endpoint.
//
// POST /analytics
// - Requires Authorization: Bearer or X-API-Key (tenant context)
// - Body {"events":[...]} as JSON or CBOR, optionally gzip
// - Durable: returns success only after the DB transaction commits
// - Idempotent: redelivered events detected via (tenant_id, event_id) uniqueness
func RegisterAnalyticsRoutes(r gin.IRoutes, in *Ingestor) {
	r.POST("/analytics", in.ingest)
}

func (in *Ingestor) ingest(c *gin.Context) {
	tenantID := auth.TenantID(c)
	if tenantID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)
	batch, err := wire.Decode(body, c.GetHeader("Content-Type"), c.GetHeader("Content-Encoding"))
	if err != nil {
		in.logger().Debug("rejecting undecodable batch", "tenant", tenantID, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	// Required fields per contract.
	if len(batch.Events) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "events required"})
		return
	}
	if len(batch.Events) > MaxBatchEvents {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("at most %d events per batch", MaxBatchEvents)})
		return
	}

	now := in.now()
	for i := range batch.Events {
		ev := &batch.Events[i]
		if ev.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("events[%d].name required", i)})
			return
		}
		// Without an id the collector cannot dedupe a retried batch.
		if ev.ID == "" {
			ev.ID = uuid.New().String()
		}
		if ev.Timestamp == 0 {
			ev.Timestamp = now.UnixMilli()
		}
		if ev.Properties == nil {
			ev.Properties = map[string]interface{}{}
		}
	}

	inserted, err := in.Store.InsertEvents(c.Request.Context(), tenantID, batch.Events)
	if err != nil {
		in.logger().Error("storing batch", "tenant", tenantID, "events", len(batch.Events), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db insert failed"})
		return
	}

	duplicates := len(batch.Events) - len(inserted)
	metrics.IngestBatchSize.Observe(float64(len(batch.Events)))
	metrics.IngestedEventsTotal.WithLabelValues(tenantID).Add(float64(len(inserted)))
	metrics.DuplicateEventsTotal.WithLabelValues(tenantID).Add(float64(duplicates))

	if len(inserted) > 0 && in.Publisher != nil {
		msg := bus.IngestedBatch{
			TenantID:   tenantID,
			ReceivedAt: now.UnixMilli(),
			Duplicates: duplicates,
			Events:     inserted,
		}
		// Stored is what the client is told about; fan-out is best effort.
		if err := in.Publisher.Publish(c.Request.Context(), in.subject(), msg); err != nil {
			metrics.PublishFailuresTotal.Inc()
			in.logger().Warn("publishing ingested batch", "tenant", tenantID, "subject", in.subject(), "error", err)
		}
	}

	// 201 when anything new was stored, 200 for a pure redelivery.
	status := http.StatusCreated
	if len(inserted) == 0 {
		status = http.StatusOK
	}
	c.JSON(status, models.EventIngestResponse{
		Accepted:   len(inserted),
		Duplicates: duplicates,
	})
}

func (in *Ingestor) now() time.Time {
	if in.Now != nil {
		return in.Now()
	}
	return time.Now()
}

func (in *Ingestor) subject() string {
	if in.Subject != "" {
		return in.Subject
	}
	return bus.DefaultSubject
}

func (in *Ingestor) logger() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}
