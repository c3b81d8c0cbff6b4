package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/event-pipeline/internal/models"
)

const maxLogBytes = 1 << 20

// RegisterObservabilityRoutes registers POST /observability, which accepts
// structured_log documents shipped by clients and re-emits them through
// logger. Other document types are rejected.
func RegisterObservabilityRoutes(r gin.IRoutes, logger *slog.Logger) {
	r.POST("/observability", func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxLogBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "error reading request body"})
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
			return
		}
		if envelope.Type != models.StructuredLogType {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown data type"})
			return
		}

		var rec models.StructuredLog
		if err := json.Unmarshal(body, &rec); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid structured log"})
			return
		}
		if rec.Service == "" {
			rec.Service = c.GetHeader("Service-Name")
		}

		attrs := []any{
			"source", "client",
			"service", rec.Service,
			"client_ts", rec.Timestamp,
		}
		if len(rec.Metadata) > 0 {
			attrs = append(attrs, "metadata", rec.Metadata)
		}
		if rec.Error != nil {
			attrs = append(attrs, "error_name", rec.Error.Name, "error", rec.Error.Message)
		}
		logger.Log(c.Request.Context(), clientLevel(rec.Level), rec.Message, attrs...)

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func clientLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "FATAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
