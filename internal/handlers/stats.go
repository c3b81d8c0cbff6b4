package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PratikDhanave/event-pipeline/internal/auth"
	"github.com/PratikDhanave/event-pipeline/internal/models"
)

// RegisterStatsRoutes registers the serving-path endpoint.
//
// GET /stats?event_name=...&from=...&to=...
// - Requires an API key (tenant context)
// - Returns count for the window [from,to)
func RegisterStatsRoutes(r gin.IRoutes, st EventStore) {
	r.GET("/stats", func(c *gin.Context) {
		tenantID := auth.TenantID(c)
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		eventName := c.Query("event_name")
		fromStr := c.Query("from")
		toStr := c.Query("to")

		// Required query params per contract.
		if eventName == "" || fromStr == "" || toStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "event_name, from, to are required"})
			return
		}

		from, err := parseRFC3339(fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		to, err := parseRFC3339(toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}

		// Validate window to avoid confusing results.
		if !from.Before(to) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be < to"})
			return
		}

		count, err := st.CountEvents(c.Request.Context(), tenantID, eventName, from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, models.EventCountResponse{
			EventName: eventName,
			Count:     count,
		})
	})
}

// parseRFC3339 parses an RFC3339 timestamp and normalizes it to UTC.
func parseRFC3339(ts string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
