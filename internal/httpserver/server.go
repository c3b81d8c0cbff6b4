package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PratikDhanave/event-pipeline/internal/auth"
	"github.com/PratikDhanave/event-pipeline/internal/bus"
	"github.com/PratikDhanave/event-pipeline/internal/config"
	"github.com/PratikDhanave/event-pipeline/internal/handlers"
)

// Store is the persistence the router needs: the handler queries plus a
// readiness probe.
type Store interface {
	handlers.EventStore
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Store     Store
	Publisher bus.Publisher       // nil disables fan-out
	Logger    *slog.Logger        // nil uses slog.Default()
	Gatherer  prometheus.Gatherer // nil uses the default registry
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, /metrics, /observability, CORS preflights
// Authenticated: /analytics, /stats
func NewRouter(cfg config.Config, deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(instrument())
	r.Use(requestLog(logger))
	r.Use(cors(cfg.CORSOrigin))

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Browsers preflight cross-origin posts; answer before auth runs.
	r.OPTIONS("/analytics", preflight)
	r.OPTIONS("/observability", preflight)

	handlers.RegisterObservabilityRoutes(r, logger)

	// Auth group enforces tenant context via Bearer token or X-API-Key.
	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(cfg.APIKeys))

	handlers.RegisterAnalyticsRoutes(authGroup, &handlers.Ingestor{
		Store:     deps.Store,
		Publisher: deps.Publisher,
		Subject:   cfg.NATSSubject,
		Logger:    logger,
	})
	handlers.RegisterStatsRoutes(authGroup, deps.Store)

	return r
}

func preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
