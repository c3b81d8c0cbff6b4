package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery holds the collectors of one delivery queue. Every series carries
// a constant endpoint label, so queues shipping to different collectors
// stay distinct on a shared registry.
type Delivery struct {
	EventsEnqueued  prometheus.Counter
	EventsDelivered prometheus.Counter
	EventsRequeued  prometheus.Counter
	EventsDropped   prometheus.Counter
	Flushes         *prometheus.CounterVec
	FlushDuration   prometheus.Histogram
}

// NewDelivery builds unregistered collectors labelled with endpoint.
func NewDelivery(endpoint string) *Delivery {
	labels := prometheus.Labels{"endpoint": endpoint}
	return &Delivery{
		EventsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pipeline_events_enqueued_total",
			Help:        "Total number of events accepted into a delivery queue",
			ConstLabels: labels,
		}),
		EventsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pipeline_events_delivered_total",
			Help:        "Total number of events in batches the transport reported as sent",
			ConstLabels: labels,
		}),
		EventsRequeued: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pipeline_events_requeued_total",
			Help:        "Total number of events put back on the queue after a failed send",
			ConstLabels: labels,
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pipeline_events_dropped_total",
			Help:        "Total number of oldest events dropped because the queue exceeded its bound",
			ConstLabels: labels,
		}),
		Flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_flushes_total",
			Help:        "Total number of non-empty flush attempts by trigger and outcome",
			ConstLabels: labels,
		}, []string{"trigger", "outcome"}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "pipeline_flush_duration_seconds",
			Help:        "Duration of transport sends during flush",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
	}
}

func (d *Delivery) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		d.EventsEnqueued,
		d.EventsDelivered,
		d.EventsRequeued,
		d.EventsDropped,
		d.Flushes,
		d.FlushDuration,
	}
}

// Register adds the collectors to reg. Registering the same Delivery twice
// is a no-op; a different Delivery for the same endpoint is an error.
func (d *Delivery) Register(reg prometheus.Registerer) error {
	for _, c := range d.collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) && are.ExistingCollector == c {
				continue
			}
			return fmt.Errorf("registering delivery metrics: %w", err)
		}
	}
	return nil
}

// Collector metrics.
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"handler", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"handler", "method"},
	)

	IngestedEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_events_ingested_total",
			Help: "Total number of events stored by the collector",
		},
		[]string{"tenant"},
	)

	DuplicateEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collector_events_duplicate_total",
			Help: "Total number of redelivered events ignored by idempotent insert",
		},
		[]string{"tenant"},
	)

	IngestBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "collector_batch_size",
			Help:    "Number of events per ingested batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	PublishFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "collector_bus_publish_failures_total",
			Help: "Total number of ingested batches that could not be published to the bus",
		},
	)
)

// RegisterCollector registers the collector metrics.
func RegisterCollector(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequestsTotal)
	reg.MustRegister(HTTPRequestDuration)
	reg.MustRegister(IngestedEventsTotal)
	reg.MustRegister(DuplicateEventsTotal)
	reg.MustRegister(IngestBatchSize)
	reg.MustRegister(PublishFailuresTotal)
}
