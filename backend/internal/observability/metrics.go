package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the service
type Collector struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec

	// Retrieval metrics
	RetrievedEvents prometheus.Histogram

	// Failure metrics
	GenerationFallbacks prometheus.Counter
	GraphWriteFailures  prometheus.Counter
}

// NewCollector creates a metrics collector on its own registry
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of chat turns handled",
		},
		[]string{"mode", "status"},
	)

	turnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Chat turn duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	retrievedEvents := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_events",
			Help:      "Number of past events retrieved per graph-mode turn",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 10},
		},
	)

	generationFallbacks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fallbacks_total",
			Help:      "Total number of turns answered with the fallback response",
		},
	)

	graphWriteFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "graph_write_failures_total",
			Help:      "Total number of interaction writes that failed after the response was generated",
		},
	)

	registry.MustRegister(
		turnsTotal,
		turnDuration,
		retrievedEvents,
		generationFallbacks,
		graphWriteFailures,
	)

	return &Collector{
		registry:            registry,
		TurnsTotal:          turnsTotal,
		TurnDuration:        turnDuration,
		RetrievedEvents:     retrievedEvents,
		GenerationFallbacks: generationFallbacks,
		GraphWriteFailures:  graphWriteFailures,
	}
}

// Handler exposes the collector's registry for scraping
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
