// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector aggregates the engine's prometheus metrics.
type Collector struct {
	retrievalsTotal   *prometheus.CounterVec
	retrievalDuration *prometheus.HistogramVec
	chunksProduced    prometheus.Counter
	embedCacheHits    prometheus.Counter
	embedCacheMisses  prometheus.Counter
}

// NewCollector registers the engine metrics on reg. Pass a fresh
// prometheus.NewRegistry() in tests to keep them isolated.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Retrieval calls by mode and status.",
		}, []string{"mode", "status"}),
		retrievalDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_duration_seconds",
			Help:      "Retrieval latency by mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		chunksProduced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_produced_total",
			Help:      "Chunks produced by the chunker.",
		}),
		embedCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Embedding cache hits.",
		}),
		embedCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_misses_total",
			Help:      "Embedding cache misses.",
		}),
	}
}

// ObserveRetrieval records one retrieval call.
func (c *Collector) ObserveRetrieval(mode, status string, elapsed time.Duration) {
	c.retrievalsTotal.WithLabelValues(mode, status).Inc()
	c.retrievalDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// AddChunks records chunker output.
func (c *Collector) AddChunks(n int) {
	c.chunksProduced.Add(float64(n))
}

// EmbedCacheHit records an embedding cache hit.
func (c *Collector) EmbedCacheHit() { c.embedCacheHits.Inc() }

// EmbedCacheMiss records an embedding cache miss.
func (c *Collector) EmbedCacheMiss() { c.embedCacheMisses.Inc() }
