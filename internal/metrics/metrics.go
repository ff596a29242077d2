// file: internal/metrics/metrics.go
// version: 2.0.0
// guid: 9f8e7d6c-5b4a-3210-9fed-cba876543210

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_library",
		Name:      "metadata_cache_lookups_total",
		Help:      "Metadata cache lookups by result (hit, negative_hit, miss, shared)",
	}, []string{"result"})
	providerCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_library",
		Name:      "provider_calls_total",
		Help:      "Outbound provider calls by provider and outcome",
	}, []string{"provider", "outcome"})
	resolutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "media_library",
		Name:      "resolution_duration_seconds",
		Help:      "Histogram of full metadata resolutions by entity kind",
		Buckets:   prometheus.ExponentialBuckets(0.05, 1.6, 10), // ~50ms up to several seconds
	}, []string{"kind"})
	assetDownloads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_library",
		Name:      "asset_downloads_total",
		Help:      "Artwork downloads by outcome",
	}, []string{"outcome"})
	enrichmentRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "media_library",
		Name:      "enrichment_items_total",
		Help:      "Library items processed by enrichment runs, by outcome",
	}, []string{"outcome"})
	entitiesGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "media_library",
		Name:      "entities_total",
		Help:      "Current number of library entities by kind",
	}, []string{"kind"})
)

// Register initializes metrics with the global Prometheus registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(cacheLookups, providerCalls, resolutionDuration,
			assetDownloads, enrichmentRuns, entitiesGauge)
	})
}

func IncCacheLookup(result string)             { cacheLookups.WithLabelValues(result).Inc() }
func IncProviderCall(provider, outcome string) { providerCalls.WithLabelValues(provider, outcome).Inc() }
func IncAssetDownload(outcome string)          { assetDownloads.WithLabelValues(outcome).Inc() }
func IncEnrichmentItem(outcome string)         { enrichmentRuns.WithLabelValues(outcome).Inc() }
func SetEntities(kind string, n int)           { entitiesGauge.WithLabelValues(kind).Set(float64(n)) }
func ObserveResolution(kind string, d time.Duration) {
	resolutionDuration.WithLabelValues(kind).Observe(d.Seconds())
}
