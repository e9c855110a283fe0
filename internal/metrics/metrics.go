package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lockstats"

var (
	// result: applied|duplicate|malformed|failed
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_total",
		Help:      "Locker events handled by the dispatcher.",
	}, []string{"type", "result"})

	ProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_process_seconds",
		Help:      "Time to apply one event end to end.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"type"})

	BucketWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bucket_writes_total",
		Help:      "Bucket aggregate upserts by kind.",
	}, []string{"kind"})

	// reason: no_quote|error
	RateFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_fallbacks_total",
		Help:      "USD conversions recorded as zero because the oracle had no rate.",
	}, []string{"reason"})

	ArchiveDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_dropped_total",
		Help:      "Movements not enqueued to the ClickHouse archive.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
