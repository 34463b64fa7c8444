package hoard

import (
	"fmt"

	"github.com/Keksclan/hoard/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values for the lookups counter.
const (
	resultHit  = "hit"
	resultMiss = "miss"
)

// metrics holds the per-Cache Prometheus collectors. Each Cache owns its
// own registry so two instances never fight over registration; the tier
// label values are the tracing.Tier constants. Mirroring into a
// caller-supplied registry is the one registration that can clash, and a
// clash there surfaces as an error from New, not a panic.
type metrics struct {
	registry *prometheus.Registry

	lookups   *prometheus.CounterVec
	fetchSecs prometheus.Histogram
	inflight  prometheus.Gauge
}

func newMetrics(mem *cache.Memory, extra prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hoard_lookups_total",
			Help: "Fetch calls by the tier that resolved them and the result.",
		}, []string{"tier", "result"}),
		fetchSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hoard_fetch_duration_seconds",
			Help:    "Wall time of network retrievals, settled either way.",
			Buckets: prometheus.DefBuckets,
		}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hoard_inflight_fetches",
			Help: "Network retrievals currently in flight.",
		}),
	}
	evictions := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "hoard_evictions_total",
		Help: "Memory-tier entries evicted to make room for new ones.",
	}, func() float64 { return float64(mem.Evictions()) })

	m.registry.MustRegister(m.lookups, m.fetchSecs, m.inflight, evictions)

	if extra == nil {
		return m, nil
	}
	mirrored := []prometheus.Collector{m.lookups, m.fetchSecs, m.inflight, evictions}
	for i, col := range mirrored {
		if err := extra.Register(col); err != nil {
			// Leave the caller's registry as it was found.
			for _, prev := range mirrored[:i] {
				extra.Unregister(prev)
			}
			return nil, fmt.Errorf("hoard: mirror metrics: %w", err)
		}
	}
	return m, nil
}
