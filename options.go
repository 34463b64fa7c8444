package hoard

import (
	"net/http"
	"time"

	"github.com/Keksclan/hoard/breaker"
	"github.com/Keksclan/hoard/cache"
	"github.com/Keksclan/hoard/ratelimit"
	"github.com/Keksclan/hoard/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Option configures a Cache.
type Option func(*config)

// WithMemoryCapacity sets the memory-tier entry limit. The default is
// DefaultMemoryCapacity; values below one make New fail.
func WithMemoryCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// WithStore sets the persistent tier. The default is a filesystem store
// rooted at DefaultDir(); anything satisfying cache.Store works, for
// example cache.NewBolt for a single-file embedded database. WithStore
// takes precedence over WithStoreDir.
func WithStore(s cache.Store) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithStoreDir keeps the default filesystem store but roots it at dir.
func WithStoreDir(dir string) Option {
	return func(c *config) {
		c.storeDir = dir
	}
}

// WithHTTPClient sets the HTTP client used for network retrievals. The
// default is a shared client with pooled connections and no client-level
// timeout; the fetch timeout governs instead.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.client = hc
	}
}

// WithFetchTimeout bounds each network retrieval. The default is
// DefaultFetchTimeout. A retrieval that overruns is cancelled through the
// same path as an explicit Cancel, so every waiting caller settles absent.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithRateLimit paces outbound retrievals to rps requests per second with
// the given burst. Waiting for a token counts toward the fetch timeout.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) {
		c.limiter = ratelimit.NewLimiter(rps, burst)
	}
}

// WithBreaker guards retrievals with a circuit breaker so a failing origin
// is left alone for a cooldown instead of being hammered. Zero fields in
// cfg take the breaker package defaults.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) {
		c.breaker = breaker.New(cfg)
	}
}

// WithLogger sets the logger for cache lifecycle events. The default
// discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *config) {
		c.logger = log
	}
}

// WithOpenTelemetry enables tracing: one span per Fetch and one per shared
// network retrieval.
func WithOpenTelemetry(tc tracing.Config) Option {
	return func(c *config) {
		c.tracing = &tc
	}
}

// WithRegisterer additionally registers the cache's metric collectors with
// reg. Each Cache always serves its own registry through MetricsHandler;
// this option mirrors the collectors into an application-owned one. A
// clash with collectors already in reg makes New fail and leaves reg as
// it was, so two Caches cannot mirror into the same registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *config) {
		c.registerer = reg
	}
}
