package hoard

import (
	"context"
	"net/http"
	"sync"

	"github.com/Keksclan/hoard/cache"
	"github.com/Keksclan/hoard/fetch"
	"github.com/Keksclan/hoard/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Cache is the coordinator in front of two storage tiers and the network.
// Fetch answers from the memory tier when it can, then from the persistent
// tier, and otherwise starts (or joins) a single shared retrieval per
// identifier.
//
// All bookkeeping, meaning the memory tier and the in-flight table, is
// serialized behind one mutex; network and disk I/O always run outside it.
type Cache struct {
	store    cache.Store
	fetchCfg fetch.Config
	log      zerolog.Logger
	tracing  *tracing.Config
	metrics  *metrics

	initOnce sync.Once

	mu       sync.Mutex
	mem      *cache.Memory
	inflight map[string]*flight
}

// New creates a Cache by applying the supplied functional Option values.
//
// Example:
//
//	c, err := hoard.New(
//		hoard.WithMemoryCapacity(200),
//		hoard.WithStoreDir("/var/cache/thumbs"),
//		hoard.WithRateLimit(50, 10),
//	)
func New(opts ...Option) (*Cache, error) {
	cfg := config{
		capacity: DefaultMemoryCapacity,
		timeout:  DefaultFetchTimeout,
		logger:   zerolog.Nop(),
	}
	for _, o := range opts {
		o(&cfg)
	}

	mem, err := cache.NewMemory(cfg.capacity)
	if err != nil {
		return nil, err
	}
	store := cfg.store
	if store == nil {
		dir := cfg.storeDir
		if dir == "" {
			dir = DefaultDir()
		}
		store = cache.NewFS(dir, cache.FSWithLogger(cfg.logger))
	}
	m, err := newMetrics(mem, cfg.registerer)
	if err != nil {
		return nil, err
	}

	return &Cache{
		store: store,
		fetchCfg: fetch.Config{
			Client:  cfg.client,
			Timeout: cfg.timeout,
			Limiter: cfg.limiter,
			Breaker: cfg.breaker,
		},
		log:      cfg.logger,
		tracing:  cfg.tracing,
		metrics:  m,
		mem:      mem,
		inflight: make(map[string]*flight),
	}, nil
}

// Cancel aborts the in-flight retrieval for id, if any. The retrieval is
// shared, so every caller joined on it settles absent, not only the one
// that cancelled; callers that still want the bytes call Fetch again.
// Cancellation is effective from the moment the flight is registered:
// a retrieval that has not reached the wire yet still settles absent
// instead of completing. Cancel returns without waiting for the settle
// and is a no-op when nothing is in flight for id.
func (c *Cache) Cancel(id string) {
	c.mu.Lock()
	fl := c.inflight[id]
	if fl != nil {
		delete(c.inflight, id)
	}
	c.mu.Unlock()

	if fl == nil {
		return
	}
	fl.cancel()
	fl.fetcher.Cancel()
	c.log.Debug().Str("id", id).Msg("fetch cancelled")
}

// ClearMemory empties the memory tier. In-flight retrievals are unaffected.
func (c *Cache) ClearMemory() {
	c.mu.Lock()
	c.mem.Clear()
	c.mu.Unlock()
	c.log.Debug().Msg("memory tier cleared")
}

// ClearPersistent empties the persistent tier. In-flight retrievals are
// unaffected.
func (c *Cache) ClearPersistent(ctx context.Context) {
	c.ensureInit(ctx)
	_ = c.store.Clear(ctx)
	c.log.Debug().Msg("persistent tier cleared")
}

// ClearAll empties both tiers. In-flight retrievals are unaffected.
func (c *Cache) ClearAll(ctx context.Context) {
	c.ClearMemory()
	c.ClearPersistent(ctx)
}

// MemoryLen reports the number of entries currently in the memory tier.
func (c *Cache) MemoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mem.Len()
}

// MetricsHandler returns an http.Handler serving this instance's
// Prometheus metrics.
func (c *Cache) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(c.metrics.registry, promhttp.HandlerOpts{})
}

// ensureInit runs the persistent store's one-time initialization. Every
// caller waits on the same attempt; a failure leaves the store inert and
// the cache in memory-only operation.
func (c *Cache) ensureInit(ctx context.Context) {
	c.initOnce.Do(func() {
		if err := c.store.Init(ctx); err != nil {
			c.log.Warn().Err(err).Msg("persistent tier unavailable, memory-only operation")
		}
	})
}
