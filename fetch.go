package hoard

import (
	"bytes"
	"context"
	"time"

	"github.com/Keksclan/hoard/fetch"
	"github.com/Keksclan/hoard/tracing"
	"go.opentelemetry.io/otel/trace"
)

// flight is one shared network retrieval. All callers for the same
// identifier join the same flight and read the outcome once done is
// closed; val and ok are written before the close and never after.
//
// cancel aborts the retrieval's context. It is live from the moment the
// flight is registered, before the fetcher has armed its own cancel, so
// a Cancel landing in that window still settles the flight absent.
type flight struct {
	fetcher *fetch.Fetcher
	cancel  context.CancelFunc
	done    chan struct{}
	val     []byte
	ok      bool
}

// Fetch returns the bytes behind id. It consults the memory tier, then any
// retrieval already in flight for id, then the persistent tier, and only
// then the network; concurrent calls for the same id share one retrieval.
// The only failure signal is ok == false. Network and storage errors never
// escape, callers treat absent as "could not load".
//
// A caller whose ctx ends while it waits detaches with absent. The shared
// retrieval keeps running for the remaining callers and still populates
// both tiers on success.
func (c *Cache) Fetch(ctx context.Context, id string) ([]byte, bool) {
	ctx, span := c.tracing.StartFetch(ctx, id)
	defer span.End()

	c.ensureInit(ctx)

	// Memory tier and the in-flight table, under one lock.
	c.mu.Lock()
	if val, ok := c.mem.Get(id); ok {
		c.mu.Unlock()
		return c.resolved(span, tracing.TierMemory, id, val, true)
	}
	fl, joined := c.inflight[id]
	c.mu.Unlock()

	if joined {
		val, ok := c.await(ctx, fl)
		return c.resolved(span, tracing.TierJoined, id, val, ok)
	}

	// Persistent tier, read outside the lock; a hit is promoted to memory.
	if val, ok, _ := c.store.Get(ctx, id); ok {
		c.mu.Lock()
		c.mem.Put(id, val)
		c.mu.Unlock()
		return c.resolved(span, tracing.TierPersistent, id, val, true)
	}

	// Missed both tiers: start one shared retrieval, unless another caller
	// started or finished one while we were reading the store.
	c.mu.Lock()
	if val, ok := c.mem.Get(id); ok {
		c.mu.Unlock()
		return c.resolved(span, tracing.TierMemory, id, val, true)
	}
	fl, joined = c.inflight[id]
	if !joined {
		// The retrieval outlives the caller but not a Cancel: it runs on
		// its own cancellable context, detached from the caller's.
		rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		fl = &flight{
			fetcher: fetch.New(id, c.fetchCfg),
			cancel:  cancel,
			done:    make(chan struct{}),
		}
		c.inflight[id] = fl
		c.metrics.inflight.Inc()
		go c.run(rctx, id, fl)
	}
	c.mu.Unlock()

	tier := tracing.TierNetwork
	if joined {
		tier = tracing.TierJoined
	}
	val, ok := c.await(ctx, fl)
	return c.resolved(span, tier, id, val, ok)
}

// run executes one shared retrieval and settles the flight. Committing a
// successful result to the memory tier and removing the flight from the
// in-flight table happen in one critical section, so no Fetch can observe
// the result missing from memory while the flight is already gone.
func (c *Cache) run(ctx context.Context, id string, fl *flight) {
	defer fl.cancel()

	ctx, span := c.tracing.StartRetrieval(ctx, id)
	start := time.Now()
	val, ok := fl.fetcher.Fetch(ctx)
	c.metrics.fetchSecs.Observe(time.Since(start).Seconds())
	tracing.RecordOutcome(span, ok)
	span.End()

	c.mu.Lock()
	if ok {
		c.mem.Put(id, val)
	}
	if c.inflight[id] == fl {
		delete(c.inflight, id)
	}
	c.mu.Unlock()
	c.metrics.inflight.Dec()

	fl.val = val
	fl.ok = ok
	close(fl.done)

	if !ok {
		c.log.Debug().Str("id", id).Str("state", fl.fetcher.State().String()).Msg("fetch settled absent")
		return
	}
	// Best effort, off the caller's path; the write must not die with the
	// flight's context.
	go func() { _ = c.store.Put(context.WithoutCancel(ctx), id, val) }()
	c.log.Debug().Str("id", id).Int("bytes", len(val)).Msg("fetched and cached")
}

// await blocks until the flight settles or the caller's ctx ends. A caller
// that stops waiting detaches with absent; the retrieval itself keeps
// running.
func (c *Cache) await(ctx context.Context, fl *flight) ([]byte, bool) {
	select {
	case <-fl.done:
		if !fl.ok {
			return nil, false
		}
		return bytes.Clone(fl.val), true
	case <-ctx.Done():
		return nil, false
	}
}

// resolved records which tier settled the lookup and with what result,
// then passes the pair through.
func (c *Cache) resolved(span trace.Span, tier, id string, val []byte, ok bool) ([]byte, bool) {
	res := resultMiss
	if ok {
		res = resultHit
	}
	c.metrics.lookups.WithLabelValues(tier, res).Inc()
	tracing.RecordTier(span, tier)
	tracing.RecordOutcome(span, ok)
	c.log.Debug().Str("id", id).Str("tier", tier).Str("result", res).Msg("lookup resolved")
	return val, ok
}
