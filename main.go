// Package hoard is a two-tier asset cache: a bounded in-memory LRU in
// front of a persistent byte store, filled on demand by deduplicated,
// cancellable network retrievals.
//
// Fetch resolves an identifier through memory, then the persistent tier,
// then the network; concurrent callers for the same identifier share one
// retrieval, and Cancel aborts that retrieval for all of them. The
// persistent tier fails soft: when it cannot be initialized or read, the
// cache degrades to memory plus network instead of erroring.
//
//	c, err := hoard.New()
//	if err != nil {
//		...
//	}
//	asset, ok := c.Fetch(ctx, url) // absent is ok == false, never an error
//	if !ok {
//		...
//	}
//	c.Cancel(url) // no longer interested
package hoard
