// Package fetch performs single-use network retrievals with cooperative
// cancellation: a retrieval can be aborted before the connection is made,
// after headers arrive, or between body chunks, and a fixed timeout cancels
// it through the same path as an explicit cancel.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Keksclan/hoard/breaker"
	"github.com/Keksclan/hoard/ratelimit"
)

// State tracks a Fetcher through its life.
type State int

const (
	Idle State = iota
	Fetching
	Succeeded
	Failed
	Cancelled
)

// String returns the state name for logs and test failures.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// DefaultTimeout bounds a retrieval that nobody cancels explicitly.
const DefaultTimeout = 30 * time.Second

// readChunk is the body read granularity; cancellation is checked between
// chunks.
const readChunk = 32 * 1024

// maxGrowHint bounds how much readAll preallocates from Content-Length.
const maxGrowHint = 1 << 20

// errRefused marks a fetch the breaker refused before any connection was
// attempted.
var errRefused = errors.New("fetch: refused by breaker")

// Config tunes a Fetcher. Zero fields take the package defaults: the shared
// pooled client, DefaultTimeout, no pacing, no breaker.
type Config struct {
	Client  *http.Client
	Timeout time.Duration
	Limiter *ratelimit.Limiter
	Breaker *breaker.Breaker
}

// Fetcher retrieves the bytes behind one URL, once. Its state machine is
//
//	Idle -> Fetching -> {Succeeded, Failed, Cancelled}
//
// with Cancelled reachable from Fetching only. A Fetcher whose retrieval has
// settled never fetches again; a second Fetch call reports absent.
type Fetcher struct {
	url string
	cfg Config

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
}

// New creates a Fetcher for one retrieval of url.
func New(url string, cfg Config) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Fetcher{url: url, cfg: cfg}
}

// URL reports the identifier this Fetcher retrieves.
func (f *Fetcher) URL() string {
	return f.url
}

// State reports where the Fetcher is in its life cycle.
func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Fetch performs the retrieval. It returns the payload bytes on an OK
// response and reports absent on everything else: non-OK status, transport
// error, timeout, cancellation, a refusing breaker, or a second call. The
// reason is deliberately not distinguishable from the return value.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, bool) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !f.begin(cancel) {
		return nil, false
	}

	// The timeout is a deferred self-cancel, so it settles through the
	// same path as an external Cancel.
	timer := time.AfterFunc(f.cfg.Timeout, f.Cancel)
	defer timer.Stop()

	val, err := f.retrieve(fctx)
	if err != nil {
		f.settle(Failed)
		return nil, false
	}
	if !f.settle(Succeeded) {
		// Cancelled won the race; the result is discarded.
		return nil, false
	}
	return val, true
}

// Cancel aborts an in-progress retrieval as promptly as the transport
// allows: the request context is cancelled, which closes the connection
// rather than draining it, and the pending Fetch resolves to absent. In any
// state but Fetching, and on repeat calls, Cancel is a no-op.
func (f *Fetcher) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Fetching {
		return
	}
	f.state = Cancelled
	f.cancel()
}

// begin moves Idle to Fetching and arms Cancel. It reports false when the
// Fetcher has already been used.
func (f *Fetcher) begin(cancel context.CancelFunc) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Idle {
		return false
	}
	f.state = Fetching
	f.cancel = cancel
	return true
}

// settle moves Fetching to the given terminal state. It reports false when
// a cancellation got there first.
func (f *Fetcher) settle(to State) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Fetching {
		return false
	}
	f.state = to
	return true
}

// retrieve runs the transfer. The breaker is fed from what actually happened
// on the wire, not from the caller-visible outcome: a cancelled transfer is
// no evidence of upstream health either way.
func (f *Fetcher) retrieve(ctx context.Context) ([]byte, error) {
	if !f.cfg.Breaker.Allow() {
		return nil, errRefused
	}
	if err := f.cfg.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			f.cfg.Breaker.OnFailure()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.cfg.Breaker.OnFailure()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", f.url, resp.Status)
	}

	val, err := readAll(ctx, resp.Body, resp.ContentLength)
	if err != nil {
		if ctx.Err() == nil {
			f.cfg.Breaker.OnFailure()
		}
		return nil, err
	}
	f.cfg.Breaker.OnSuccess()
	return val, nil
}

// readAll drains r in fixed-size chunks, checking for cancellation between
// chunks so an abandoned transfer stops instead of draining the connection.
func readAll(ctx context.Context, r io.Reader, sizeHint int64) ([]byte, error) {
	var buf bytes.Buffer
	if sizeHint > 0 && sizeHint <= maxGrowHint {
		buf.Grow(int(sizeHint))
	}

	chunk := make([]byte, readChunk)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
