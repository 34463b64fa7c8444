// Package breaker provides a small circuit breaker that stops hammering an
// upstream which keeps failing.
//
// States:
//   - Closed: fetches go out normally; consecutive failures are counted.
//   - Open: fetches are refused until the cooldown elapses.
//   - HalfOpen: a limited number of probe fetches are let through; if they
//     all succeed the breaker closes, any failure reopens it.
package breaker

import (
	"sync"
	"time"
)

// State identifies the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

// String returns the state name for logs and test failures.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Defaults applied by New for zero Config fields.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
	DefaultProbeQuota       = 1
)

// Config tunes a Breaker. Zero fields take the package defaults.
type Config struct {
	// FailureThreshold is how many consecutive failures while Closed trip
	// the breaker.
	FailureThreshold int

	// Cooldown is how long fetches stay refused before probing resumes.
	Cooldown time.Duration

	// ProbeQuota is how many consecutive probe successes while HalfOpen
	// close the breaker again.
	ProbeQuota int
}

// Breaker is safe for concurrent use. A nil *Breaker is valid and allows
// everything, so an optional breaker can be threaded through without nil
// checks at every call site.
type Breaker struct {
	mu sync.Mutex

	cfg Config

	state  State
	fails  int              // consecutive failures while Closed
	probes int              // consecutive successes while HalfOpen
	until  time.Time        // end of the current Open window
	now    func() time.Time // test hook
}

// New creates a Breaker, applying defaults for zero Config fields.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = DefaultProbeQuota
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow reports whether a fetch may go out. Closed always allows; HalfOpen
// allows while probe slots remain; Open refuses until the cooldown elapses.
func (b *Breaker) Allow() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tick()
	switch b.state {
	case Open:
		return false
	case HalfOpen:
		return b.probes < b.cfg.ProbeQuota
	default:
		return true
	}
}

// OnSuccess records a fetch that completed. Results arriving while Open are
// ignored; they belong to fetches that left before the trip.
func (b *Breaker) OnSuccess() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.fails = 0
	case HalfOpen:
		b.probes++
		if b.probes >= b.cfg.ProbeQuota {
			b.state = Closed
			b.fails = 0
			b.probes = 0
		}
	}
}

// OnFailure records a fetch that failed.
func (b *Breaker) OnFailure() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.fails++
		if b.fails >= b.cfg.FailureThreshold {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	}
}

// State returns the current position, advancing Open to HalfOpen when the
// cooldown has elapsed.
func (b *Breaker) State() State {
	if b == nil {
		return Closed
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tick()
	return b.state
}

// tick advances Open to HalfOpen once the cooldown window has passed. Must
// be called with b.mu held.
func (b *Breaker) tick() {
	if b.state == Open && !b.now().Before(b.until) {
		b.state = HalfOpen
		b.probes = 0
	}
}

// trip moves to Open and starts the cooldown window. Must be called with
// b.mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.until = b.now().Add(b.cfg.Cooldown)
	b.probes = 0
}
