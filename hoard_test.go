package hoard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/hoard/breaker"
	"github.com/Keksclan/hoard/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// fakeStore is an in-memory cache.Store that counts operations. With
// failInit set it refuses initialization and goes inert, like the real
// stores do.
type fakeStore struct {
	failInit bool

	mu      sync.Mutex
	entries map[string][]byte

	inits atomic.Int32
	gets  atomic.Int32
	puts  atomic.Int32
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string][]byte)}
}

func (s *fakeStore) Init(context.Context) error {
	s.inits.Add(1)
	if s.failInit {
		return errors.New("no durable location")
	}
	return nil
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.gets.Add(1)
	if s.failInit {
		return nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.entries[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(val), true, nil
}

func (s *fakeStore) Put(_ context.Context, key string, val []byte) error {
	s.puts.Add(1)
	if s.failInit {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = bytes.Clone(val)
	return nil
}

func (s *fakeStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *fakeStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string][]byte)
	return nil
}

func (s *fakeStore) seed(key string, val []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = bytes.Clone(val)
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func mustNew(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// newUpstream starts a test server that serves body after delay and counts
// hits.
func newUpstream(t *testing.T, body []byte, delay time.Duration) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if delay > 0 {
			time.Sleep(delay)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func (c *Cache) inflightLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

func TestNewDefaults(t *testing.T) {
	c := mustNew(t)
	if c.MemoryLen() != 0 {
		t.Fatalf("MemoryLen() = %d, want 0", c.MemoryLen())
	}
	if c.store == nil {
		t.Fatal("no persistent store configured by default")
	}
	if c.fetchCfg.Timeout != DefaultFetchTimeout {
		t.Fatalf("fetch timeout = %v, want %v", c.fetchCfg.Timeout, DefaultFetchTimeout)
	}
}

func TestNewRejectsInvalidCapacity(t *testing.T) {
	if _, err := New(WithMemoryCapacity(0)); !errors.Is(err, cache.ErrInvalidCapacity) {
		t.Fatalf("New(WithMemoryCapacity(0)) error = %v, want ErrInvalidCapacity", err)
	}
}

func TestFetchPromotesPersistentHit(t *testing.T) {
	data := []byte("stored bytes")
	store := newFakeStore()
	store.seed("asset-1", data)
	c := mustNew(t, WithStore(store))

	got, ok := c.Fetch(t.Context(), "asset-1")
	if !ok || !bytes.Equal(got, data) {
		t.Fatalf("Fetch = %q, %v; want %q, true", got, ok, data)
	}
	if n := store.gets.Load(); n != 1 {
		t.Fatalf("store reads = %d, want 1", n)
	}
	if c.MemoryLen() != 1 {
		t.Fatalf("MemoryLen() = %d, want 1 after promotion", c.MemoryLen())
	}

	// Second lookup must come from memory without touching the store.
	got, ok = c.Fetch(t.Context(), "asset-1")
	if !ok || !bytes.Equal(got, data) {
		t.Fatalf("second Fetch = %q, %v; want %q, true", got, ok, data)
	}
	if n := store.gets.Load(); n != 1 {
		t.Fatalf("store reads = %d after memory hit, want 1", n)
	}
}

func TestMemoryOnlyWhenStoreUnavailable(t *testing.T) {
	data := []byte("networked")
	srv, hits := newUpstream(t, data, 0)
	store := newFakeStore()
	store.failInit = true
	c := mustNew(t, WithStore(store))

	got, ok := c.Fetch(t.Context(), srv.URL)
	if !ok || !bytes.Equal(got, data) {
		t.Fatalf("Fetch = %q, %v; want %q, true", got, ok, data)
	}
	if _, ok := c.Fetch(t.Context(), srv.URL); !ok {
		t.Fatal("memory hit failed after network fill")
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("upstream hits = %d, want 1", n)
	}

	// The inert store persisted nothing, so dropping memory forces the
	// network again.
	c.ClearMemory()
	if _, ok := c.Fetch(t.Context(), srv.URL); !ok {
		t.Fatal("refetch failed after memory clear")
	}
	if n := hits.Load(); n != 2 {
		t.Fatalf("upstream hits = %d, want 2", n)
	}
	if n := store.inits.Load(); n != 1 {
		t.Fatalf("store inits = %d, want 1", n)
	}
}

func TestStoreInitRunsOnce(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 10; i++ {
		store.seed(fmt.Sprintf("asset-%d", i), []byte("v"))
	}
	c := mustNew(t, WithStore(store))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, ok := c.Fetch(t.Context(), fmt.Sprintf("asset-%d", i)); !ok {
				t.Errorf("Fetch(asset-%d) was absent", i)
			}
		}(i)
	}
	wg.Wait()

	if n := store.inits.Load(); n != 1 {
		t.Fatalf("store inits = %d, want 1", n)
	}
}

func TestClearsTouchOnlyTheirTier(t *testing.T) {
	data := []byte("v")
	store := newFakeStore()
	store.seed("a", data)
	c := mustNew(t, WithStore(store))

	if _, ok := c.Fetch(t.Context(), "a"); !ok {
		t.Fatal("warmup fetch was absent")
	}

	c.ClearMemory()
	if c.MemoryLen() != 0 {
		t.Fatalf("MemoryLen() = %d after ClearMemory, want 0", c.MemoryLen())
	}
	if !store.has("a") {
		t.Fatal("ClearMemory reached the persistent tier")
	}

	c.ClearPersistent(t.Context())
	if store.len() != 0 {
		t.Fatalf("store has %d entries after ClearPersistent, want 0", store.len())
	}

	store.seed("a", data)
	if _, ok := c.Fetch(t.Context(), "a"); !ok {
		t.Fatal("fetch after reseed was absent")
	}
	c.ClearAll(t.Context())
	if c.MemoryLen() != 0 || store.len() != 0 {
		t.Fatalf("ClearAll left %d memory and %d store entries", c.MemoryLen(), store.len())
	}
}

func TestBreakerWiringSharedAcrossRetrievals(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := mustNew(t,
		WithStore(newFakeStore()),
		WithBreaker(breaker.Config{FailureThreshold: 1, Cooldown: time.Hour}),
	)

	if _, ok := c.Fetch(t.Context(), srv.URL+"/a"); ok {
		t.Fatal("fetch against a 500 upstream reported present")
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("upstream hits = %d, want 1", n)
	}

	// The first failure tripped the breaker, so a different identifier is
	// refused without reaching the wire.
	if _, ok := c.Fetch(t.Context(), srv.URL+"/b"); ok {
		t.Fatal("fetch with open breaker reported present")
	}
	if n := hits.Load(); n != 1 {
		t.Fatalf("upstream hits = %d with open breaker, want 1", n)
	}
}

func TestMetricsHandlerServes(t *testing.T) {
	store := newFakeStore()
	store.seed("a", []byte("v"))
	c := mustNew(t, WithStore(store))
	if _, ok := c.Fetch(t.Context(), "a"); !ok {
		t.Fatal("warmup fetch was absent")
	}

	rec := httptest.NewRecorder()
	c.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	for _, want := range []string{"hoard_lookups_total", "hoard_evictions_total", "hoard_inflight_fetches"} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestWithRegistererMirrorsCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	mustNew(t, WithStore(newFakeStore()), WithRegisterer(reg))

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "hoard_inflight_fetches" {
			found = true
		}
	}
	if !found {
		t.Fatal("hoard_inflight_fetches not registered with the external registry")
	}
}

func TestWithRegistererClashFailsNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	mustNew(t, WithStore(newFakeStore()), WithRegisterer(reg))

	// The collector names are fixed, so a second Cache mirroring into the
	// same registry clashes. That is an error, never a panic.
	_, err := New(WithStore(newFakeStore()), WithRegisterer(reg))
	if err == nil {
		t.Fatal("second Cache mirrored into the same registry, want registration error")
	}
	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		t.Fatalf("New error = %v, want prometheus.AlreadyRegisteredError", err)
	}

	// The first instance's collectors survive the failed attempt.
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "hoard_inflight_fetches" {
			found = true
		}
	}
	if !found {
		t.Fatal("hoard_inflight_fetches missing from the external registry after failed New")
	}
}

func TestOptionFunc(t *testing.T) {
	// Compile-time assertion that Option is a func(*config).
	var _ Option = func(c *config) {
		_ = c
	}
}
