// Package sync provides the Coordinator that breaks feedback loops between
// the document engine's own writes and the filesystem watcher that observes
// their effects (§4.E). It is injected wherever it's needed rather than
// reached through package-level state, so tests can run multiple isolated
// vaults side by side.
package sync

import (
	"sync"
	"time"
)

// DefaultRecentlyWrittenTTL is how long a recently-written marker remains
// valid if nobody consumes it first.
const DefaultRecentlyWrittenTTL = 5 * time.Second

// DefaultDebounceWindow is the quiescence period before a batched
// filesystem event fires.
const DefaultDebounceWindow = 500 * time.Millisecond

// Coordinator holds the recently-written and debounce maps described in
// §4.E. The zero value is not usable; construct with New.
type Coordinator struct {
	ttl      time.Duration
	debounce time.Duration

	mu      sync.Mutex
	written map[string]time.Time
	timers  map[string]*time.Timer
}

// New builds a Coordinator with the given TTL and debounce window. Pass 0
// for either to use the spec defaults.
func New(ttl, debounceWindow time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = DefaultRecentlyWrittenTTL
	}
	if debounceWindow <= 0 {
		debounceWindow = DefaultDebounceWindow
	}
	return &Coordinator{
		ttl:      ttl,
		debounce: debounceWindow,
		written:  make(map[string]time.Time),
		timers:   make(map[string]*time.Timer),
	}
}

// MarkRecentlyWritten records that the engine itself just wrote absPath.
// Must be called synchronously before any subsequent yield point, per §4.D
// step 6 and §5's ordering guarantee.
func (c *Coordinator) MarkRecentlyWritten(absPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written[absPath] = time.Now()
}

// ConsumeRecentlyWritten reports whether absPath was marked by the engine
// within the TTL window, and removes the marker either way (consumed on
// first read, per §4.E).
func (c *Coordinator) ConsumeRecentlyWritten(absPath string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.written[absPath]
	delete(c.written, absPath)
	if !ok {
		return false
	}
	return time.Since(t) < c.ttl
}

// Debounce schedules fn to run after the debounce window has elapsed with
// no further calls for the same absPath. A call for an absPath that already
// has a pending timer cancels and replaces it.
func (c *Coordinator) Debounce(absPath string, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.timers[absPath]; ok {
		existing.Stop()
	}
	c.timers[absPath] = time.AfterFunc(c.debounce, func() {
		c.mu.Lock()
		delete(c.timers, absPath)
		c.mu.Unlock()
		fn()
	})
}

// Stop cancels every pending debounce timer. Intended for orderly shutdown.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for path, t := range c.timers {
		t.Stop()
		delete(c.timers, path)
	}
}
