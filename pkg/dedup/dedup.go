package dedup

import (
	"strings"
	"time"

	"github.com/robz323/alcancia-digital/pkg/cache"
)

// Default windows for the three guards used by the agent.
const (
	DefaultRouterWindow = 3000 * time.Millisecond
	DefaultActionWindow = 5000 * time.Millisecond
	DefaultWarnWindow   = 10000 * time.Millisecond
)

// Guard is a time-windowed dedup cache: the first call for a key within the
// window proceeds and records "now", subsequent calls are rejected until the
// window expires. Checks are synchronous and never block. Expired keys are
// pruned by the underlying cache's cleanup loop.
type Guard struct {
	window time.Duration
	seen   *cache.InMemoryCache[string, time.Time]
}

// NewGuard creates a guard with the given window.
func NewGuard(window time.Duration) *Guard {
	return &Guard{
		window: window,
		seen:   cache.NewInMemoryCache[string, time.Time](window),
	}
}

// Key builds a composite key from its parts. Parts are joined verbatim:
// identifiers (message ids, entity ids) are case-sensitive, so callers that
// want case-insensitive matching lowercase the text part themselves.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// ShouldProceed reports whether the key is new within the window and, if so,
// records it. Check and record happen under one lock, so at most one of any
// set of concurrent calls for the same key proceeds.
func (g *Guard) ShouldProceed(key string) bool {
	return g.seen.SetIfAbsent(key, time.Now(), g.window)
}

// Window returns the configured dedup window.
func (g *Guard) Window() time.Duration {
	return g.window
}

// Reset forgets all recorded keys. Intended for tests.
func (g *Guard) Reset() {
	g.seen.Clear()
}
