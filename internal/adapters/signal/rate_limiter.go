package signal

import (
	"sync"
	"time"

	"github.com/peertutor/relay/internal/domain"
)

// opRateLimiter caps ops per connection over a sliding window. A limit of
// zero disables it.
type opRateLimiter struct {
	mu      sync.Mutex
	history map[domain.ConnectionID][]time.Time
	limit   int
	window  time.Duration
}

func newOpRateLimiter(limit int, window time.Duration) *opRateLimiter {
	return &opRateLimiter{
		history: make(map[domain.ConnectionID][]time.Time),
		limit:   limit,
		window:  window,
	}
}

func (rl *opRateLimiter) Allow(id domain.ConnectionID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-rl.window)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}

	fresh = append(fresh, now)
	rl.history[id] = fresh
	return true
}

// Forget releases the connection's window on disconnect.
func (rl *opRateLimiter) Forget(id domain.ConnectionID) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}
