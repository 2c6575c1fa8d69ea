package telegram

import (
	"sync"
	"time"
)

// Throttle remembers when each key was last let through.
type Throttle struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time
	now    func() time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{window: window, seen: make(map[string]time.Time), now: time.Now}
}

func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.seen[key]; ok && now.Sub(last) < t.window {
		return false
	}
	t.seen[key] = now
	t.prune(now)
	return true
}

func (t *Throttle) prune(now time.Time) {
	for k, last := range t.seen {
		if now.Sub(last) >= t.window {
			delete(t.seen, k)
		}
	}
}
