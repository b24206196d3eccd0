package application

import (
	"sync"
	"time"
)

// revocationList remembers logged-out token IDs until the tokens would have
// expired anyway. Entries past their expiry are dropped lazily on writes.
type revocationList struct {
	mu         sync.RWMutex
	now        func() time.Time
	maxEntries int
	entries    map[string]time.Time
}

func newRevocationList(maxEntries int, now func() time.Time) *revocationList {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	if now == nil {
		now = time.Now
	}
	return &revocationList{
		now:        now,
		maxEntries: maxEntries,
		entries:    make(map[string]time.Time),
	}
}

func (c *revocationList) Revoked(id string) bool {
	if c == nil || id == "" {
		return false
	}
	c.mu.RLock()
	expiresAt, ok := c.entries[id]
	c.mu.RUnlock()
	return ok && c.now().Before(expiresAt)
}

func (c *revocationList) Revoke(id string, expiresAt time.Time) {
	if c == nil || id == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[id] = expiresAt
}

func (c *revocationList) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *revocationList) cleanupLocked() {
	now := c.now()
	for id, expiresAt := range c.entries {
		if !now.Before(expiresAt) {
			delete(c.entries, id)
		}
	}
}

// evictOneLocked drops the entry closest to expiry, the one whose token is
// least useful to an attacker.
func (c *revocationList) evictOneLocked() {
	var (
		victim  string
		soonest time.Time
	)
	for id, expiresAt := range c.entries {
		if victim == "" || expiresAt.Before(soonest) {
			victim, soonest = id, expiresAt
		}
	}
	delete(c.entries, victim)
}
