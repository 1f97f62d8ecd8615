// Package history keeps the most recent login attempts in memory for the
// status API and the watch loop.
package history

import (
	"sync"

	"github.com/use-agent/wlanlogin/models"
)

// History is a bounded, in-memory record of login attempts.
// It is safe for concurrent use.
type History struct {
	mu         sync.RWMutex
	entries    []models.Attempt // oldest first
	maxEntries int
	total      int
	failures   int // consecutive unsuccessful attempts
}

// New creates a History keeping at most maxEntries attempts.
func New(maxEntries int) *History {
	if maxEntries <= 0 {
		maxEntries = 200
	}
	return &History{
		entries:    make([]models.Attempt, 0, min(maxEntries, 64)),
		maxEntries: maxEntries,
	}
}

// Record appends an attempt, evicting the oldest when at capacity.
func (h *History) Record(a models.Attempt) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) >= h.maxEntries {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	}
	h.entries = append(h.entries, a)
	h.total++

	if a.Outcome != nil && a.Outcome.Authenticated {
		h.failures = 0
	} else {
		h.failures++
	}
}

// List returns up to limit attempts, newest first. limit <= 0 returns all.
func (h *History) List(limit int) []models.Attempt {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Attempt, 0, n)
	for i := len(h.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

// Last returns the newest attempt.
func (h *History) Last() (models.Attempt, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.entries) == 0 {
		return models.Attempt{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Total is the number of attempts ever recorded, including evicted ones.
func (h *History) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// ConsecutiveFailures counts the unsuccessful attempts since the last
// successful one.
func (h *History) ConsecutiveFailures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.failures
}
