package probe

import (
	"sync"
	"time"
)

// memoryEntry stores a discovered login URL with its expiry.
type memoryEntry struct {
	url       string
	expiresAt time.Time
}

// Memory remembers discovered login URLs per portal host. Entries expire
// after the configured TTL and are cleaned up periodically.
type Memory struct {
	store sync.Map // host (string) -> *memoryEntry
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// NewMemory creates a Memory with the given TTL and starts a background
// goroutine that prunes expired entries.
func NewMemory(ttl time.Duration) *Memory {
	m := &Memory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go m.cleanupLoop()
	return m
}

// Get returns the remembered login URL for host, or "" if none or expired.
func (m *Memory) Get(host string) string {
	val, ok := m.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		m.store.Delete(host)
		return ""
	}
	return entry.url
}

// Set records the login URL found for host.
func (m *Memory) Set(host, loginURL string) {
	if m.ttl <= 0 {
		return
	}
	m.store.Store(host, &memoryEntry{
		url:       loginURL,
		expiresAt: time.Now().Add(m.ttl),
	})
}

// Delete forgets host, e.g. after a login through the remembered URL failed.
func (m *Memory) Delete(host string) {
	m.store.Delete(host)
}

// Stop terminates the background cleanup goroutine. It is safe to call
// more than once.
func (m *Memory) Stop() {
	m.once.Do(func() { close(m.done) })
}

func (m *Memory) cleanupLoop() {
	interval := time.Hour
	if m.ttl > 0 && m.ttl < interval {
		interval = m.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			now := time.Now()
			m.store.Range(func(key, value any) bool {
				if now.After(value.(*memoryEntry).expiresAt) {
					m.store.Delete(key)
				}
				return true
			})
		}
	}
}
