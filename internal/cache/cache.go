// Package cache holds the in-process caches used by categorization: compiled
// rule patterns and category lookups by name.
package cache

import (
	"log/slog"
	"sync"
	"time"
)

// Cache is the read/write surface consumers depend on.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is implemented by caches whose entries expire.
type Cleaner interface {
	CleanExpired() int
}

// Reporter is implemented by caches that count hits and misses.
type Reporter interface {
	Stats() Stats
}

// Janitor periodically evicts expired entries from registered caches.
type Janitor struct {
	mu      sync.Mutex
	caches  map[string]Cleaner
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

func NewJanitor() *Janitor {
	return &Janitor{caches: make(map[string]Cleaner)}
}

// Register adds a named cache. Registering the same name twice replaces it.
func (j *Janitor) Register(name string, c Cleaner) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.caches[name] = c
}

// Start begins sweeping every interval. Calling Start twice is a no-op.
func (j *Janitor) Start(interval time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}
	j.running = true
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	go j.loop(interval)
}

func (j *Janitor) loop(interval time.Duration) {
	defer close(j.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.Sweep()
		case <-j.stopCh:
			return
		}
	}
}

// Sweep runs one eviction pass and returns the number of removed entries.
func (j *Janitor) Sweep() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	total := 0
	for name, c := range j.caches {
		n := c.CleanExpired()
		total += n
		if r, ok := c.(Reporter); ok {
			st := r.Stats()
			slog.Debug("Cache swept", "cache", name, "evicted", n,
				"size", st.Size, "hits", st.Hits, "misses", st.Misses)
		} else if n > 0 {
			slog.Debug("Evicted expired cache entries", "cache", name, "count", n)
		}
	}
	return total
}

// Stats returns the counters of every registered cache that reports them.
func (j *Janitor) Stats() map[string]Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make(map[string]Stats, len(j.caches))
	for name, c := range j.caches {
		if r, ok := c.(Reporter); ok {
			out[name] = r.Stats()
		}
	}
	return out
}

func (j *Janitor) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	j.running = false
	close(j.stopCh)
	j.mu.Unlock()
	<-j.doneCh
}
