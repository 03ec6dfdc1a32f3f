// Package cache memoizes handler resolution results per request-type
// identity, with explicit invalidation and a small persisted on-disk form.
package cache

import (
	"os"
	"sync"
	"time"

	"github.com/standardbeagle/medlink/internal/types"
)

// CacheVersion is the persisted format version.
const CacheVersion = 2

// Default cache policy knobs.
const (
	DefaultSweepInterval     = 3 * time.Minute
	DefaultValidateThreshold = 2 * time.Minute
	DefaultRecentWindow      = 10 * time.Minute
)

// Options configures cache policy; zero fields use defaults.
type Options struct {
	// SweepInterval is how often the periodic sweep re-validates entries.
	SweepInterval time.Duration

	// ValidateThreshold: entries validated more recently than this are not
	// re-checked by the sweep.
	ValidateThreshold time.Duration

	// RecentWindow bounds persistence: only entries used within this
	// trailing window are written by Save.
	RecentWindow time.Duration

	// FileExists overrides backing-file existence checks, for tests.
	FileExists func(path string) bool
}

func (o Options) withDefaults() Options {
	if o.SweepInterval <= 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.ValidateThreshold <= 0 {
		o.ValidateThreshold = DefaultValidateThreshold
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = DefaultRecentWindow
	}
	if o.FileExists == nil {
		o.FileExists = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}
	return o
}

// entry is one cached resolution result.
type entry struct {
	handlers      []types.HandlerDescriptor
	lastUsed      time.Time
	lastValidated time.Time
}

// ResultCache is the one piece of shared mutable state across concurrent
// queries. One instance belongs to exactly one codebase session; there is no
// process-wide cache.
type ResultCache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	dirty      bool
	codebaseID string
	opts       Options

	sweepStop chan struct{}
	sweepDone chan struct{}
	sweepOnce sync.Once
}

// New creates an empty cache for one codebase session.
func New(codebaseID string, opts Options) *ResultCache {
	return &ResultCache{
		entries:    make(map[string]*entry),
		codebaseID: codebaseID,
		opts:       opts.withDefaults(),
	}
}

// CodebaseID returns the originating codebase identifier.
func (c *ResultCache) CodebaseID() string {
	return c.codebaseID
}

// Get returns the cached handlers for an identity. A hit refreshes the
// entry's last-used timestamp.
func (c *ResultCache) Get(identity string) ([]types.HandlerDescriptor, bool) {
	if identity == "" {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[identity]
	if !ok {
		return nil, false
	}
	e.lastUsed = time.Now()

	handlers := make([]types.HandlerDescriptor, len(e.handlers))
	copy(handlers, e.handlers)
	return handlers, true
}

// Put stores a resolution result. Empty result sets are never stored: a
// negative lookup must be retried on the next query, otherwise a handler
// added later stays invisible behind a sticky empty entry.
func (c *ResultCache) Put(identity string, handlers []types.HandlerDescriptor) {
	if identity == "" || len(handlers) == 0 {
		return
	}
	stored := make([]types.HandlerDescriptor, len(handlers))
	copy(stored, handlers)

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identity] = &entry{
		handlers:      stored,
		lastUsed:      now,
		lastValidated: now,
	}
	c.dirty = true
}

// Invalidate drops one identity's entry.
func (c *ResultCache) Invalidate(identity string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[identity]; ok {
		delete(c.entries, identity)
		c.dirty = true
	}
}

// InvalidateFile drops every entry with a handler located in the given file
// and returns the number of entries removed.
func (c *ResultCache) InvalidateFile(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for identity, e := range c.entries {
		for _, h := range e.handlers {
			if h.Location.FilePath == path {
				delete(c.entries, identity)
				removed++
				break
			}
		}
	}
	if removed > 0 {
		c.dirty = true
	}
	return removed
}

// Clear drops every entry, used on codebase-wide structural changes.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) > 0 {
		c.dirty = true
	}
	c.entries = make(map[string]*entry)
}

// Len returns the number of cached identities.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Dirty reports whether the cache has unsaved changes.
func (c *ResultCache) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

// Sweep re-validates entries older than the validation threshold by checking
// that each backing file still exists; entries whose file is gone are
// purged. Returns the number of purged entries.
func (c *ResultCache) Sweep() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	purged := 0
	for identity, e := range c.entries {
		if now.Sub(e.lastValidated) < c.opts.ValidateThreshold {
			continue
		}
		stale := false
		for _, h := range e.handlers {
			if h.Location.FilePath != "" && !c.opts.FileExists(h.Location.FilePath) {
				stale = true
				break
			}
		}
		if stale {
			delete(c.entries, identity)
			purged++
		} else {
			e.lastValidated = now
		}
	}
	if purged > 0 {
		c.dirty = true
	}
	return purged
}

// StartSweeper launches the periodic sweep goroutine. Stop shuts it down.
func (c *ResultCache) StartSweeper() {
	c.sweepOnce.Do(func() {
		c.sweepStop = make(chan struct{})
		c.sweepDone = make(chan struct{})
		go func() {
			defer close(c.sweepDone)
			ticker := time.NewTicker(c.opts.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					c.Sweep()
				case <-c.sweepStop:
					return
				}
			}
		}()
	})
}

// Stop terminates the periodic sweep, if running.
func (c *ResultCache) Stop() {
	c.mu.Lock()
	stop := c.sweepStop
	c.sweepStop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
		<-c.sweepDone
	}
}
