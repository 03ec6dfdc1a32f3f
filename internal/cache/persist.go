package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	naverrors "github.com/standardbeagle/medlink/internal/errors"
	"github.com/standardbeagle/medlink/internal/types"
)

// persistedHandler is the serialized handler form: source locations cannot
// be serialized directly, so only file path and line/column survive.
type persistedHandler struct {
	HandlerTypeName       string `json:"handlerTypeName"`
	HandlerAssembly       string `json:"handlerAssembly,omitempty"`
	RequestTypeName       string `json:"requestTypeName"`
	RequestAssembly       string `json:"requestAssembly,omitempty"`
	ResponseTypeName      string `json:"responseTypeName,omitempty"`
	FilePath              string `json:"filePath"`
	Line                  int    `json:"line"`
	Column                int    `json:"column"`
	IsNotificationHandler bool   `json:"isNotificationHandler"`
}

// cacheFile is the versioned on-disk envelope.
type cacheFile struct {
	Version    int                           `json:"version"`
	CodebaseID string                        `json:"codebaseId"`
	Entries    map[string][]persistedHandler `json:"entries"`
	LastUsed   map[string]time.Time          `json:"lastUsed"`
}

// Save persists the cache to path. Only dirty caches are written, and an
// effectively-empty cache is not written unless no file exists yet. Only
// entries used within the trailing recent-use window are persisted, bounding
// file size by relevance rather than total history.
func (c *ResultCache) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	cutoff := time.Now().Add(-c.opts.RecentWindow)
	out := cacheFile{
		Version:    CacheVersion,
		CodebaseID: c.codebaseID,
		Entries:    make(map[string][]persistedHandler),
		LastUsed:   make(map[string]time.Time),
	}
	for identity, e := range c.entries {
		if e.lastUsed.Before(cutoff) {
			continue
		}
		handlers := make([]persistedHandler, 0, len(e.handlers))
		for _, h := range e.handlers {
			ph := persistedHandler{
				HandlerTypeName:       h.Handler.DisplayString(),
				HandlerAssembly:       h.Handler.AssemblyName,
				RequestTypeName:       h.Request.DisplayString(),
				RequestAssembly:       h.Request.AssemblyName,
				FilePath:              h.Location.FilePath,
				Line:                  h.Location.Line,
				Column:                h.Location.Column,
				IsNotificationHandler: h.Role.IsNotification(),
			}
			if h.Response != nil {
				ph.ResponseTypeName = h.Response.DisplayString()
			}
			handlers = append(handlers, ph)
		}
		out.Entries[identity] = handlers
		out.LastUsed[identity] = e.lastUsed
	}

	if len(out.Entries) == 0 {
		if _, err := os.Stat(path); err == nil {
			// Nothing worth writing and a file already exists; skip the
			// needless write of an effectively-empty cache.
			c.dirty = false
			return nil
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return naverrors.CacheIO("marshal", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return naverrors.CacheIO("mkdir", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return naverrors.CacheIO("write", path, err)
	}

	c.dirty = false
	return nil
}

// Load restores the cache from path. A missing, corrupt or mismatched file
// is not an error: the cache starts empty instead.
func (c *ResultCache) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return nil // unreadable cache degrades to empty, never propagates
	}

	var in cacheFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil // corrupt cache degrades to empty
	}
	if in.Version != CacheVersion || in.CodebaseID != c.codebaseID {
		// A different format version or another codebase's cache is not
		// usable; start fresh.
		return nil
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for identity, handlers := range in.Entries {
		if len(handlers) == 0 {
			// Persisted empty lists are the stale-cache bug; never admit
			// them even from older files.
			continue
		}
		restored := make([]types.HandlerDescriptor, 0, len(handlers))
		for _, ph := range handlers {
			h := types.HandlerDescriptor{
				Handler: types.ParseDisplayString(ph.HandlerTypeName, ph.HandlerAssembly),
				Request: types.ParseDisplayString(ph.RequestTypeName, ph.RequestAssembly),
				Location: types.SymbolLocation{
					FilePath: ph.FilePath,
					Line:     ph.Line,
					Column:   ph.Column,
				},
			}
			if ph.IsNotificationHandler {
				h.Role = types.RoleNotification
			} else if ph.ResponseTypeName != "" {
				h.Role = types.RoleQuery
				h.Response = types.ParseDisplayString(ph.ResponseTypeName, "")
			} else {
				h.Role = types.RoleCommand
			}
			restored = append(restored, h)
		}

		lastUsed := in.LastUsed[identity]
		if lastUsed.IsZero() {
			lastUsed = now
		}
		c.entries[identity] = &entry{
			handlers:      restored,
			lastUsed:      lastUsed,
			lastValidated: time.Time{}, // force re-validation on first sweep
		}
	}
	return nil
}
