// Package engine is the query front door: it owns a codebase session, the
// finder that scans it and the result cache that memoizes handler lookups.
package engine

import (
	"context"
	"os"
	"sort"

	"github.com/standardbeagle/medlink/internal/cache"
	"github.com/standardbeagle/medlink/internal/classify"
	"github.com/standardbeagle/medlink/internal/codebase"
	"github.com/standardbeagle/medlink/internal/identity"
	"github.com/standardbeagle/medlink/internal/index"
	"github.com/standardbeagle/medlink/internal/types"
)

// Options configures one engine session.
type Options struct {
	// Workers bounds scan parallelism; zero means one per CPU.
	Workers int

	// CachePath is where the result cache persists. Empty disables
	// persistence but keeps the in-memory cache.
	CachePath string

	// CacheDisabled turns result caching off entirely.
	CacheDisabled bool

	// Cache tunes sweep and persistence policy.
	Cache cache.Options

	// FrameworkNamespace overrides the namespace classification keys on;
	// empty means MediatR.
	FrameworkNamespace string

	// FileExists overrides handler-file existence checks, for tests.
	FileExists func(path string) bool
}

// Engine answers handler and usage queries with caching on top of a live
// codebase scan.
type Engine struct {
	cb         codebase.Codebase
	classifier *classify.Classifier
	finder     *index.Finder
	cache      *cache.ResultCache
	cachePath  string
	fileExists func(path string) bool
}

// New creates an engine over a codebase. codebaseID keys the persisted
// cache; use the workspace's stable ID.
func New(cb codebase.Codebase, codebaseID string, opts Options) *Engine {
	classifier := classify.NewClassifierFor(opts.FrameworkNamespace)
	resolver := identity.NewResolver()

	e := &Engine{
		cb:         cb,
		classifier: classifier,
		finder:     index.NewFinder(classifier, resolver, opts.Workers),
		fileExists: opts.FileExists,
	}
	if e.fileExists == nil {
		e.fileExists = func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		}
	}

	if !opts.CacheDisabled {
		e.cache = cache.New(codebaseID, opts.Cache)
		e.cachePath = opts.CachePath
		if e.cachePath != "" {
			_ = e.cache.Load(e.cachePath)
		}
		e.cache.StartSweeper()
	}
	return e
}

// Handlers returns every handler for the request, any role, cached. A cache
// hit is re-validated against the filesystem before being served: if any
// backing file is gone the entry is dropped and the codebase rescanned.
func (e *Engine) Handlers(ctx context.Context, requestRef *types.TypeRef) ([]types.HandlerDescriptor, error) {
	if e.cache != nil {
		key := requestRef.Identity()
		if hit, ok := e.cache.Get(key); ok {
			if e.handlersStillExist(hit) {
				return hit, nil
			}
			e.cache.Invalidate(key)
		}
	}

	handlers, err := e.finder.FindAllHandlers(ctx, e.cb, requestRef)
	if err != nil {
		return nil, err
	}
	if e.cache != nil && len(handlers) > 0 {
		e.cache.Put(requestRef.Identity(), handlers)
	}
	return handlers, nil
}

// HandlersForRole returns the handlers serving the request in one specific
// role. Role-filtered lookups bypass the cache, which is keyed on the full
// result set.
func (e *Engine) HandlersForRole(ctx context.Context, requestRef *types.TypeRef, role types.RoleKind) ([]types.HandlerDescriptor, error) {
	return e.finder.FindHandlers(ctx, e.cb, requestRef, role)
}

// Usages returns every dispatch call site for the request. Usage queries
// are never cached: call sites churn far more than handler declarations.
func (e *Engine) Usages(ctx context.Context, requestRef *types.TypeRef) ([]types.UsageDescriptor, error) {
	return e.finder.FindUsages(ctx, e.cb, requestRef)
}

func (e *Engine) handlersStillExist(handlers []types.HandlerDescriptor) bool {
	for _, h := range handlers {
		if h.Location.FilePath != "" && !e.fileExists(h.Location.FilePath) {
			return false
		}
	}
	return true
}

// LookupRequest finds a request type declaration by name. The name may be a
// simple name or a fully qualified one; among simple-name collisions the
// first declaration that actually plays a request role wins. Returns nil
// when no declaration matches.
func (e *Engine) LookupRequest(ctx context.Context, name string) (*types.TypeRef, []types.RequestDescriptor, error) {
	units, err := e.cb.Units(ctx)
	if err != nil {
		return nil, nil, err
	}

	var fallback *types.TypeRef
	for _, unit := range units {
		if !unit.ReferencesFramework() {
			continue
		}
		decls, err := unit.TypeDecls()
		if err != nil {
			continue
		}
		for _, decl := range decls {
			if decl.Ref.Name != name && decl.Ref.DisplayString() != name {
				continue
			}
			roles := e.classifier.ClassifyRequestRoles(decl.Ref, decl.Interfaces())
			if len(roles) > 0 {
				return decl.Ref, roles, nil
			}
			if fallback == nil {
				fallback = decl.Ref
			}
		}
	}
	if fallback != nil {
		return fallback, nil, nil
	}
	return nil, nil, nil
}

// RequestNames lists the names of every type playing a request role, sorted,
// for suggestion output on failed lookups.
func (e *Engine) RequestNames(ctx context.Context) ([]string, error) {
	units, err := e.cb.Units(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var names []string
	for _, unit := range units {
		if !unit.ReferencesFramework() {
			continue
		}
		decls, err := unit.TypeDecls()
		if err != nil {
			continue
		}
		for _, decl := range decls {
			if len(e.classifier.ClassifyRequestRoles(decl.Ref, decl.Interfaces())) == 0 {
				continue
			}
			if !seen[decl.Ref.Name] {
				seen[decl.Ref.Name] = true
				names = append(names, decl.Ref.Name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stats summarizes one codebase session.
type Stats struct {
	Units            int
	FrameworkUnits   int
	Types            int
	RequestTypes     int
	HandlerTypes     int
	CallSites        int
	CachedIdentities int
}

// Scan walks the whole codebase and reports aggregate counts. It doubles as
// an explicit warm-up: after Scan every unit is parsed.
func (e *Engine) Scan(ctx context.Context) (Stats, error) {
	units, err := e.cb.Units(ctx)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{Units: len(units)}
	for _, unit := range units {
		if !unit.ReferencesFramework() {
			continue
		}
		stats.FrameworkUnits++

		decls, err := unit.TypeDecls()
		if err != nil {
			continue
		}
		stats.Types += len(decls)
		for _, decl := range decls {
			if len(e.classifier.ClassifyRequestRoles(decl.Ref, decl.Interfaces())) > 0 {
				stats.RequestTypes++
			}
			if len(e.classifier.ClassifyHandlerRoles(decl)) > 0 {
				stats.HandlerTypes++
			}
		}
		if calls, err := unit.CallSites(); err == nil {
			stats.CallSites += len(calls)
		}
	}
	if e.cache != nil {
		stats.CachedIdentities = e.cache.Len()
	}
	return stats, nil
}

// Cache exposes the result cache for invalidation hooks; nil when caching
// is disabled.
func (e *Engine) Cache() *cache.ResultCache {
	return e.cache
}

// Close stops the sweeper and persists the cache.
func (e *Engine) Close() error {
	if e.cache == nil {
		return nil
	}
	e.cache.Stop()
	if e.cachePath == "" {
		return nil
	}
	return e.cache.Save(e.cachePath)
}
