// Package index builds handler and usage indexes over a codebase. Units are
// scanned in parallel; the merge step is append-only and commutative, so
// unit completion order never changes the final deduplicated set.
package index

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/medlink/internal/classify"
	"github.com/standardbeagle/medlink/internal/codebase"
	naverrors "github.com/standardbeagle/medlink/internal/errors"
	"github.com/standardbeagle/medlink/internal/identity"
	"github.com/standardbeagle/medlink/internal/types"
)

// Finder answers handler and usage queries against a codebase.
type Finder struct {
	classifier *classify.Classifier
	resolver   *identity.Resolver
	workers    int
}

// NewFinder creates a Finder. workers <= 0 means one worker per CPU.
func NewFinder(classifier *classify.Classifier, resolver *identity.Resolver, workers int) *Finder {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Finder{
		classifier: classifier,
		resolver:   resolver,
		workers:    workers,
	}
}

// FindHandlers returns every handler declaration serving requestRef in the
// given role. Results are deduplicated; no ordering is guaranteed.
func (f *Finder) FindHandlers(ctx context.Context, cb codebase.Codebase, requestRef *types.TypeRef, role types.RoleKind) ([]types.HandlerDescriptor, error) {
	all, err := f.scanHandlers(ctx, cb, requestRef)
	if err != nil {
		return nil, err
	}
	filtered := all[:0]
	for _, h := range all {
		if h.Role == role {
			filtered = append(filtered, h)
		}
	}
	return types.DedupHandlers(filtered), nil
}

// FindAllHandlers returns handler declarations for every role the request
// plays. Request-role handlers are grouped before notification-role
// handlers; no further ordering is imposed.
func (f *Finder) FindAllHandlers(ctx context.Context, cb codebase.Codebase, requestRef *types.TypeRef) ([]types.HandlerDescriptor, error) {
	all, err := f.scanHandlers(ctx, cb, requestRef)
	if err != nil {
		return nil, err
	}
	all = types.DedupHandlers(all)

	grouped := make([]types.HandlerDescriptor, 0, len(all))
	for _, h := range all {
		if !h.Role.IsNotification() {
			grouped = append(grouped, h)
		}
	}
	for _, h := range all {
		if h.Role.IsNotification() {
			grouped = append(grouped, h)
		}
	}
	return grouped, nil
}

// scanHandlers walks every retained unit in parallel, classifying type
// declarations and keeping descriptors whose served request matches.
func (f *Finder) scanHandlers(ctx context.Context, cb codebase.Codebase, requestRef *types.TypeRef) ([]types.HandlerDescriptor, error) {
	if !requestRef.IsResolved() {
		// Unresolved references never match anything; not an error.
		return nil, nil
	}

	units, err := cb.Units(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []types.HandlerDescriptor
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for _, unit := range units {
		// Cancellation is checked between unit scans; remaining work is
		// abandoned promptly and partial results are not reported.
		if err := gctx.Err(); err != nil {
			break
		}
		if !unit.ReferencesFramework() {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			decls, err := unit.TypeDecls()
			if err != nil {
				// A unit that fails to parse degrades to "no matches".
				return nil
			}

			var local []types.HandlerDescriptor
			for _, decl := range decls {
				for _, h := range f.classifier.ClassifyHandlerRoles(decl) {
					if f.resolver.AreSameType(h.Request, requestRef) {
						local = append(local, h)
					}
				}
			}

			if len(local) > 0 {
				mu.Lock()
				results = append(results, local...)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, naverrors.ScanCancelled(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, naverrors.ScanCancelled(err)
	}
	return results, nil
}

// FindUsages returns every call site dispatching requestRef. Results are
// deduplicated; no ordering is guaranteed.
func (f *Finder) FindUsages(ctx context.Context, cb codebase.Codebase, requestRef *types.TypeRef) ([]types.UsageDescriptor, error) {
	if !requestRef.IsResolved() {
		return nil, nil
	}

	units, err := cb.Units(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []types.UsageDescriptor
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for _, unit := range units {
		if err := gctx.Err(); err != nil {
			break
		}
		if !unit.ReferencesFramework() {
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			calls, err := unit.CallSites()
			if err != nil {
				return nil
			}

			var local []types.UsageDescriptor
			for _, call := range calls {
				if call.ArgType == nil {
					continue
				}
				if !f.resolver.AreSameType(call.ArgType, requestRef) {
					continue
				}
				local = append(local, types.UsageDescriptor{
					Request:    call.ArgType,
					MethodName: call.EnclosingMethod,
					TypeName:   call.EnclosingType,
					FilePath:   call.Loc.FilePath,
					Line:       call.Loc.Line,
					Dispatch:   call.Dispatch,
					Context:    call.Context,
				})
			}

			if len(local) > 0 {
				mu.Lock()
				results = append(results, local...)
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, naverrors.ScanCancelled(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, naverrors.ScanCancelled(err)
	}
	return types.DedupUsages(results), nil
}
