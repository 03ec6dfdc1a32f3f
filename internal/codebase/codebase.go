// Package codebase defines the explicit codebase abstraction the index
// builder consumes: compilable units, their type declarations with resolved
// interface sets, and dispatch call sites. Backends (the tree-sitter C#
// workspace, the in-memory model used in tests) implement these contracts.
package codebase

import (
	"context"

	"github.com/standardbeagle/medlink/internal/types"
)

// Codebase enumerates the independently-compilable units of one workspace.
type Codebase interface {
	Units(ctx context.Context) ([]Unit, error)
}

// Unit is one compilable unit (a C# project).
type Unit interface {
	// Name is the unit's assembly name.
	Name() string

	// ReferencesFramework cheaply tests whether the unit's contents could
	// plausibly reference the mediator framework at all. A false result is
	// a pure performance signal, never a correctness filter: a unit lacking
	// the marker interfaces cannot declare a conforming handler.
	ReferencesFramework() bool

	// TypeDecls returns every type declaration in the unit.
	TypeDecls() ([]*TypeDecl, error)

	// CallSites returns every candidate dispatch call site in the unit.
	CallSites() ([]CallSite, error)
}

// TypeDecl is one type declaration with its resolved interface set.
type TypeDecl struct {
	Ref *types.TypeRef

	// Declared is the direct interface list from the declaration's base
	// list. All additionally includes interfaces inherited through base
	// types resolved in the workspace; when closure resolution has not run,
	// All equals Declared.
	Declared []types.InterfaceRef
	All      []types.InterfaceRef

	// BaseTypes names base classes/records, used for closure resolution.
	BaseTypes []string

	// Loc points at the type declaration itself.
	Loc types.SymbolLocation

	// MethodLocs maps method names to their declaration locations.
	MethodLocs map[string]types.SymbolLocation
}

// Type implements classify.Declaration.
func (d *TypeDecl) Type() *types.TypeRef { return d.Ref }

// Interfaces returns the full transitive interface set.
func (d *TypeDecl) Interfaces() []types.InterfaceRef {
	if d.All != nil {
		return d.All
	}
	return d.Declared
}

// MethodLocation implements classify.Declaration.
func (d *TypeDecl) MethodLocation(name string) (types.SymbolLocation, bool) {
	loc, ok := d.MethodLocs[name]
	return loc, ok
}

// Location implements classify.Declaration.
func (d *TypeDecl) Location() types.SymbolLocation { return d.Loc }

// CallSite is one candidate dispatch invocation.
type CallSite struct {
	Dispatch types.DispatchKind

	// ArgType is the resolved concrete type of the dispatched argument, nil
	// when the expression could not be traced back to a construction or a
	// typed declaration.
	ArgType *types.TypeRef

	// EnclosingMethod and EnclosingType name the containing member.
	EnclosingMethod string
	EnclosingType   string

	Loc types.SymbolLocation

	// Context is the human-readable call text.
	Context string
}

// ResolveTransitiveInterfaces fills each declaration's full interface set by
// following base-type names through the given declarations. Unresolvable
// base names are skipped; partial type information is the normal case.
func ResolveTransitiveInterfaces(decls []*TypeDecl) {
	byDisplay := make(map[string]*TypeDecl, len(decls))
	bySimple := make(map[string][]*TypeDecl)
	for _, d := range decls {
		byDisplay[d.Ref.DisplayString()] = d
		bySimple[d.Ref.Name] = append(bySimple[d.Ref.Name], d)
	}

	lookup := func(name string, from *TypeDecl) *TypeDecl {
		if d, ok := byDisplay[name]; ok {
			return d
		}
		// Unqualified base name: prefer a declaration sharing the
		// referencing type's namespace, fall back to a unique simple match.
		candidates := bySimple[name]
		for _, c := range candidates {
			if c.Ref.Namespace == from.Ref.Namespace {
				return c
			}
		}
		if len(candidates) == 1 {
			return candidates[0]
		}
		return nil
	}

	for _, d := range decls {
		seen := make(map[string]struct{})
		var all []types.InterfaceRef
		add := func(refs []types.InterfaceRef) {
			for _, r := range refs {
				key := r.Namespace + "." + r.Name + "#" + argKey(r.TypeArgs)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				all = append(all, r)
			}
		}

		add(d.Declared)

		// Walk the base chain; guard against cycles.
		visited := map[*TypeDecl]struct{}{d: {}}
		queue := append([]string(nil), d.BaseTypes...)
		current := d
		for len(queue) > 0 {
			name := queue[0]
			queue = queue[1:]
			base := lookup(name, current)
			if base == nil {
				continue
			}
			if _, dup := visited[base]; dup {
				continue
			}
			visited[base] = struct{}{}
			add(base.Declared)
			queue = append(queue, base.BaseTypes...)
			current = base
		}

		d.All = all
	}
}

func argKey(args []*types.TypeRef) string {
	key := ""
	for _, a := range args {
		key += a.DisplayString() + ","
	}
	return key
}
