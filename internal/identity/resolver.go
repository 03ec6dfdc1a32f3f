// Package identity decides whether two type references denote the same
// declared type. The same declaration can surface as logically-distinct
// references across different parse passes or from the persisted cache, so
// plain equality is not enough.
package identity

import (
	"github.com/standardbeagle/medlink/internal/types"
)

// Resolver implements the three-tier identity comparison. Each tier is a
// stricter fallback of the previous one; later tiers key only on the type's
// own metadata name, which is sufficient because handler matching always
// compares request types, never two instantiations of one generic handler.
type Resolver struct{}

// NewResolver creates a Resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// AreSameType reports whether a and b denote the same declared type.
// Unresolved references are never equal to anything, including themselves.
func (r *Resolver) AreSameType(a, b *types.TypeRef) bool {
	if !a.IsResolved() || !b.IsResolved() {
		return false
	}

	// Tier 1: snapshot object identity. Both references were produced from
	// the same declaration in the same workspace snapshot.
	if a.DeclID != 0 && a.DeclID == b.DeclID {
		return true
	}

	// Tier 2: fully-qualified display string. Catches the same type
	// reloaded from a structurally identical snapshot.
	if da, db := a.DisplayString(), b.DisplayString(); da == db && da != "" {
		// An unqualified short name on both sides is not evidence of
		// identity; two unrelated Ping types must not collide.
		if a.Namespace != "" || b.Namespace != "" || len(a.Nesting) > 0 || len(b.Nesting) > 0 {
			return true
		}
	}

	// Tier 3: metadata name plus assembly name. Catches cross-assembly or
	// cross-snapshot references when display strings differ on formatting.
	if a.AssemblyName != "" && a.AssemblyName == b.AssemblyName &&
		a.MetadataName() == b.MetadataName() {
		return true
	}

	return false
}

// Identity returns the canonical identity string for t, the only legal
// cache key shape.
func (r *Resolver) Identity(t *types.TypeRef) string {
	return t.Identity()
}
