package types

import "strings"

// TypeRef is an opaque, comparable descriptor of a declared type. Short
// names alone are never sufficient to establish identity; the resolver
// compares DeclID, display string and metadata name in that order.
type TypeRef struct {
	// Name is the simple (unqualified) type name.
	Name string

	// Namespace is the declaring namespace, empty when unknown.
	Namespace string

	// AssemblyName identifies the containing assembly (from the owning
	// .csproj); empty when the reference was never bound to a unit.
	AssemblyName string

	// Nesting is the enclosing-type chain for nested types, outermost first.
	Nesting []string

	// DeclID binds the reference to a declaration in one workspace
	// snapshot. Zero when unresolved or reloaded from persisted state.
	DeclID DeclID
}

// IsResolved reports whether the reference carries enough information to
// participate in identity comparison at all.
func (t *TypeRef) IsResolved() bool {
	return t != nil && t.Name != ""
}

// DisplayString is the fully-qualified display form: Namespace.Outer.Inner.
func (t *TypeRef) DisplayString() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Nesting)+2)
	if t.Namespace != "" {
		parts = append(parts, t.Namespace)
	}
	parts = append(parts, t.Nesting...)
	parts = append(parts, t.Name)
	return strings.Join(parts, ".")
}

// MetadataName is the CLR-style metadata form, with the nesting chain joined
// by '+': Namespace.Outer+Inner.
func (t *TypeRef) MetadataName() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	if t.Namespace != "" {
		b.WriteString(t.Namespace)
		b.WriteByte('.')
	}
	for _, enclosing := range t.Nesting {
		b.WriteString(enclosing)
		b.WriteByte('+')
	}
	b.WriteString(t.Name)
	return b.String()
}

// Identity is the canonical identity string: fully-qualified name plus
// assembly. It is the only legal cache key for handler results.
func (t *TypeRef) Identity() string {
	if t == nil {
		return ""
	}
	return t.DisplayString() + ", " + t.AssemblyName
}

// ParseDisplayString rebuilds a TypeRef from a dotted display string. The
// result is not snapshot-bound (DeclID is zero) and has no nesting
// information, which is exactly the shape of a reference reloaded from the
// persisted cache.
func ParseDisplayString(display, assembly string) *TypeRef {
	display = strings.TrimSpace(display)
	if display == "" {
		return nil
	}
	idx := strings.LastIndexByte(display, '.')
	if idx < 0 {
		return &TypeRef{Name: display, AssemblyName: assembly}
	}
	return &TypeRef{
		Name:         display[idx+1:],
		Namespace:    display[:idx],
		AssemblyName: assembly,
	}
}

// InterfaceRef is one entry of a type's interface set.
type InterfaceRef struct {
	// Name is the simple interface name (IRequest, INotificationHandler...).
	Name string

	// Namespace is the declaring namespace when it could be established,
	// either from explicit qualification (MediatR.IRequest) or from binding
	// the name to a declaration in the workspace.
	Namespace string

	// ImportedNamespaces lists the using directives in scope at the
	// referencing file when Namespace is unknown. A tree-sitter backend has
	// no assembly metadata, so an unqualified framework interface is
	// attributed through the file's usings instead.
	ImportedNamespaces []string

	// TypeArgs are the generic arguments, empty for non-generic interfaces.
	TypeArgs []*TypeRef
}

// DeclaredIn reports whether the interface is known or plausibly declared in
// the given namespace.
func (i InterfaceRef) DeclaredIn(ns string) bool {
	if i.Namespace != "" {
		return i.Namespace == ns
	}
	for _, imported := range i.ImportedNamespaces {
		if imported == ns {
			return true
		}
	}
	return false
}
