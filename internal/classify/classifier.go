// Package classify decides which mediator roles a type plays, from its
// transitive interface set. Role knowledge is a registration table, so a new
// handler category is a data addition rather than a scattered code branch.
package classify

import (
	"github.com/standardbeagle/medlink/internal/debug"
	"github.com/standardbeagle/medlink/internal/types"
)

// DefaultFrameworkNamespace is the namespace framework interfaces are
// declared in. Only interfaces attributed to this namespace participate in
// classification.
const DefaultFrameworkNamespace = "MediatR"

// RequestRole describes one request-side framework interface.
type RequestRole struct {
	InterfaceName string
	Arity         int // generic argument count
	Kind          types.RoleKind
	ResponseArg   int // index of the response type argument, -1 for none
}

// HandlerRole describes one handler-side framework interface.
type HandlerRole struct {
	InterfaceName string
	Arity         int
	Kind          types.RoleKind
	RequestArg    int // index of the served-request type argument
	ResponseArg   int // index of the response type argument, -1 for none
	MethodName    string
}

// Declaration is the narrow view of a type declaration the classifier needs.
type Declaration interface {
	Type() *types.TypeRef
	Interfaces() []types.InterfaceRef
	MethodLocation(name string) (types.SymbolLocation, bool)
	Location() types.SymbolLocation
}

// Classifier matches a type's interface set against registered roles.
type Classifier struct {
	namespace    string
	requestRoles []RequestRole
	handlerRoles []HandlerRole
}

// NewClassifier creates a classifier for the default framework namespace.
func NewClassifier() *Classifier {
	return NewClassifierFor(DefaultFrameworkNamespace)
}

// NewClassifierFor creates a classifier keyed on the given framework
// namespace, with the core MediatR roles plus the streaming and exception
// handler variants registered. An empty namespace means the default.
func NewClassifierFor(namespace string) *Classifier {
	if namespace == "" {
		namespace = DefaultFrameworkNamespace
	}
	c := &Classifier{namespace: namespace}

	c.RegisterRequestRole(RequestRole{InterfaceName: "IRequest", Arity: 0, Kind: types.RoleCommand, ResponseArg: -1})
	c.RegisterRequestRole(RequestRole{InterfaceName: "IRequest", Arity: 1, Kind: types.RoleQuery, ResponseArg: 0})
	c.RegisterRequestRole(RequestRole{InterfaceName: "INotification", Arity: 0, Kind: types.RoleNotification, ResponseArg: -1})

	c.RegisterHandlerRole(HandlerRole{InterfaceName: "IRequestHandler", Arity: 1, Kind: types.RoleCommand, RequestArg: 0, ResponseArg: -1, MethodName: "Handle"})
	c.RegisterHandlerRole(HandlerRole{InterfaceName: "IRequestHandler", Arity: 2, Kind: types.RoleQuery, RequestArg: 0, ResponseArg: 1, MethodName: "Handle"})
	c.RegisterHandlerRole(HandlerRole{InterfaceName: "INotificationHandler", Arity: 1, Kind: types.RoleNotification, RequestArg: 0, ResponseArg: -1, MethodName: "Handle"})
	c.RegisterHandlerRole(HandlerRole{InterfaceName: "IStreamRequestHandler", Arity: 2, Kind: types.RoleQuery, RequestArg: 0, ResponseArg: 1, MethodName: "Handle"})
	c.RegisterHandlerRole(HandlerRole{InterfaceName: "IRequestExceptionHandler", Arity: 3, Kind: types.RoleCommand, RequestArg: 0, ResponseArg: 1, MethodName: "Handle"})

	return c
}

// RegisterRequestRole adds a request-side role to the table.
func (c *Classifier) RegisterRequestRole(role RequestRole) {
	c.requestRoles = append(c.requestRoles, role)
}

// RegisterHandlerRole adds a handler-side role to the table.
func (c *Classifier) RegisterHandlerRole(role HandlerRole) {
	c.handlerRoles = append(c.handlerRoles, role)
}

// FrameworkNamespace returns the namespace classification keys on.
func (c *Classifier) FrameworkNamespace() string {
	return c.namespace
}

// ClassifyRequestRoles returns every request role the type plays, one
// descriptor per role kind at most. The scan never stops at the first hit:
// a type implementing both IRequest<T> and INotification yields two
// descriptors.
func (c *Classifier) ClassifyRequestRoles(t *types.TypeRef, interfaces []types.InterfaceRef) []types.RequestDescriptor {
	if !t.IsResolved() {
		return nil
	}

	var result []types.RequestDescriptor
	seenKinds := make(map[types.RoleKind]bool)

	for _, iface := range interfaces {
		if !iface.DeclaredIn(c.namespace) {
			continue
		}
		for _, role := range c.requestRoles {
			if role.InterfaceName != iface.Name || role.Arity != len(iface.TypeArgs) {
				continue
			}
			if seenKinds[role.Kind] {
				continue
			}
			seenKinds[role.Kind] = true

			desc := types.RequestDescriptor{Role: role.Kind, Request: t}
			if role.ResponseArg >= 0 && role.ResponseArg < len(iface.TypeArgs) {
				desc.Response = iface.TypeArgs[role.ResponseArg]
			}
			result = append(result, desc)
		}
	}

	return result
}

// ClassifyHandlerRole returns the handler descriptor for the type, or false
// when the type implements no handler interface. The location prefers the
// concrete handling method; when that cannot be pinpointed the type
// declaration's own location is used instead, so classification always
// produces a location.
func (c *Classifier) ClassifyHandlerRole(decl Declaration) (types.HandlerDescriptor, bool) {
	t := decl.Type()
	if !t.IsResolved() {
		return types.HandlerDescriptor{}, false
	}

	for _, iface := range decl.Interfaces() {
		if !iface.DeclaredIn(c.namespace) {
			continue
		}
		for _, role := range c.handlerRoles {
			if role.InterfaceName != iface.Name || role.Arity != len(iface.TypeArgs) {
				continue
			}
			if role.RequestArg >= len(iface.TypeArgs) {
				continue
			}
			request := iface.TypeArgs[role.RequestArg]
			if !request.IsResolved() {
				continue
			}

			desc := types.HandlerDescriptor{
				Handler: t,
				Role:    role.Kind,
				Request: request,
			}
			if role.ResponseArg >= 0 && role.ResponseArg < len(iface.TypeArgs) {
				desc.Response = iface.TypeArgs[role.ResponseArg]
			}

			if loc, ok := decl.MethodLocation(role.MethodName); ok {
				desc.Location = loc
			} else {
				debug.Log("classify", "no %s location on %s, using type declaration\n", role.MethodName, t.DisplayString())
				desc.Location = decl.Location()
			}
			return desc, true
		}
	}

	return types.HandlerDescriptor{}, false
}

// ClassifyHandlerRoles returns every handler role the type plays. A single
// class can handle several requests (or a request and a notification), so
// the scan does not stop at the first hit.
func (c *Classifier) ClassifyHandlerRoles(decl Declaration) []types.HandlerDescriptor {
	t := decl.Type()
	if !t.IsResolved() {
		return nil
	}

	var result []types.HandlerDescriptor
	for _, iface := range decl.Interfaces() {
		if !iface.DeclaredIn(c.namespace) {
			continue
		}
		for _, role := range c.handlerRoles {
			if role.InterfaceName != iface.Name || role.Arity != len(iface.TypeArgs) {
				continue
			}
			if role.RequestArg >= len(iface.TypeArgs) {
				continue
			}
			request := iface.TypeArgs[role.RequestArg]
			if !request.IsResolved() {
				continue
			}

			desc := types.HandlerDescriptor{
				Handler: t,
				Role:    role.Kind,
				Request: request,
			}
			if role.ResponseArg >= 0 && role.ResponseArg < len(iface.TypeArgs) {
				desc.Response = iface.TypeArgs[role.ResponseArg]
			}
			if loc, ok := decl.MethodLocation(role.MethodName); ok {
				desc.Location = loc
			} else {
				debug.Log("classify", "no %s location on %s, using type declaration\n", role.MethodName, t.DisplayString())
				desc.Location = decl.Location()
			}
			result = append(result, desc)
		}
	}
	return result
}

// IsDispatcherType reports whether a receiver type name denotes one of the
// framework's dispatcher roles (mediator, sender, publisher).
func IsDispatcherType(name string) bool {
	switch name {
	case "IMediator", "ISender", "IPublisher", "Mediator":
		return true
	}
	return false
}

// IsMarkerInterface reports whether name is one of the core marker
// interfaces whose presence makes a unit worth scanning at all.
func IsMarkerInterface(name string) bool {
	switch name {
	case "IRequest", "INotification", "IRequestHandler", "INotificationHandler":
		return true
	}
	return false
}
