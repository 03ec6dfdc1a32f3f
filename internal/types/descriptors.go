package types

import (
	"fmt"
	"strconv"
	"strings"
)

// RequestDescriptor is one mediator role implemented by a type. A type may
// yield up to one descriptor per role kind (a request type can also be a
// notification), never more.
type RequestDescriptor struct {
	Role     RoleKind
	Request  *TypeRef
	Response *TypeRef // queries only
}

// HasResponse reports whether dispatching the request produces a value.
func (d RequestDescriptor) HasResponse() bool {
	return d.Response != nil
}

// HandlerDescriptor is one handler declaration serving one request role.
// Produced fresh on every scan and never mutated afterwards.
type HandlerDescriptor struct {
	Handler  *TypeRef
	Role     RoleKind
	Request  *TypeRef
	Response *TypeRef
	Location SymbolLocation
}

// DedupKey identifies a handler declaration across scan passes: two
// descriptors are the same iff handler identity, served-request identity,
// role kind and file path all match.
func (d HandlerDescriptor) DedupKey() string {
	var b strings.Builder
	b.WriteString(d.Handler.Identity())
	b.WriteByte('|')
	b.WriteString(d.Request.Identity())
	b.WriteByte('|')
	b.WriteString(d.Role.String())
	b.WriteByte('|')
	b.WriteString(d.Location.FilePath)
	return b.String()
}

func (d HandlerDescriptor) String() string {
	return fmt.Sprintf("%s handles %s (%s) at %s:%d",
		d.Handler.DisplayString(), d.Request.DisplayString(), d.Role, d.Location.FilePath, d.Location.Line)
}

// DedupHandlers removes repeated handler declarations, keeping first
// occurrence order.
func DedupHandlers(in []HandlerDescriptor) []HandlerDescriptor {
	seen := make(map[string]struct{}, len(in))
	out := make([]HandlerDescriptor, 0, len(in))
	for _, h := range in {
		key := h.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
	}
	return out
}

// UsageDescriptor is one call site where a request or notification instance
// is dispatched.
type UsageDescriptor struct {
	Request    *TypeRef
	MethodName string // containing method
	TypeName   string // containing type
	FilePath   string
	Line       int // 1-based
	Dispatch   DispatchKind
	Context    string // human-readable call text
}

// DedupKey identifies a call site across scan passes.
func (u UsageDescriptor) DedupKey() string {
	var b strings.Builder
	b.WriteString(u.Request.Identity())
	b.WriteByte('|')
	b.WriteString(u.MethodName)
	b.WriteByte('|')
	b.WriteString(u.TypeName)
	b.WriteByte('|')
	b.WriteString(u.FilePath)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(u.Line))
	b.WriteByte('|')
	b.WriteString(string(u.Dispatch))
	return b.String()
}

// DedupUsages removes repeated call sites, keeping first occurrence order.
func DedupUsages(in []UsageDescriptor) []UsageDescriptor {
	seen := make(map[string]struct{}, len(in))
	out := make([]UsageDescriptor, 0, len(in))
	for _, u := range in {
		key := u.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}
