package types

// FileID is a 32-bit identifier for a source file within one workspace session.
type FileID uint32

// UnitID is a 32-bit identifier for a compilable unit (a C# project).
type UnitID uint32

// DeclID identifies one type declaration within one workspace snapshot.
// Two TypeRefs carrying the same non-zero DeclID were produced from the same
// declaration in the same snapshot; the zero value means "not snapshot-bound"
// (for example a TypeRef rebuilt from a persisted cache entry).
type DeclID uint64

// RoleKind classifies the mediator role a type plays.
type RoleKind int

const (
	RoleCommand RoleKind = iota
	RoleQuery
	RoleNotification
)

func (k RoleKind) String() string {
	switch k {
	case RoleCommand:
		return "command"
	case RoleQuery:
		return "query"
	case RoleNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// IsNotification reports whether the role is the broadcast role.
func (k RoleKind) IsNotification() bool {
	return k == RoleNotification
}

// DispatchKind is the mediator method a call site goes through.
type DispatchKind string

const (
	DispatchSend         DispatchKind = "Send"
	DispatchSendAsync    DispatchKind = "SendAsync"
	DispatchPublish      DispatchKind = "Publish"
	DispatchPublishAsync DispatchKind = "PublishAsync"
)

// KnownDispatchKinds lists every dispatch method name, used by the usage
// scanner to pre-filter invocation candidates.
var KnownDispatchKinds = []DispatchKind{
	DispatchSend, DispatchSendAsync, DispatchPublish, DispatchPublishAsync,
}

// DispatchKindFromMethod maps a method name to a dispatch kind.
func DispatchKindFromMethod(name string) (DispatchKind, bool) {
	for _, k := range KnownDispatchKinds {
		if string(k) == name {
			return k, true
		}
	}
	return "", false
}

// IsPublish reports whether the dispatch broadcasts a notification.
func (d DispatchKind) IsPublish() bool {
	return d == DispatchPublish || d == DispatchPublishAsync
}

// SymbolLocation is a resolved source position. Line and Column are 1-based.
type SymbolLocation struct {
	FilePath string
	Line     int
	Column   int
}

// IsZero reports whether the location has not been filled in.
func (l SymbolLocation) IsZero() bool {
	return l.FilePath == "" && l.Line == 0
}
