package errors

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorType categorizes failures in the navigation kernel.
type ErrorType string

const (
	// ErrorTypeUnresolvedType means a type reference could not be bound to a
	// declaration. Treated as "not a match" by callers, never fatal.
	ErrorTypeUnresolvedType ErrorType = "unresolved_type"

	// ErrorTypeMissingMethodLocation means the Handle method could not be
	// pinpointed; the classifier falls back to the type declaration.
	ErrorTypeMissingMethodLocation ErrorType = "missing_method_location"

	// ErrorTypeStaleCacheEntry means a cached location's backing file no
	// longer exists; triggers invalidation plus a fresh scan.
	ErrorTypeStaleCacheEntry ErrorType = "stale_cache_entry"

	// ErrorTypeScanCancelled means cooperative cancellation was observed
	// between unit scans.
	ErrorTypeScanCancelled ErrorType = "scan_cancelled"

	// ErrorTypeCacheIO covers disk failures and corrupt persisted caches.
	ErrorTypeCacheIO ErrorType = "cache_io"

	// ErrorTypeWorkspace covers failures opening or scanning the workspace.
	ErrorTypeWorkspace ErrorType = "workspace"
)

// NavError carries the failure taxonomy for scan and cache operations.
type NavError struct {
	Type      ErrorType
	Operation string
	Path      string
	Identity  string
	Err       error
	Timestamp time.Time
}

// New creates a NavError for the given operation.
func New(errType ErrorType, op string, err error) *NavError {
	return &NavError{
		Type:      errType,
		Operation: op,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// WithPath attaches the file path the failure relates to.
func (e *NavError) WithPath(path string) *NavError {
	e.Path = path
	return e
}

// WithIdentity attaches the request-type identity the failure relates to.
func (e *NavError) WithIdentity(identity string) *NavError {
	e.Identity = identity
	return e
}

func (e *NavError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Type, e.Operation)
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Identity != "" {
		msg += " [" + e.Identity + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NavError) Unwrap() error {
	return e.Err
}

// ScanCancelled wraps a context error observed between unit scans. It is a
// non-error "operation aborted" signal: partial results must not be reported
// as complete.
func ScanCancelled(err error) *NavError {
	return New(ErrorTypeScanCancelled, "scan", err)
}

// CacheIO wraps a cache persistence failure.
func CacheIO(op, path string, err error) *NavError {
	return New(ErrorTypeCacheIO, op, err).WithPath(path)
}

// StaleCacheEntry records that a cached location's backing file is gone.
func StaleCacheEntry(identity, path string) *NavError {
	return New(ErrorTypeStaleCacheEntry, "validate", nil).WithIdentity(identity).WithPath(path)
}

// Workspace wraps a workspace discovery or parse failure.
func Workspace(op, path string, err error) *NavError {
	return New(ErrorTypeWorkspace, op, err).WithPath(path)
}

// IsScanCancelled reports whether err is a cancellation signal, either the
// kernel's own taxonomy or a raw context error.
func IsScanCancelled(err error) bool {
	return isType(err, ErrorTypeScanCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsCacheIO reports whether err is a cache persistence failure.
func IsCacheIO(err error) bool {
	return isType(err, ErrorTypeCacheIO)
}

func isType(err error, t ErrorType) bool {
	var navErr *NavError
	if errors.As(err, &navErr) {
		return navErr.Type == t
	}
	return false
}
