// Package errors provides centralized error definitions and error handling
// utilities for resweep. It defines the cleanup error taxonomy, sentinel
// errors, constructors with context wrapping, and classification helpers
// that map underlying failures onto taxonomy kinds.
//
// # Error Types
//
// The package provides one structured error type:
//   - CleanupError: a terminal, resource-scoped teardown failure tagged
//     with a Kind from the taxonomy
//
// and sentinel errors for common conditions (ErrTimeout,
// ErrConnectionRefused, ErrResourceBusy, ErrPermissionDenied,
// ErrCleanupInProgress).
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewCleanupError("teardown failed", cause).
//		WithResource("db-main", "database")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrTimeout) { ... }
//
//	var cleanupErr *errors.CleanupError
//	if errors.As(err, &cleanupErr) { ... }
//
//	kind := errors.Classify(err)
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Kind classifies a cleanup failure. It is the coarse taxonomy reported to
// callers; anything that cannot be determined from the underlying error is
// KindUnknown.
type Kind string

const (
	// KindTimeout indicates the teardown did not settle within its budget.
	KindTimeout Kind = "TIMEOUT"
	// KindConnectionRefused indicates the resource's endpoint actively
	// refused a connection during teardown.
	KindConnectionRefused Kind = "CONNECTION_REFUSED"
	// KindResourceBusy indicates the resource was in use and could not be
	// released.
	KindResourceBusy Kind = "RESOURCE_BUSY"
	// KindPermissionDenied indicates the process lacked permission to
	// release the resource.
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	// KindUnknown is the default for unclassifiable failures.
	KindUnknown Kind = "UNKNOWN"
)

// Sentinel errors for common cleanup conditions.
var (
	// ErrTimeout indicates that a teardown operation timed out.
	ErrTimeout = New("cleanup timed out")
	// ErrConnectionRefused indicates a refused connection during teardown.
	ErrConnectionRefused = New("connection refused")
	// ErrResourceBusy indicates the resource is busy.
	ErrResourceBusy = New("resource busy")
	// ErrPermissionDenied indicates insufficient permission.
	ErrPermissionDenied = New("permission denied")
	// ErrCleanupInProgress indicates that a cleanup pass is already running.
	ErrCleanupInProgress = New("cleanup pass already in progress")
	// ErrCleanupPanicked indicates that a teardown operation panicked.
	ErrCleanupPanicked = New("cleanup function panicked")
)

// CleanupError represents a terminal, resource-scoped teardown failure.
//
// Example:
//
//	err := errors.NewCleanupError("close failed", cause).
//		WithResource("http-srv", "server")
//	fmt.Println(err) // "cleanup error [resource=http-srv, type=server, kind=UNKNOWN]: close failed: ..."
type CleanupError struct {
	Kind         Kind
	ResourceID   string
	ResourceType string

	message string
	cause   error
}

// NewCleanupError creates a CleanupError, classifying its Kind from the
// cause. A nil cause yields KindUnknown.
func NewCleanupError(message string, cause error) *CleanupError {
	return &CleanupError{
		Kind:    Classify(cause),
		message: message,
		cause:   cause,
	}
}

// WithResource adds the resource identity to the error context.
func (e *CleanupError) WithResource(id, resourceType string) *CleanupError {
	e.ResourceID = id
	e.ResourceType = resourceType
	return e
}

// WithKind overrides the classified kind.
func (e *CleanupError) WithKind(k Kind) *CleanupError {
	e.Kind = k
	return e
}

// Message returns the error message without resource context or cause.
func (e *CleanupError) Message() string {
	return e.message
}

// Error returns the formatted error message.
func (e *CleanupError) Error() string {
	var parts []string
	if e.ResourceID != "" {
		parts = append(parts, fmt.Sprintf("resource=%s", e.ResourceID))
	}
	if e.ResourceType != "" {
		parts = append(parts, fmt.Sprintf("type=%s", e.ResourceType))
	}
	parts = append(parts, fmt.Sprintf("kind=%s", e.Kind))

	prefix := fmt.Sprintf("cleanup error [%s]", strings.Join(parts, ", "))
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Unwrap returns the underlying error.
func (e *CleanupError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *CleanupError) Is(target error) bool {
	if _, ok := target.(*CleanupError); ok {
		return true
	}
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Classify maps an underlying failure onto a taxonomy Kind. It checks, in
// order: sentinel and context errors, syscall errno values, net.Error
// timeouts, and finally well-known substrings of the error text (teardown
// errors frequently arrive as flattened strings from drivers). Anything
// unmatched is KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, os.ErrDeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrConnectionRefused),
		errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	case errors.Is(err, ErrResourceBusy),
		errors.Is(err, syscall.EBUSY):
		return KindResourceBusy
	case errors.Is(err, ErrPermissionDenied),
		errors.Is(err, os.ErrPermission),
		errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EPERM):
		return KindPermissionDenied
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timed out") || strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "econnrefused"):
		return KindConnectionRefused
	case strings.Contains(msg, "resource busy") || strings.Contains(msg, "ebusy"):
		return KindResourceBusy
	case strings.Contains(msg, "permission denied") || strings.Contains(msg, "eacces"):
		return KindPermissionDenied
	}

	return KindUnknown
}
