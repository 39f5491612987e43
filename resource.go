package resweep

import (
	"context"
	"time"
)

// ResourceType classifies a registered resource.
type ResourceType string

const (
	ResourceDatabase ResourceType = "database"
	ResourceServer   ResourceType = "server"
	ResourceTimer    ResourceType = "timer"
	ResourceSocket   ResourceType = "socket"
	ResourceProcess  ResourceType = "process"
	ResourceCustom   ResourceType = "custom"
)

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceDatabase, ResourceServer, ResourceTimer,
		ResourceSocket, ResourceProcess, ResourceCustom:
		return true
	default:
		return false
	}
}

// CleanupFunc tears down one resource. The context carries the attempt's
// deadline. Implementations should honor it, but the orchestrator does not
// depend on them doing so: a function that ignores the deadline is
// abandoned when the deadline fires, and its side effects may still land
// later, outside the report's visibility.
type CleanupFunc func(ctx context.Context) error

// Resource is one registered entry in the cleanup registry.
type Resource struct {
	// ID uniquely identifies the resource. Re-registering an ID while no
	// pass is running silently overwrites the previous entry.
	ID string
	// Type classifies the resource for per-type timeouts and report
	// breakdowns.
	Type ResourceType
	// Cleanup tears the resource down. Required.
	Cleanup CleanupFunc
	// Priority orders teardown; higher runs first. Resources that must
	// stop before their dependencies (a server before its database pool)
	// declare higher priority.
	Priority int
	// Timeout overrides the configured time budget for this resource.
	// Zero means use the per-type override or the graceful timeout.
	Timeout time.Duration
	// CreatedAt is stamped at registration.
	CreatedAt time.Time
	// Metadata is an open key/value bag carried into events.
	Metadata map[string]any

	// seq is the registration order, the stable tie-break for equal
	// priorities.
	seq uint64
}
