// Package event defines the structured event stream emitted on every
// registry and orchestrator transition. Downstream consumers (log storage,
// metrics aggregation, alerting, exporters) subscribe to the Bus without
// taking a dependency on the core packages.
package event

import "time"

// Level indicates the severity of an event.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is the interface that all events must implement.
// It provides a common way to identify, timestamp, and grade events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "resource.registered",
	// "cleanup.failed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// Level returns the severity of the event.
	Level() Level
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	level     Level
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }
func (e baseEvent) Level() Level         { return e.level }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string, level Level) baseEvent {
	return baseEvent{
		eventType: eventType,
		level:     level,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Registry Events
// -----------------------------------------------------------------------------

// ResourceRegisteredEvent is emitted when a resource is added to the registry.
type ResourceRegisteredEvent struct {
	baseEvent
	ResourceID   string         // Unique identifier for the resource
	ResourceType string         // Resource type (database, server, timer, ...)
	Priority     int            // Cleanup priority; higher runs first
	Overwrote    bool           // True if an entry with the same ID was replaced
	Metadata     map[string]any // Caller-supplied metadata bag
}

// NewResourceRegisteredEvent creates a ResourceRegisteredEvent.
func NewResourceRegisteredEvent(resourceID, resourceType string, priority int, overwrote bool, metadata map[string]any) ResourceRegisteredEvent {
	return ResourceRegisteredEvent{
		baseEvent:    newBaseEvent("resource.registered", LevelDebug),
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Priority:     priority,
		Overwrote:    overwrote,
		Metadata:     metadata,
	}
}

// ResourceUnregisteredEvent is emitted when a resource is removed without
// its teardown being invoked.
type ResourceUnregisteredEvent struct {
	baseEvent
	ResourceID string // Unique identifier for the resource
	Existed    bool   // Whether the resource was present
}

// NewResourceUnregisteredEvent creates a ResourceUnregisteredEvent.
func NewResourceUnregisteredEvent(resourceID string, existed bool) ResourceUnregisteredEvent {
	return ResourceUnregisteredEvent{
		baseEvent:  newBaseEvent("resource.unregistered", LevelDebug),
		ResourceID: resourceID,
		Existed:    existed,
	}
}

// RegistrationRejectedEvent is emitted when a registration arrives while a
// cleanup pass is running and is dropped.
type RegistrationRejectedEvent struct {
	baseEvent
	ResourceID string // Resource that was rejected
	Reason     string // Why registration was rejected
}

// NewRegistrationRejectedEvent creates a RegistrationRejectedEvent.
func NewRegistrationRejectedEvent(resourceID, reason string) RegistrationRejectedEvent {
	return RegistrationRejectedEvent{
		baseEvent:  newBaseEvent("resource.rejected", LevelWarn),
		ResourceID: resourceID,
		Reason:     reason,
	}
}

// -----------------------------------------------------------------------------
// Cleanup Pass Events
// -----------------------------------------------------------------------------

// PassStartedEvent is emitted when a cleanup pass begins.
type PassStartedEvent struct {
	baseEvent
	Total  int  // Number of resources registered for this pass
	Forced bool // True for ForceCleanup passes
}

// NewPassStartedEvent creates a PassStartedEvent.
func NewPassStartedEvent(total int, forced bool) PassStartedEvent {
	return PassStartedEvent{
		baseEvent: newBaseEvent("cleanup.started", LevelInfo),
		Total:     total,
		Forced:    forced,
	}
}

// ResourceCleanedEvent is emitted when a resource's teardown succeeds.
type ResourceCleanedEvent struct {
	baseEvent
	ResourceID   string        // Resource that was cleaned
	ResourceType string        // Resource type
	Duration     time.Duration // Time from first attempt to success
	Attempts     int           // Number of attempts including the successful one
}

// NewResourceCleanedEvent creates a ResourceCleanedEvent.
func NewResourceCleanedEvent(resourceID, resourceType string, duration time.Duration, attempts int) ResourceCleanedEvent {
	return ResourceCleanedEvent{
		baseEvent:    newBaseEvent("cleanup.succeeded", LevelInfo),
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Duration:     duration,
		Attempts:     attempts,
	}
}

// ResourceCleanupFailedEvent is emitted when a resource's teardown exhausts
// its retries.
type ResourceCleanupFailedEvent struct {
	baseEvent
	ResourceID   string        // Resource that failed
	ResourceType string        // Resource type
	ErrorKind    string        // Taxonomy kind (mirrors errors.Kind for decoupling)
	Error        string        // Terminal error text
	Duration     time.Duration // Time spent across all attempts
	Attempts     int           // Attempts made
	Forced       bool          // True if a timeout, not completion, ended the terminal attempt
}

// NewResourceCleanupFailedEvent creates a ResourceCleanupFailedEvent.
func NewResourceCleanupFailedEvent(resourceID, resourceType, errorKind, errMsg string, duration time.Duration, attempts int, forced bool) ResourceCleanupFailedEvent {
	return ResourceCleanupFailedEvent{
		baseEvent:    newBaseEvent("cleanup.failed", LevelError),
		ResourceID:   resourceID,
		ResourceType: resourceType,
		ErrorKind:    errorKind,
		Error:        errMsg,
		Duration:     duration,
		Attempts:     attempts,
		Forced:       forced,
	}
}

// PassCompletedEvent is emitted when a cleanup pass finalizes.
type PassCompletedEvent struct {
	baseEvent
	Total    int           // Resources attempted
	Cleaned  int           // Resources cleaned successfully
	Failed   int           // Resources with terminal failures
	Forced   int           // Resources whose terminal attempt was timeout-ended
	Leaks    int           // Unexplained handles detected after the pass
	Duration time.Duration // Wall time of the whole pass
}

// NewPassCompletedEvent creates a PassCompletedEvent.
func NewPassCompletedEvent(total, cleaned, failed, forced, leaks int, duration time.Duration) PassCompletedEvent {
	level := LevelInfo
	if failed > 0 || leaks > 0 {
		level = LevelWarn
	}
	return PassCompletedEvent{
		baseEvent: newBaseEvent("cleanup.completed", level),
		Total:     total,
		Cleaned:   cleaned,
		Failed:    failed,
		Forced:    forced,
		Leaks:     leaks,
		Duration:  duration,
	}
}

// -----------------------------------------------------------------------------
// Handle Detection Events
// -----------------------------------------------------------------------------

// LeakDetectedEvent is emitted for each handle present after a pass that the
// baseline snapshot cannot explain.
type LeakDetectedEvent struct {
	baseEvent
	HandleType  string // Best-effort handle classification (timer, socket, ...)
	Description string // Human-readable handle description
}

// NewLeakDetectedEvent creates a LeakDetectedEvent.
func NewLeakDetectedEvent(handleType, description string) LeakDetectedEvent {
	return LeakDetectedEvent{
		baseEvent:   newBaseEvent("handle.leak_detected", LevelWarn),
		HandleType:  handleType,
		Description: description,
	}
}
