package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "graceful_timeout")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidResourceTypes returns the resource type names accepted as
// type_timeouts keys. Mirrors resweep.ResourceType for decoupling.
func ValidResourceTypes() []string {
	return []string{"database", "server", "timer", "socket", "process", "custom"}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation
// errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateTimeouts()...)
	errors = append(errors, c.validateRetries()...)
	errors = append(errors, c.validateTypeTimeouts()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateTimeouts validates the time budgets
func (c *Config) validateTimeouts() []ValidationError {
	var errors []ValidationError

	if c.GracefulTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "graceful_timeout",
			Value:   c.GracefulTimeout,
			Message: "must be positive",
		})
	}
	if c.ForceTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "force_timeout",
			Value:   c.ForceTimeout,
			Message: "must be positive",
		})
	}
	if c.HandleDetectionTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "handle_detection_timeout",
			Value:   c.HandleDetectionTimeout,
			Message: "must be positive",
		})
	}

	return errors
}

// validateRetries validates the retry policy
func (c *Config) validateRetries() []ValidationError {
	var errors []ValidationError

	if c.MaxRetries < 1 {
		errors = append(errors, ValidationError{
			Field:   "max_retries",
			Value:   c.MaxRetries,
			Message: "must be at least 1 (it counts total attempts)",
		})
	}
	if c.RetryDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry_delay",
			Value:   c.RetryDelay,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateTypeTimeouts validates per-type timeout overrides
func (c *Config) validateTypeTimeouts() []ValidationError {
	var errors []ValidationError

	valid := ValidResourceTypes()
	for typ, timeout := range c.TypeTimeouts {
		if !slices.Contains(valid, typ) {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("type_timeouts.%s", typ),
				Value:   typ,
				Message: fmt.Sprintf("unknown resource type, must be one of: %s", strings.Join(valid, ", ")),
			})
		}
		if timeout <= 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("type_timeouts.%s", typ),
				Value:   timeout,
				Message: "must be positive",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
