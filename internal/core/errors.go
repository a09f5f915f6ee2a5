package core

import "fmt"

// ValidationError rejects malformed input before any side effect.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ConflictError reports a uniqueness violation (duplicate domain name, tenant
// already owning a domain).
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// NotFoundError reports an unknown rule or domain for the tenant.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// ResourceExhaustedError reports a fully allocated tenant id block.
type ResourceExhaustedError struct {
	Reason string
}

func (e *ResourceExhaustedError) Error() string { return e.Reason }

// ConfigurationError is surfaced when materialization or the engine's
// validate-then-reload fails and the mutation was rolled back. Cause is the
// proximate failure; user-facing layers deliberately replace it with a
// generic message so engine diagnostics never leak.
type ConfigurationError struct {
	Cause error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration could not be applied: %v", e.Cause)
	}
	return "configuration could not be applied"
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }
