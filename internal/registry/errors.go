package registry

import "fmt"

// ErrUnknownService is returned when a lookup or unregister targets a
// reference the registry doesn't know, and that isn't in the pending-unregister
// set either (spec.md §7 "Unknown service").
type ErrUnknownService struct {
	ServiceID int64
}

func (e *ErrUnknownService) Error() string {
	return fmt.Sprintf("unknown service: id=%d", e.ServiceID)
}

// ErrBadFilter wraps a malformed filter string reaching the registry
// (spec.md §7 "Bad filter").
type ErrBadFilter struct {
	Cause error
}

func (e *ErrBadFilter) Error() string {
	return fmt.Sprintf("bad filter: %v", e.Cause)
}

func (e *ErrBadFilter) Unwrap() error {
	return e.Cause
}

// ErrScopeViolation is returned when a prototype-only release is called on a
// non-prototype reference or vice versa (spec.md §7 "Scope violation").
type ErrScopeViolation struct {
	ServiceID int64
	Scope     string
}

func (e *ErrScopeViolation) Error() string {
	return fmt.Sprintf("scope violation: service id=%d has scope %q", e.ServiceID, e.Scope)
}

// ErrInvalidRegistration is returned for structural mistakes at register
// time (empty specification list, invalid scope combination).
type ErrInvalidRegistration struct {
	Reason string
}

func (e *ErrInvalidRegistration) Error() string {
	return "invalid service registration: " + e.Reason
}
