package patch

import (
	"errors"
	"fmt"
)

// ProbeError reports a genuine metadata-access failure while probing. It is
// fatal for the whole plan: "not found" is never a ProbeError.
type ProbeError struct {
	PrimitiveID string
	Err         error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe failed for %s: %v", e.PrimitiveID, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// ApplyError reports a mutation rejected by the engine. It fails the
// primitive; whether the plan continues depends on the executor options.
type ApplyError struct {
	PrimitiveID string
	Err         error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply failed for %s: %v", e.PrimitiveID, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// ConstraintConflictError reports a foreign key that already exists on the
// target column but points somewhere else. Never silently skipped.
type ConstraintConflictError struct {
	Table    string
	Column   string
	Existing string // existing constraint, rendered as name -> referenced table
	Wanted   string
}

func (e *ConstraintConflictError) Error() string {
	return fmt.Sprintf("conflicting foreign key on %s.%s: existing %s, wanted reference to %s",
		e.Table, e.Column, e.Existing, e.Wanted)
}

// AmbiguousStateError reports a half-applied state the prober detected
// explicitly, such as both the old and new index name existing at once.
type AmbiguousStateError struct {
	Detail string
}

func (e *AmbiguousStateError) Error() string {
	return fmt.Sprintf("ambiguous schema state: %s", e.Detail)
}

// TimeoutError reports a probe or apply exceeding its caller-supplied
// deadline. Treated as a failure, never silently retried.
type TimeoutError struct {
	PrimitiveID string
	Stage       string // "probe" or "apply"
	Err         error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out for %s: %v", e.Stage, e.PrimitiveID, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ConfigurationError reports an invalid plan: unknown kind, missing
// parameters, duplicate ids, cyclic depends_on. Raised at plan-load time,
// before any connection is used.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid plan: %s", e.Reason)
}

// IsFatal reports whether an error aborts the remainder of the plan
// regardless of the stop-on-first-failure option.
func IsFatal(err error) bool {
	var probeErr *ProbeError
	var configErr *ConfigurationError
	return errors.As(err, &probeErr) || errors.As(err, &configErr)
}
