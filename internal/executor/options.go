package executor

import "time"

// Granularity selects the transaction scope for a run.
type Granularity string

const (
	// GranularityPerPlan wraps the whole plan in one transaction. Requires
	// an engine with transactional DDL; otherwise the run falls back to
	// per-primitive with a warning.
	GranularityPerPlan Granularity = "per-plan"

	// GranularityPerPrimitive wraps each primitive in its own transaction.
	// Batched primitives (backfills) run outside any wrapping transaction
	// so each batch commits on its own.
	GranularityPerPrimitive Granularity = "per-primitive"
)

// Options controls one executor run.
type Options struct {
	// Granularity is the requested transaction scope.
	Granularity Granularity

	// StopOnFirstFailure halts the remaining plan after the first failed
	// primitive. When false, execution continues with primitives that do
	// not depend on a failed one.
	StopOnFirstFailure bool

	// DryRun probes and previews without mutating anything.
	DryRun bool

	// StepTimeout bounds each probe and each apply. Zero means no bound.
	StepTimeout time.Duration

	// LockKey names the advisory lock serializing runs against the same
	// schema. Empty means the plan name.
	LockKey string
}

// DefaultOptions returns the options used when the caller specifies nothing:
// per-primitive transactions, stop on first failure.
func DefaultOptions() Options {
	return Options{
		Granularity:        GranularityPerPrimitive,
		StopOnFirstFailure: true,
	}
}
