// Package koerrors defines the typed error taxonomy shared by the scheduler,
// sub-agents, and reviewer.
package koerrors

import "fmt"

// Kind is one of the closed set of error kinds raised by the core.
type Kind string

const (
	KindModelTransport      Kind = "model_transport"
	KindRateLimit           Kind = "rate_limit"
	KindTimeout             Kind = "timeout"
	KindCancelled           Kind = "cancelled"
	KindToolBudgetExhausted Kind = "tool_budget_exhausted"
	KindToolHandlerError    Kind = "tool_handler_error"
	KindInvalidOutput       Kind = "invalid_output"
	KindPlanUnparseable     Kind = "plan_unparseable"
	KindDependencyUnsat     Kind = "dependency_unsatisfied"
	KindCycleDetected       Kind = "cycle_detected"
)

// Error wraps a Kind with a human-readable detail and an optional cause.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if asError(err, &e) {
		return e.Kind, true
	}
	return "", false
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retriable reports whether an error kind is eligible for the Sub-Agent's
// exponential-backoff retry per spec.md §4.4 step 5.
func Retriable(kind Kind) bool {
	return kind == KindModelTransport || kind == KindRateLimit
}
