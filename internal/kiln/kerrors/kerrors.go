// Package kerrors defines the typed error taxonomy the orchestration core
// classifies every adapter failure into, and the policy each kind implies.
package kerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies one row of the error taxonomy.
type Kind string

const (
	// KindConfiguration covers missing tokens, wrong scopes. Fatal at startup.
	KindConfiguration Kind = "configuration_error"
	// KindAuthorization covers 401/403 from the adapter. Fatal.
	KindAuthorization Kind = "authorization_error"
	// KindPlatformUnreachable covers DNS, TLS, connection reset, 5xx. Trips HibernationControl.
	KindPlatformUnreachable Kind = "platform_unreachable"
	// KindTransientAdapter covers 429, 502 single occurrence. Surfaces as a cycle failure.
	KindTransientAdapter Kind = "transient_adapter_error"
	// KindSchema covers an unexpected response shape. Logged; the item/board is skipped.
	KindSchema Kind = "schema_error"
	// KindRaceLost is not an error: another actor claimed the label first.
	KindRaceLost Kind = "race_lost"
	// KindWorkflowFailure covers the executor returning a non-success outcome.
	KindWorkflowFailure Kind = "workflow_failure"
	// KindInvariantViolation is defensive: e.g. two running labels observed on one item.
	KindInvariantViolation Kind = "invariant_violation"
)

// Error wraps an underlying error with its classified Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// Fatal reports whether a cycle observing this error should terminate the
// process (ConfigurationError, AuthorizationError).
func Fatal(err error) bool {
	return Is(err, KindConfiguration) || Is(err, KindAuthorization)
}

// PlatformDown reports whether this error should trip HibernationControl.
func PlatformDown(err error) bool {
	return Is(err, KindPlatformUnreachable)
}

// Classify maps a raw transport error's message to a Kind using the same
// substring heuristics the adapter layer uses to decide retryability.
// Adapters should prefer constructing a typed *Error directly when they
// know the HTTP status; Classify is the fallback for opaque errors
// surfacing from deeper transport layers.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg, "status 401", "status 403", "unauthorized", "forbidden"):
		return KindAuthorization
	case containsAny(msg, "status 429", "status 502", "status 503", "status 504"):
		return KindTransientAdapter
	case containsAny(msg, "status 500"):
		return KindPlatformUnreachable
	case containsAny(msg, "connection refused", "connection reset", "no such host",
		"network is unreachable", "i/o timeout", "dial tcp", "tls", "dns"):
		return KindPlatformUnreachable
	case containsAny(msg, "unexpected end of json", "cannot unmarshal", "invalid character"):
		return KindSchema
	default:
		return KindTransientAdapter
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
