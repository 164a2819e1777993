// Package mcperr defines the error taxonomy shared across the proxy core.
//
// Every subsystem — transports, the router, the catalog, the enhancement
// pipeline, and the LLM adapters — classifies its failures into one of the
// Kinds below so that callers can make a single retry/surface decision
// regardless of which subsystem produced the error.
package mcperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind categorizes a failure the way spec.md section 7 distinguishes them.
type Kind int

const (
	// KindUnknown is the zero value; never returned deliberately.
	KindUnknown Kind = iota

	// KindValidation covers bad input, bad schema, or an empty message.
	// Never retriable.
	KindValidation

	// KindConnection covers network and connection failures. Retriable
	// per the owning transport's policy.
	KindConnection

	// KindTimeout covers a call whose deadline elapsed before a response
	// arrived. Not retried automatically; local to the call.
	KindTimeout

	// KindProtocol covers malformed JSON-RPC or an unknown method from an
	// upstream. Never retried.
	KindProtocol

	// KindMCP covers a JSON-RPC error reply from a peer, surfaced
	// verbatim. Never retried — see SPEC_FULL.md Design Notes #4.
	KindMCP

	// KindRateLimit covers provider or elicitation rate limiting. Never
	// retried automatically; callers get a reset time.
	KindRateLimit

	// KindContentFiltered covers regex or length policy violations.
	// Never retried.
	KindContentFiltered

	// KindQueueFull covers a single-session transport's bounded queue
	// rejecting a new entry.
	KindQueueFull

	// KindCancelled covers a caller-initiated cancellation.
	KindCancelled

	// KindDisconnected covers a call that failed because its transport
	// tore down while the call was outstanding.
	KindDisconnected

	// KindModelNotAvailable covers an LLM provider call naming a model
	// the provider does not serve. Never retried.
	KindModelNotAvailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindProtocol:
		return "protocol"
	case KindMCP:
		return "mcp_error"
	case KindRateLimit:
		return "rate_limit"
	case KindContentFiltered:
		return "content_filtered"
	case KindQueueFull:
		return "queue_full"
	case KindCancelled:
		return "cancelled"
	case KindDisconnected:
		return "disconnected"
	case KindModelNotAvailable:
		return "model_not_available"
	default:
		return "unknown"
	}
}

// Retriable reports whether the spec's retry table allows automatic retry
// of a failure of this kind. Transports still own their own backoff
// policy; this only says whether retrying is ever appropriate.
func (k Kind) Retriable() bool {
	return k == KindConnection
}

// Error is the error type returned across package boundaries in this
// module. It always carries a Kind so callers can branch without string
// matching.
type Error struct {
	Kind    Kind
	Message string
	// ResetAt is set for KindRateLimit to report when the window resets.
	ResetAt time.Time
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error of the given kind wrapping err (which may be nil).
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// RateLimited creates a KindRateLimit error carrying a reset time.
func RateLimited(message string, resetAt time.Time) *Error {
	return &Error{Kind: KindRateLimit, Message: message, ResetAt: resetAt}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, otherwise returns KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
