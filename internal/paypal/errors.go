package paypal

import (
	"context"
	"errors"
	"fmt"
)

// Kind discriminates failure classes at the PayPal integration
// boundary. Callers branch on Kind, never on message text.
type Kind string

const (
	// KindConfiguration: credentials missing or invalid setup. Fatal,
	// never retried.
	KindConfiguration Kind = "configuration"
	// KindNetwork: the HTTP call could not be completed. Transient.
	KindNetwork Kind = "network"
	// KindUpstream: PayPal answered with a non-2xx status.
	KindUpstream Kind = "upstream"
	// KindTimeout: the call exceeded its deadline. Retryable.
	KindTimeout Kind = "timeout"
	// KindWindowClosed: the buyer closed the approval popup. Retried
	// automatically up to a budget before being surfaced.
	KindWindowClosed Kind = "window_closed"
	// KindOrderMismatch: a stale approval callback referenced an order
	// other than the one pending. Dropped silently.
	KindOrderMismatch Kind = "order_mismatch"
)

// Error is the typed error returned by the PayPal client and the
// capture flow. Status carries the upstream HTTP status when there is
// one; Detail carries the upstream response body for diagnostics.
type Error struct {
	Kind   Kind
	Status int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Detail != "":
		return fmt.Sprintf("paypal: %s (status %d): %s", e.Kind, e.Status, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("paypal: %s: %s", e.Kind, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("paypal: %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("paypal: %s", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a paypal.Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// Retryable reports whether the failure class is worth retrying.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetwork, KindTimeout, KindWindowClosed:
		return true
	}
	return false
}

// classifyTransport maps a transport-level failure to a typed error.
func classifyTransport(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

// FromClientReport classifies an error code reported by the approval
// callback. The buyer-side widget cannot be trusted to produce typed
// errors, so classification happens here at the boundary.
func FromClientReport(code, detail string) *Error {
	switch code {
	case "window_closed", "popup_closed":
		return &Error{Kind: KindWindowClosed, Detail: detail}
	case "network":
		return &Error{Kind: KindNetwork, Detail: detail}
	default:
		return &Error{Kind: KindUpstream, Detail: detail}
	}
}
