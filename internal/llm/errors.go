package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorKind classifies provider failures so the orchestrator can decide
// whether a retry makes sense.
type ErrorKind int

const (
	// KindUnavailable covers network failures and provider 5xx responses.
	KindUnavailable ErrorKind = iota
	// KindRejected covers provider-side validation failures, e.g. context
	// too long or bad credentials. Never worth retrying.
	KindRejected
	// KindTimeout covers deadline exceeded, either locally or provider-side.
	KindTimeout
)

// String returns the stable wire name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindRejected:
		return "upstream_rejected"
	case KindTimeout:
		return "upstream_timeout"
	default:
		return "upstream_unavailable"
	}
}

// ProviderError is the stable error surface of every provider. Message
// holds a short description safe to log; raw provider payloads and
// credentials must never end up in it.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Status   int // HTTP status when the provider responded, 0 otherwise
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// KindOf extracts the error kind from err, unwrapping as needed.
func KindOf(err error) (ErrorKind, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

// IsRetryable reports whether err represents a transient provider failure
// (unavailable or timeout). Rejections are permanent.
func IsRetryable(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind != KindRejected
}

// classifyStatus maps a provider HTTP status to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindUnavailable
	case status >= 400 && status < 500:
		return KindRejected
	default:
		return KindUnavailable
	}
}

// classifyTransport maps a transport-level error (no provider response)
// to an error kind.
func classifyTransport(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindUnavailable
}
