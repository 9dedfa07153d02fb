// ABOUTME: Classified errors returned by completion providers
// ABOUTME: Maps HTTP status and transport failures onto a small set of kinds

package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a provider failure.
type Kind string

const (
	KindRateLimited   Kind = "rate_limited"
	KindNotFound      Kind = "not_found"
	KindTransport     Kind = "transport_failure"
	KindEmptyResponse Kind = "empty_response"
)

// ErrEmptyResponse is the cause recorded when a provider answers with no text.
var ErrEmptyResponse = errors.New("provider returned no text")

// ProviderError wraps provider-specific errors with a classification.
type ProviderError struct {
	Provider string
	Kind     Kind
	Status   int // HTTP status, 0 when no response was received
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: %s (status %d): %v", e.Provider, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// UserMessage is the reply shown in chat. It names the error class and a hint
// but none of the underlying detail.
func (e *ProviderError) UserMessage() string {
	return fmt.Sprintf("%s error: %s (%s)", e.Provider, e.Kind, e.Kind.hint())
}

func (k Kind) hint() string {
	switch k {
	case KindRateLimited:
		return "rate limited, try again in a moment"
	case KindNotFound:
		return "check configuration"
	case KindEmptyResponse:
		return "no text came back, try rephrasing"
	default:
		return "provider unreachable, check configuration or connectivity"
	}
}

// ClassifyStatus maps a non-2xx HTTP status to a Kind.
func ClassifyStatus(status int) Kind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
		return KindNotFound
	default:
		return KindTransport
	}
}

// AsProviderError extracts a *ProviderError from err.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
