// Package provider holds the clients for the remote models the pipeline and
// the search engine depend on: embeddings, reranking and OCR.
package provider

import (
	"errors"
	"net/http"
)

// ProviderError wraps provider errors with additional context.
type ProviderError struct {
	operation  string
	statusCode int
	errType    string
	message    string
	cause      error
}

// NewProviderError creates a new ProviderError.
func NewProviderError(operation string, statusCode int, message string, cause error) *ProviderError {
	return &ProviderError{
		operation:  operation,
		statusCode: statusCode,
		message:    message,
		cause:      cause,
	}
}

// WithType returns a copy of the error tagged with the provider's error type.
func (e *ProviderError) WithType(errType string) *ProviderError {
	c := *e
	c.errType = errType
	return &c
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.operation + ": " + e.message
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error { return e.cause }

// Operation returns the operation that failed.
func (e *ProviderError) Operation() string { return e.operation }

// StatusCode returns the HTTP status code, or zero when no response arrived.
func (e *ProviderError) StatusCode() int { return e.statusCode }

// Type returns the provider's error type string, if it sent one.
func (e *ProviderError) Type() string { return e.errType }

// Message returns the error message.
func (e *ProviderError) Message() string { return e.message }

// IsRateLimited returns true if the error is due to rate limiting.
func (e *ProviderError) IsRateLimited() bool {
	return e.statusCode == http.StatusTooManyRequests
}

// Transient reports whether the failure is on the provider's side or in
// transit, as opposed to a problem with the request itself.
func (e *ProviderError) Transient() bool {
	return e.statusCode == 0 || e.statusCode == http.StatusTooManyRequests || e.statusCode >= 500
}

// Rejected reports whether the provider refused the request body itself.
// Sending the same input again will fail the same way.
func (e *ProviderError) Rejected() bool {
	switch e.statusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func asProviderError(err error) (*ProviderError, bool) {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr, true
	}
	return nil, false
}
