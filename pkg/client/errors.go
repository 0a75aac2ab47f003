package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrTokenRequired is returned by New when no credential is configured.
	ErrTokenRequired = errors.New("github token is required")
)

// ErrorClass represents a classification of failed API calls.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than throttling.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 403/429 throttled responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a successful response with an unreadable body.
	ErrorClassDecode ErrorClass = "decode"
)

// APIError is a failed API call with its classification.
type APIError struct {
	API        string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("github %s %s error (status %d): %s: %v",
			e.API, e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("github %s %s error (status %d): %s",
		e.API, e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// ClassOf returns the ErrorClass of err, or "" if err is not an *APIError.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ""
}

// IsRateLimited reports whether err is a throttled response. The backoff
// has already slept by the time the caller sees it, so the call may be
// issued again.
func IsRateLimited(err error) bool {
	return ClassOf(err) == ErrorClassRateLimit
}
