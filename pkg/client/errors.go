package client

import (
	"fmt"
	"net/http"
)

// ErrorClass classifies upstream failures for handling and observability.
type ErrorClass string

const (
	// ErrorClassAuth covers 401/403. Fatal for the stream, never retried.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassRateLimit covers 429. Recovered locally by a blocking
	// delay and a retry of the same page, never surfaced to the caller.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNotFound covers 404. Recovered locally only for endpoints
	// with configured fallback variants.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassStructural covers 200 responses whose body is not JSON.
	// The upstream served an error page disguised as success.
	ErrorClassStructural ErrorClass = "structural"

	// ErrorClassClient covers remaining 4xx statuses.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer covers 5xx statuses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork covers transport-level failures.
	ErrorClassNetwork ErrorClass = "network"
)

// bodyExcerptLimit caps how much of a response body is logged or carried
// in an error.
const bodyExcerptLimit = 1000

// APIError is an upstream failure with enough context to diagnose without
// reproducing the request.
type APIError struct {
	StatusCode  int
	Class       ErrorClass
	Endpoint    string
	Message     string
	BodyExcerpt string
	Err         error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("shipstation %s error on %s (status %d): %s: %v",
			e.Class, e.Endpoint, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("shipstation %s error on %s (status %d): %s",
		e.Class, e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-200 HTTP status to its error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorClassAuth
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusNotFound:
		return ErrorClassNotFound
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// excerpt truncates a body for logging.
func excerpt(body []byte) string {
	if len(body) > bodyExcerptLimit {
		return string(body[:bodyExcerptLimit])
	}
	return string(body)
}
