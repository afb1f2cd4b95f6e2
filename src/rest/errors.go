package rest

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConnectionFailed   = errors.New("connection failed")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingPermissions = errors.New("missing permissions")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrValidationFailed   = errors.New("validation failed")
)

// RateLimitedError is returned once a 429 survives every retry
// attempt. RetryAfter carries the server's last cooldown hint.
type RateLimitedError struct {
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d: %s", e.Status, e.Body)
}

// DecodingError wraps a malformed server payload together with the
// type it failed to decode into.
type DecodingError struct {
	Type string
	Err  error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Type, e.Err)
}

func (e *DecodingError) Unwrap() error {
	return e.Err
}

// APIErrorResponse is the error body returned when interacting with
// the server's resources.
type APIErrorResponse struct {
	Message string      `json:"message"`
	Code    uint        `json:"code"`
	Errors  interface{} `json:"errors,omitempty"`
}

// rateLimitResponse is the body of a 429. It takes precedence over the
// rate limit headers when present.
type rateLimitResponse struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
}
