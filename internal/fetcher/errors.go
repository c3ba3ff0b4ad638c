package fetcher

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidJSON  = errors.New("response body is not valid JSON")
	ErrBodyTooLarge = errors.New("response body exceeds maximum size")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected HTTP status code: %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected HTTP status code: %d: %s", e.StatusCode, e.Body)
}

// Error wrapping functions with context
func ErrRequestCreation(err error) error {
	return fmt.Errorf("failed to create HTTP request: %w", err)
}

func ErrHTTPRequest(err error) error {
	return fmt.Errorf("HTTP request failed: %w", err)
}

func ErrUnexpectedStatus(statusCode int, body string) error {
	return &StatusError{StatusCode: statusCode, Body: body}
}

func ErrReadResponse(err error) error {
	return fmt.Errorf("failed to read response: %w", err)
}
