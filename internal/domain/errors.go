package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/aws/smithy-go"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code      string
	Message   string
	Err       error
	Retryable bool
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s - %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so callers can test
// against the sentinels below with errors.Is.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error, retryable bool) *DomainError {
	return &DomainError{
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}

// Stage error codes
const (
	CodeUpstreamRequest = "UPSTREAM_REQUEST_FAILED"
	CodeStorageWrite    = "STORAGE_WRITE_FAILED"
	CodeCatalog         = "CATALOG_FAILED"
	CodeQuery           = "QUERY_FAILED"
	CodeLocationDrift   = "LOCATION_DRIFT"
)

// Common domain errors
var (
	ErrUpstreamRequest = &DomainError{
		Code:    CodeUpstreamRequest,
		Message: "Failed to fetch sports data",
	}

	ErrStorageWrite = &DomainError{
		Code:    CodeStorageWrite,
		Message: "Failed to store payload",
	}

	ErrCatalog = &DomainError{
		Code:    CodeCatalog,
		Message: "Failed to catalog stored data",
	}

	ErrQuery = &DomainError{
		Code:    CodeQuery,
		Message: "Failed to execute query",
	}

	ErrLocationDrift = &DomainError{
		Code:    CodeLocationDrift,
		Message: "Uploaded object is outside the crawler source path",
	}
)

// UpstreamRequestError wraps a fetch failure.
func UpstreamRequestError(err error) error {
	return NewDomainError(CodeUpstreamRequest, ErrUpstreamRequest.Message, err, false)
}

// StorageWriteError wraps an object store failure.
func StorageWriteError(err error) error {
	return NewDomainError(CodeStorageWrite, ErrStorageWrite.Message, err, false)
}

// CatalogError wraps a database or crawler failure with the step that failed.
func CatalogError(step string, err error) error {
	return NewDomainError(CodeCatalog, fmt.Sprintf("%s failed", step), err, false)
}

// QueryError wraps a query failure with the step that failed.
func QueryError(step string, err error) error {
	return NewDomainError(CodeQuery, fmt.Sprintf("%s failed", step), err, false)
}

// QueryStateError reports a query that reached a terminal state other than SUCCEEDED.
func QueryStateError(state, reason string) error {
	msg := fmt.Sprintf("query finished with state %s", state)
	if reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, reason)
	}
	return NewDomainError(CodeQuery, msg, nil, false)
}

// PollTimeoutError is returned when a status poll exceeds its attempt budget.
type PollTimeoutError struct {
	Attempts   uint
	Elapsed    time.Duration
	LastStatus string
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("polling gave up after %d attempts (%s), last status %q",
		e.Attempts, e.Elapsed.Round(time.Millisecond), e.LastStatus)
}

// ErrorType categorizes errors for metrics
func ErrorType(err error) string {
	var pollErr *PollTimeoutError
	if errors.As(err, &pollErr) {
		return "poll_timeout"
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	return "unknown"
}
