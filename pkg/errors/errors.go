// Package errors provides structured error handling for birdfeed
package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeCredential represents missing or invalid API credentials,
	// detected before any network call is made
	ErrorTypeCredential ErrorType = "credential"
	// ErrorTypeTransport represents network-level failures (DNS, connect, timeout)
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeUpstream represents non-2xx responses from the upstream API
	ErrorTypeUpstream ErrorType = "upstream"
	// ErrorTypeData represents data quality problems in fetched records
	ErrorTypeData ErrorType = "data"
	// ErrorTypeConnection represents destination store connection failures
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeQuery represents destination SQL execution failures
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeRegion represents the aggregate failure of a region's run
	ErrorTypeRegion ErrorType = "region"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns the detail stored under key, if any.
func (e *Error) Detail(key string) (interface{}, bool) {
	v, ok := e.Details[key]
	return v, ok
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if the error is of the given type
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsBatchFatal reports whether the error must abort an entire batch run
// rather than a single resource or region. Only credential absence and
// destination connection failures qualify.
func IsBatchFatal(err error) bool {
	return IsType(err, ErrorTypeCredential) || IsType(err, ErrorTypeConnection)
}

// TypeOf returns the error's type, or an empty string for unstructured
// errors.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}

// UpstreamStatus extracts the HTTP status code carried by an upstream error.
func UpstreamStatus(err error) (int, bool) {
	var e *Error
	if !errors.As(err, &e) || e.Type != ErrorTypeUpstream {
		return 0, false
	}
	status, ok := e.Details["status_code"].(int)
	return status, ok
}
