package orders

import (
	"errors"
	"fmt"
)

// ValidationError: a required field is missing or malformed. Dropped, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// DeserializationError: the payload could not be decoded. Dropped, never retried.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string { return "deserialize payload: " + e.Err.Error() }
func (e *DeserializationError) Unwrap() error { return e.Err }

// DownstreamServiceError: the catalog service or a store call failed.
type DownstreamServiceError struct {
	Service string
	Err     error
}

func (e *DownstreamServiceError) Error() string {
	return fmt.Sprintf("downstream %s: %v", e.Service, e.Err)
}
func (e *DownstreamServiceError) Unwrap() error { return e.Err }

// CacheTransientError: the cache backend hiccupped (connection, timeout).
type CacheTransientError struct {
	Op  string
	Err error
}

func (e *CacheTransientError) Error() string {
	return fmt.Sprintf("cache %s: transient: %v", e.Op, e.Err)
}
func (e *CacheTransientError) Unwrap() error { return e.Err }

// Retryable reports whether redelivering the message may succeed.
func Retryable(err error) bool {
	var ds *DownstreamServiceError
	var ct *CacheTransientError
	return errors.As(err, &ds) || errors.As(err, &ct)
}

// Kind names the taxonomy bucket of err for the error_kind log field.
func Kind(err error) string {
	var (
		ve *ValidationError
		de *DeserializationError
		ds *DownstreamServiceError
		ct *CacheTransientError
	)
	switch {
	case errors.As(err, &ve):
		return "ValidationError"
	case errors.As(err, &de):
		return "DeserializationError"
	case errors.As(err, &ds):
		return "DownstreamServiceError"
	case errors.As(err, &ct):
		return "CacheTransientError"
	default:
		return "Unknown"
	}
}
