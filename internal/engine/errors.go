package engine

import (
	"errors"
	"fmt"
)

// ErrStopped is returned for calls submitted after the engine stopped.
var ErrStopped = errors.New("engine stopped")

// RuntimeError represents an error detected by the engine itself, as opposed
// to a store error passed through.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// OCID identifies the affected object-counter pair, if any.
	OCID int64

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidOccurrence indicates a malformed occurred/solved call.
	ErrCodeInvalidOccurrence RuntimeErrorCode = "INVALID_OCCURRENCE"

	// ErrCodeBootstrapFailed indicates the cache could not be rebuilt from
	// the store. The next call retries.
	ErrCodeBootstrapFailed RuntimeErrorCode = "BOOTSTRAP_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.OCID != 0 {
		msg = fmt.Sprintf("%s (ocid=%d)", msg, e.OCID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsInvalidOccurrence returns true if err is a validation error of an
// occurred/solved call. Uses errors.As to handle wrapped errors.
func IsInvalidOccurrence(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidOccurrence
	}
	return false
}

// IsBootstrapError returns true if err is a bootstrap failure.
func IsBootstrapError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeBootstrapFailed
	}
	return false
}

func invalidOccurrence(ocid int64, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidOccurrence,
		Message: fmt.Sprintf(format, args...),
		OCID:    ocid,
	}
}
