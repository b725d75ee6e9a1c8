package actions

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is every problem found in one request.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "invalid request: " + strings.Join(msgs, "; ")
}

// IsValidationError returns true if err was caused by an invalid request.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var es ValidationErrors
	if errors.As(err, &es) {
		return true
	}
	var e ValidationError
	return errors.As(err, &e)
}

// asError returns nil for an empty list.
func (es ValidationErrors) asError() error {
	if len(es) == 0 {
		return nil
	}
	return es
}
