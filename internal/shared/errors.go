package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// GenericMessageKey is shown when an error carries no message of its own.
const GenericMessageKey = "errors.generic"

// ValidationError reports malformed input caught before any network call.
type ValidationError struct {
	Field string
	Key   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s", e.Field)
}

// MessageKey returns the catalog key describing the failure.
func (e *ValidationError) MessageKey() string {
	return e.Key
}

// DataAccessError wraps a failed relation query or mutation. Key selects
// the user-facing notice; the wrapped error stays in logs only.
type DataAccessError struct {
	Op  string
	Key string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

// MessageKey returns the catalog key describing the failure.
func (e *DataAccessError) MessageKey() string {
	if e.Key == "" {
		return GenericMessageKey
	}
	return e.Key
}

// MessageKey maps any error to a catalog key suitable for users. Internal
// detail never leaks into the returned key.
func MessageKey(err error) string {
	if err == nil {
		return ""
	}
	var keyed interface{ MessageKey() string }
	if errors.As(err, &keyed) {
		if key := keyed.MessageKey(); key != "" {
			return key
		}
	}
	return GenericMessageKey
}
