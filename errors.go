package reservebase

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common storage conditions.
//
// Every engine-native "not found" shape (redis.Nil, S3 NoSuchKey,
// os.IsNotExist) is normalized to ErrNotFound by the backend so callers
// need one comparison.
var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
	ErrConflict      = errors.New("uniqueness conflict")
	ErrInvalidData   = errors.New("invalid document data")

	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrNotConnected       = errors.New("store not connected")
)

// ValidationError reports every violation found in the input, not just the
// first, so callers can surface the full list in one round trip.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, ", ")
}

// IntegrityError reports a post-write verification failure: the document was
// written but a re-read came back missing or incomplete.
type IntegrityError struct {
	Key    string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("storage integrity check failed for %s: %s", e.Key, e.Reason)
}

// ErrorWithContext adds key-value context to errors for logging and debugging
type ErrorWithContext struct {
	Err     error
	Context map[string]interface{}
}

func (e *ErrorWithContext) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (context: %+v)", e.Err, e.Context)
}

func (e *ErrorWithContext) Unwrap() error {
	return e.Err
}

// WithContext adds context to an error
func WithContext(err error, context map[string]interface{}) error {
	if err == nil {
		return nil
	}
	return &ErrorWithContext{
		Err:     err,
		Context: context,
	}
}

// Common error checking helpers

// IsNotFound checks if an error is a normalized "not found" error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a uniqueness conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIntegrity checks if an error is an IntegrityError
func IsIntegrity(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
