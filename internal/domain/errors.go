package domain

import (
	"errors"
	"fmt"
)

// Validation reasons map one-to-one onto the classifier's validation subkinds.
const (
	ReasonRequired = "required"
	ReasonFormat   = "format"
	ReasonInvalid  = "invalid"
)

// ValidationError reports a record that cannot be normalized or stored as given.
// It is never retried.
type ValidationError struct {
	Field  string
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("validation failed: %s %s: %s", e.Field, e.Reason, e.Detail)
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Business error kinds.
const (
	BusinessDuplicateEntity = "duplicate_entity"
	BusinessSyncFailure     = "sync_failure"
)

// BusinessError is a failure the upsert path can reconcile, such as a record
// that vanished between insert and read.
type BusinessError struct {
	Kind string
	Key  RecordKey
	Err  error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s for %s: %v", e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%s for %s", e.Kind, e.Key)
}

func (e *BusinessError) Unwrap() error { return e.Err }

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
