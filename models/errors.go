package models

import (
	"errors"
	"fmt"
)

// ErrAcquisition is wrapped by every error returned when no usable markup
// could be obtained for a listing.
var ErrAcquisition = errors.New("acquisition failed")

// ValidationError reports a listing URL rejected before any processing.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid listing url %q: %s", e.URL, e.Reason)
}

// PersistenceError wraps a datastore failure on the result cache.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExtractionError is a failure while reading one field of a listing page.
type ExtractionError struct {
	Portal string
	Field  string
	Cause  any
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s.%s: %v", e.Portal, e.Field, e.Cause)
}
