package model

import (
	"errors"
	"fmt"
)

// ErrBlockNotFound is returned when a referenced block does not exist.
var ErrBlockNotFound = errors.New("block not found")

// ValidationError reports malformed caller input. It is surfaced to the
// caller and never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ComputeError wraps any unexpected failure inside feature extraction,
// fingerprinting, the decision function or the result cache. Cache and
// fingerprint failures are classified here because they break the
// deduplication guarantee the caller depends on.
type ComputeError struct {
	Stage string
	Err   error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("compute failed at %s: %v", e.Stage, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a caller input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
