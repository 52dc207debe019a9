// Package classifier implements the pollution classification port: an HTTP
// client for the external vision service, a retrying decorator and a
// synthetic generator for offline runs.
package classifier

import (
	"errors"
	"fmt"
)

// ErrTransientRateLimit reports that the service asked the caller to back off.
var ErrTransientRateLimit = errors.New("classification service rate limited")

// FatalError is a classification failure that retrying will not fix.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a *FatalError.
func Fatal(reason string, err error) error {
	return &FatalError{Reason: reason, Err: err}
}

// IsFatal reports whether err is or wraps a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsTransient reports whether err is a rate-limit signal worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientRateLimit) && !IsFatal(err)
}
