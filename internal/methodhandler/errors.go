// internal/methodhandler/errors.go
package methodhandler

import (
	"errors"
	"fmt"
)

// StatusInvalidSession is the driver status reported once the session is gone.
const StatusInvalidSession = 6

// ErrUnknownElement is returned when an element id was never produced by a fetch.
var ErrUnknownElement = errors.New("unknown element")

// SessionError is a driver failure carrying a protocol status code.
type SessionError struct {
	Status  int
	Message string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session error (status %d): %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("session error (status %d): %s", e.Status, e.Message)
}

func (e *SessionError) Unwrap() error { return e.Err }

// IsSessionLost reports whether err, or anything it wraps, signals a dead session.
func IsSessionLost(err error) bool {
	var se *SessionError
	if errors.As(err, &se) {
		return se.Status == StatusInvalidSession
	}
	return false
}
