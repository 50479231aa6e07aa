package panel

import (
	"errors"
	"fmt"
)

// Error is a failed panel API call. Transient errors (network faults,
// timeouts, 5xx, expired sessions) are worth retrying; everything else
// means the panel rejected the request outright.
type Error struct {
	Op             string
	Status         int
	Message        string
	Transient      bool
	SessionExpired bool
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("panel %s (status %d): %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("panel %s: %s", e.Op, e.Message)
}

// IsTransient reports whether err is a retryable panel failure.
func IsTransient(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Transient
}

// AsError unwraps err into target when it is a panel Error.
func AsError(err error, target **Error) bool {
	return errors.As(err, target)
}
