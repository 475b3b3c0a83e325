package platform

import (
	"errors"
	"fmt"
)

// ErrSessionInvalid reports that the platform rejected the current session.
// The session artifact has already been discarded when this is returned, so
// the next Obtain performs a fresh login.
var ErrSessionInvalid = errors.New("platform session invalid")

// ErrTargetNotFound reports that the platform has no account for the handle.
var ErrTargetNotFound = errors.New("target not found on platform")

// FetchError wraps a transient failure while talking to the platform API.
// Status is zero when the request never produced a response.
type FetchError struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
