package gateway

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no product matches a code.
var ErrNotFound = errors.New("product not found")

// TransportError reports a network failure or a non-2xx answer from the
// inventory API.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("inventory %s: http status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("inventory %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
