package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotTaken means the requested start time is no longer free. Callers
	// should refresh availability rather than retry the same slot.
	ErrSlotTaken      = errors.New("slot no longer available")
	ErrUnknownService = errors.New("unknown service")
)

// ValidationError rejects a request before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
