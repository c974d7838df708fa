package lifecycle

import (
	"errors"
	"fmt"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// InvalidTransitionError is returned when the active policy has no edge
// from the booking's current status to the requested one.
type InvalidTransitionError struct {
	BookingID string
	From      domain.Status
	To        domain.Status
	Policy    string
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	if e.BookingID != "" {
		return fmt.Sprintf("invalid transition %s -> %s for booking %s (policy=%s)",
			e.From, e.To, e.BookingID, e.Policy)
	}
	return fmt.Sprintf("invalid transition %s -> %s (policy=%s)", e.From, e.To, e.Policy)
}

// IsInvalidTransition returns true if err is an InvalidTransitionError.
// Uses errors.As to handle wrapped errors.
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}
