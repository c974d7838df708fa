package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while running a cycle or a
// synchronous engine call.
//
// RuntimeError includes structured fields for diagnostics. The worker loop
// logs these and continues.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RestaurantID identifies the affected restaurant.
	RestaurantID string

	// Trigger names what started the cycle ("tick", "change:booking_updated", ...).
	Trigger string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidTransition indicates an observed or requested status
	// change that no policy allows.
	ErrCodeInvalidTransition RuntimeErrorCode = "INVALID_TRANSITION"

	// ErrCodeInconsistentAssignment indicates an assignment to a table
	// outside the active set.
	ErrCodeInconsistentAssignment RuntimeErrorCode = "INCONSISTENT_ASSIGNMENT"

	// ErrCodeClockSkew indicates now moved backwards beyond the tolerance.
	ErrCodeClockSkew RuntimeErrorCode = "CLOCK_SKEW"

	// ErrCodeDeadlineExceeded indicates a cycle ran past its deadline.
	ErrCodeDeadlineExceeded RuntimeErrorCode = "DEADLINE_EXCEEDED"

	// ErrCodeSnapshotFailed indicates the record store could not be read.
	ErrCodeSnapshotFailed RuntimeErrorCode = "SNAPSHOT_FAILED"

	// ErrCodeStateFailed indicates engine-owned state could not be written.
	ErrCodeStateFailed RuntimeErrorCode = "STATE_FAILED"

	// ErrCodeDeliveryFailed indicates the notification sink rejected a batch.
	ErrCodeDeliveryFailed RuntimeErrorCode = "DELIVERY_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RestaurantID != "" && e.Trigger != "" {
		msg = fmt.Sprintf("%s (restaurant=%s, trigger=%s)", msg, e.RestaurantID, e.Trigger)
	} else if e.RestaurantID != "" {
		msg = fmt.Sprintf("%s (restaurant=%s)", msg, e.RestaurantID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func newRuntimeError(code RuntimeErrorCode, restaurantID, trigger, message string, err error) *RuntimeError {
	return &RuntimeError{
		Code:         code,
		Message:      message,
		RestaurantID: restaurantID,
		Trigger:      trigger,
		Err:          err,
	}
}

// HasCode reports whether err is a RuntimeError with the given code.
// Uses errors.As to handle wrapped errors.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsDeadlineError returns true if the cycle ran out of time.
func IsDeadlineError(err error) bool {
	return HasCode(err, ErrCodeDeadlineExceeded)
}

// IsSnapshotError returns true if the snapshot could not be loaded.
func IsSnapshotError(err error) bool {
	return HasCode(err, ErrCodeSnapshotFailed)
}
