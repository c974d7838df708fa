package domain

import "fmt"

// Status is the dining status of a booking.
type Status string

const (
	StatusPending               Status = "pending"
	StatusConfirmed             Status = "confirmed"
	StatusArrived               Status = "arrived"
	StatusSeated                Status = "seated"
	StatusOrdered               Status = "ordered"
	StatusAppetizers            Status = "appetizers"
	StatusMainCourse            Status = "main_course"
	StatusDessert               Status = "dessert"
	StatusPayment               Status = "payment"
	StatusCompleted             Status = "completed"
	StatusNoShow                Status = "no_show"
	StatusCancelledByUser       Status = "cancelled_by_user"
	StatusCancelledByRestaurant Status = "cancelled_by_restaurant"
	StatusDeclinedByRestaurant  Status = "declined_by_restaurant"
	StatusAutoDeclined          Status = "auto_declined"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusArrived,
	StatusSeated,
	StatusOrdered,
	StatusAppetizers,
	StatusMainCourse,
	StatusDessert,
	StatusPayment,
	StatusCompleted,
	StatusNoShow,
	StatusCancelledByUser,
	StatusCancelledByRestaurant,
	StatusDeclinedByRestaurant,
	StatusAutoDeclined,
}

var terminalStatuses = map[Status]bool{
	StatusCompleted:             true,
	StatusNoShow:                true,
	StatusCancelledByUser:       true,
	StatusCancelledByRestaurant: true,
	StatusDeclinedByRestaurant:  true,
	StatusAutoDeclined:          true,
}

var presentStatuses = map[Status]bool{
	StatusArrived:    true,
	StatusSeated:     true,
	StatusOrdered:    true,
	StatusAppetizers: true,
	StatusMainCourse: true,
	StatusDessert:    true,
	StatusPayment:    true,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends the booking lifecycle.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsPhysicallyPresent reports whether a booking in status s is on site and
// holding its tables.
func (s Status) IsPhysicallyPresent() bool {
	return presentStatuses[s]
}

// IsActive reports whether a booking in status s takes part in occupancy:
// confirmed reservations plus every physically-present status.
func (s Status) IsActive() bool {
	return s == StatusConfirmed || presentStatuses[s]
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown booking status %q", raw)
	}
	return s, nil
}
