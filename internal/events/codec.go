package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// Exchange and routing-key defaults.
const (
	DefaultChangeExchange       = "tableflow.changes"
	DefaultNotificationExchange = "tableflow.notifications"
	DefaultQueue                = "tableflow.engine"

	RKBookingInserted    = "booking.inserted"
	RKBookingUpdated     = "booking.updated"
	RKStatusTransitioned = "booking.status_transitioned"
	RKAssignmentChanged  = "assignment.changed"
)

// DefaultBindings subscribe to every change key.
var DefaultBindings = []string{"booking.*", "assignment.*"}

var keyToType = map[string]domain.EventType{
	RKBookingInserted:    domain.EventBookingInserted,
	RKBookingUpdated:     domain.EventBookingUpdated,
	RKStatusTransitioned: domain.EventStatusTransitioned,
	RKAssignmentChanged:  domain.EventAssignmentChanged,
}

// RoutingKey returns the routing key for an event type.
func RoutingKey(t domain.EventType) (string, error) {
	for key, et := range keyToType {
		if et == t {
			return key, nil
		}
	}
	return "", fmt.Errorf("no routing key for event type %q", t)
}

// NotificationKey returns the routing key for a notification.
func NotificationKey(n domain.Notification) string {
	return "conflict." + string(n.Threshold)
}

// Decode parses a change event. The routing key decides the type when the
// body omits it; a body whose type disagrees with the key is rejected.
func Decode(routingKey string, body []byte) (domain.ChangeEvent, error) {
	keyType, known := keyToType[routingKey]
	if !known {
		return domain.ChangeEvent{}, fmt.Errorf("unknown routing key %q", routingKey)
	}

	var ev domain.ChangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode %s: %w", routingKey, err)
	}
	if ev.Type == "" {
		ev.Type = keyType
	}
	if ev.Type != keyType {
		return domain.ChangeEvent{}, fmt.Errorf("event type %q does not match routing key %q", ev.Type, routingKey)
	}
	if strings.TrimSpace(ev.RestaurantID) == "" {
		if ev.Booking != nil && ev.Booking.RestaurantID != "" {
			ev.RestaurantID = ev.Booking.RestaurantID
		} else {
			return domain.ChangeEvent{}, fmt.Errorf("decode %s: missing restaurant_id", routingKey)
		}
	}
	if ev.BookingID == "" && ev.Booking != nil {
		ev.BookingID = ev.Booking.ID
	}
	return ev, nil
}
