package escalation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// Render builds the notification for c at threshold t.
func Render(c domain.Conflict, t domain.Threshold, id string, now time.Time) domain.Notification {
	tables := tableLabel(c.TableNumbers)
	walkIn := guestOr(c.WalkInGuest, "Walk-in party")
	upcoming := guestOr(c.UpcomingGuest, "the next party")
	arrival := c.ArrivalTime.Format("15:04")
	vacate := c.MustVacateBy.Format("15:04")

	var title, message string
	switch t {
	case domain.ThresholdWarning:
		title = fmt.Sprintf("%s needed at %s", tables, arrival)
		message = fmt.Sprintf("%s is seated at %s. %s arrives at %s; the table should be free by %s.",
			walkIn, tables, upcoming, arrival, vacate)
	case domain.ThresholdUrgent:
		title = fmt.Sprintf("Urgent: free %s by %s", tables, vacate)
		message = fmt.Sprintf("%s arrives at %s and %s is still occupied by %s. Move or wrap up the party now.",
			upcoming, arrival, tables, walkIn)
	default:
		title = fmt.Sprintf("Overdue: %s still occupied", tables)
		message = fmt.Sprintf("%s was due at %s but %s is still held by %s. Reseat %s or release the table.",
			upcoming, arrival, tables, walkIn, upcoming)
	}

	return domain.Notification{
		ID:             id,
		ConflictID:     c.ID,
		RestaurantID:   c.RestaurantID,
		Threshold:      t,
		Title:          title,
		Message:        message,
		ActionRequired: true,
		TableNumbers:   append([]int(nil), c.TableNumbers...),
		WalkInGuest:    c.WalkInGuest,
		UpcomingGuest:  c.UpcomingGuest,
		CreatedAt:      now,
	}
}

func tableLabel(numbers []int) string {
	switch len(numbers) {
	case 0:
		return "Table ?"
	case 1:
		return "Table " + strconv.Itoa(numbers[0])
	}
	parts := make([]string, len(numbers))
	for i, n := range numbers {
		parts[i] = strconv.Itoa(n)
	}
	return "Tables " + strings.Join(parts, "+")
}

func guestOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
