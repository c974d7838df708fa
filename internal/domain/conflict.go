package domain

import (
	"sort"
	"time"
)

// Conflict timing rules.
const (
	// ConflictLookahead bounds how far ahead an upcoming reservation can be
	// and still clash with a seated walk-in.
	ConflictLookahead = 3 * time.Hour

	// VacateBuffer is how long before the reservation the table must be free.
	VacateBuffer = 15 * time.Minute

	CriticalWithin = 30 * time.Minute
	WarningWithin  = 60 * time.Minute
)

// Urgency classifies how close a conflict's deadline is.
type Urgency string

const (
	UrgencyInfo     Urgency = "info"
	UrgencyWarning  Urgency = "warning"
	UrgencyCritical Urgency = "critical"
)

// UrgencyFor maps the time remaining until the upcoming arrival to an
// urgency level: critical within 30 minutes, warning within 60, else info.
func UrgencyFor(untilArrival time.Duration) Urgency {
	switch {
	case untilArrival <= CriticalWithin:
		return UrgencyCritical
	case untilArrival <= WarningWithin:
		return UrgencyWarning
	default:
		return UrgencyInfo
	}
}

// Resolution records why a conflict closed.
type Resolution string

const (
	ResolutionNone             Resolution = ""
	ResolutionWalkInVacated    Resolution = "walk_in_vacated"
	ResolutionWalkInReassigned Resolution = "walk_in_reassigned"
	ResolutionUpcomingReleased Resolution = "upcoming_released"
	ResolutionDismissed        Resolution = "dismissed"
)

// Conflict is a seated party and an upcoming confirmed reservation sharing
// at least one table. Identity is (WalkInBookingID, UpcomingBookingID).
type Conflict struct {
	ID                string     `json:"id"`
	RestaurantID      string     `json:"restaurant_id"`
	WalkInBookingID   string     `json:"walk_in_booking_id"`
	UpcomingBookingID string     `json:"upcoming_booking_id"`
	TableIDs          []string   `json:"table_ids"`
	TableNumbers      []int      `json:"table_numbers"`
	WalkInGuest       string     `json:"walk_in_guest"`
	UpcomingGuest     string     `json:"upcoming_guest"`
	ArrivalTime       time.Time  `json:"arrival_time"`
	SeatedAt          time.Time  `json:"seated_at"`
	MustVacateBy      time.Time  `json:"must_vacate_by"`
	MinutesToArrival  int        `json:"minutes_to_arrival"`
	Urgency           Urgency    `json:"urgency"`
	DetectedAt        time.Time  `json:"detected_at"`
	Resolved          bool       `json:"resolved"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	Resolution        Resolution `json:"resolution,omitempty"`
}

// Key returns the composite identity of the conflict.
func (c Conflict) Key() string {
	return c.WalkInBookingID + "/" + c.UpcomingBookingID
}

// Resolve closes the conflict. Resolving twice keeps the first reason.
func (c *Conflict) Resolve(reason Resolution, at time.Time) {
	if c.Resolved {
		return
	}
	c.Resolved = true
	t := at
	c.ResolvedAt = &t
	c.Resolution = reason
}

// SortConflicts orders conflicts by arrival time then id.
func SortConflicts(cs []Conflict) {
	sort.Slice(cs, func(i, j int) bool {
		if !cs[i].ArrivalTime.Equal(cs[j].ArrivalTime) {
			return cs[i].ArrivalTime.Before(cs[j].ArrivalTime)
		}
		return cs[i].ID < cs[j].ID
	})
}

// Threshold is one escalation point of a conflict.
type Threshold string

const (
	ThresholdWarning Threshold = "warning"
	ThresholdUrgent  Threshold = "urgent"
	ThresholdOverdue Threshold = "overdue"
)

// Thresholds lists the escalation ladder in firing order.
var Thresholds = []Threshold{ThresholdWarning, ThresholdUrgent, ThresholdOverdue}

// Rank returns the position of t on the ladder, starting at 1.
// Unknown thresholds rank 0.
func (t Threshold) Rank() int {
	for i, known := range Thresholds {
		if t == known {
			return i + 1
		}
	}
	return 0
}

// Stage is the highest threshold already sent for a conflict.
type Stage int

const (
	StageNone Stage = iota
	StageWarningSent
	StageUrgentSent
	StageOverdueSent
)

// String implements fmt.Stringer.
func (s Stage) String() string {
	switch s {
	case StageWarningSent:
		return "warning_sent"
	case StageUrgentSent:
		return "urgent_sent"
	case StageOverdueSent:
		return "overdue_sent"
	default:
		return "none"
	}
}

// StageAfter returns the stage reached once t has been sent.
func StageAfter(t Threshold) Stage {
	return Stage(t.Rank())
}

// Notification is an escalation message for a conflict.
// Deduplicated by (ConflictID, Threshold) while the conflict is open.
type Notification struct {
	ID             string     `json:"id"`
	ConflictID     string     `json:"conflict_id"`
	RestaurantID   string     `json:"restaurant_id"`
	Threshold      Threshold  `json:"threshold"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	ActionRequired bool       `json:"action_required"`
	Dismissed      bool       `json:"dismissed"`
	DismissedAt    *time.Time `json:"dismissed_at,omitempty"`
	TableNumbers   []int      `json:"table_numbers"`
	WalkInGuest    string     `json:"walk_in_guest"`
	UpcomingGuest  string     `json:"upcoming_guest"`
	CreatedAt      time.Time  `json:"created_at"`
}
