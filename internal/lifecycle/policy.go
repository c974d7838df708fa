package lifecycle

import (
	"fmt"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// Mode selects the transition policy for a call.
type Mode string

const (
	ModeStrict   Mode = "strict"
	ModeOverride Mode = "override"
)

// ParseMode converts a raw mode string. Empty selects strict.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeStrict:
		return ModeStrict, nil
	case ModeOverride:
		return ModeOverride, nil
	default:
		return "", fmt.Errorf("unknown transition mode %q: must be strict or override", raw)
	}
}

// TransitionPolicy decides whether a status change is permitted.
type TransitionPolicy interface {
	Name() string
	Allowed(from, to domain.Status) bool
}

// PolicyFor returns the policy implementing mode.
func PolicyFor(mode Mode) TransitionPolicy {
	if mode == ModeOverride {
		return OverridePolicy{}
	}
	return StrictPolicy{}
}

// strictEdges is the declared lifecycle graph. Terminal statuses have no
// outgoing edges.
var strictEdges = map[domain.Status][]domain.Status{
	domain.StatusPending: {
		domain.StatusConfirmed,
		domain.StatusDeclinedByRestaurant,
		domain.StatusAutoDeclined,
		domain.StatusCancelledByUser,
	},
	domain.StatusConfirmed: {
		domain.StatusArrived,
		domain.StatusNoShow,
		domain.StatusCancelledByUser,
		domain.StatusCancelledByRestaurant,
	},
	domain.StatusArrived:    {domain.StatusSeated},
	domain.StatusSeated:     {domain.StatusOrdered},
	domain.StatusOrdered:    {domain.StatusAppetizers},
	domain.StatusAppetizers: {domain.StatusMainCourse},
	domain.StatusMainCourse: {domain.StatusDessert, domain.StatusPayment},
	domain.StatusDessert:    {domain.StatusPayment},
	domain.StatusPayment:    {domain.StatusCompleted},
}

// StrictPolicy permits exactly the edges of the lifecycle graph.
type StrictPolicy struct{}

// Name implements TransitionPolicy.
func (StrictPolicy) Name() string { return string(ModeStrict) }

// Allowed implements TransitionPolicy.
func (StrictPolicy) Allowed(from, to domain.Status) bool {
	for _, next := range strictEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Edges returns the strict successors of from.
func (StrictPolicy) Edges(from domain.Status) []domain.Status {
	return append([]domain.Status(nil), strictEdges[from]...)
}

// revertTargets are the statuses a terminal booking may be reset to.
var revertTargets = map[domain.Status]bool{
	domain.StatusPending:   true,
	domain.StatusConfirmed: true,
	domain.StatusArrived:   true,
	domain.StatusSeated:    true,
}

// OverridePolicy is the manual staff override.
type OverridePolicy struct{}

// Name implements TransitionPolicy.
func (OverridePolicy) Name() string { return string(ModeOverride) }

// Allowed implements TransitionPolicy.
func (OverridePolicy) Allowed(from, to domain.Status) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from.IsTerminal() {
		return revertTargets[to]
	}
	return !to.IsTerminal()
}
