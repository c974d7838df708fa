package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qwerty-development/tableflow/internal/domain"
)

// Default ladder offsets before the upcoming arrival.
const (
	DefaultWarningAt = 60 * time.Minute
	DefaultUrgentAt  = 30 * time.Minute
)

// Scheduler emits notifications for conflicts as they cross thresholds.
type Scheduler struct {
	// WarningAt and UrgentAt are the minutes-to-arrival at which the
	// warning and urgent thresholds fire. Zero uses the defaults.
	WarningAt time.Duration
	UrgentAt  time.Duration

	IDs    IDGenerator
	Logger *slog.Logger
}

// NewScheduler creates a scheduler with the default ladder.
func NewScheduler(ids IDGenerator, logger *slog.Logger) *Scheduler {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{IDs: ids, Logger: logger}
}

// Crossed returns the highest threshold reached with untilArrival left.
func (s *Scheduler) Crossed(untilArrival time.Duration) (domain.Threshold, bool) {
	warning, urgent := s.ladder()
	switch {
	case untilArrival <= 0:
		return domain.ThresholdOverdue, true
	case untilArrival <= urgent:
		return domain.ThresholdUrgent, true
	case untilArrival <= warning:
		return domain.ThresholdWarning, true
	default:
		return "", false
	}
}

func (s *Scheduler) ladder() (time.Duration, time.Duration) {
	warning, urgent := s.WarningAt, s.UrgentAt
	if warning <= 0 {
		warning = DefaultWarningAt
	}
	if urgent <= 0 {
		urgent = DefaultUrgentAt
	}
	return warning, urgent
}

// Tick evaluates every conflict once and returns the notifications newly
// recorded in state, in conflict order. The caller delivers them.
//
// Resolved conflicts have their notifications dismissed and never emit.
// A state error for one conflict does not stop the others; all errors are
// joined into the returned error.
func (s *Scheduler) Tick(ctx context.Context, conflicts []domain.Conflict, state SentState, now time.Time) ([]domain.Notification, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ids := s.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}

	var emitted []domain.Notification
	var errs []error

	for _, c := range conflicts {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if c.Resolved {
			n, err := state.DismissConflict(ctx, c.ID, now)
			if err != nil {
				errs = append(errs, fmt.Errorf("dismiss notifications for conflict %s: %w", c.ID, err))
				continue
			}
			if n > 0 {
				logger.Debug("notifications dismissed",
					"event", "notifications_dismissed",
					"conflict_id", c.ID,
					"count", n,
					"resolution", c.Resolution,
				)
			}
			continue
		}

		threshold, ok := s.Crossed(c.ArrivalTime.Sub(now))
		if !ok {
			continue
		}
		stage, err := state.Stage(ctx, c.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("load stage for conflict %s: %w", c.ID, err))
			continue
		}
		if domain.StageAfter(threshold) <= stage {
			continue
		}

		n := Render(c, threshold, ids.Generate(), now)
		inserted, err := state.Record(ctx, n)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s notification for conflict %s: %w", threshold, c.ID, err))
			continue
		}
		if !inserted {
			continue
		}

		logger.Info("notification emitted",
			"event", "notification_emitted",
			"restaurant_id", c.RestaurantID,
			"conflict_id", c.ID,
			"threshold", threshold,
			"from_stage", stage.String(),
		)
		emitted = append(emitted, n)
	}

	return emitted, errors.Join(errs...)
}
