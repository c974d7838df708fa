package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/engine"
	"github.com/qwerty-development/tableflow/internal/escalation"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
	"github.com/qwerty-development/tableflow/internal/source"
	"github.com/qwerty-development/tableflow/internal/store"
)

// DefaultActor is recorded when a transition request names no actor.
const DefaultActor = "staff"

// Handler serves the engine routes.
type Handler struct {
	Service Service
	Logger  *slog.Logger
}

// Health answers load balancer health checks.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// GetBoard handles GET /restaurants/:rid/board.
func (h *Handler) GetBoard(c echo.Context) error {
	board, err := h.Service.Board(c.Request().Context(), c.Param("rid"))
	if err != nil {
		return h.internal(c, "board unavailable", err)
	}
	return c.JSON(http.StatusOK, board)
}

// ListConflicts handles GET /restaurants/:rid/conflicts?include_resolved=true.
func (h *Handler) ListConflicts(c echo.Context) error {
	include, err := boolQuery(c, "include_resolved")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid include_resolved"})
	}
	conflicts, err := h.Service.Conflicts(c.Request().Context(), c.Param("rid"), include)
	if err != nil {
		return h.internal(c, "conflicts unavailable", err)
	}
	return c.JSON(http.StatusOK, conflicts)
}

// ListNotifications handles GET /restaurants/:rid/notifications?include_dismissed=true.
func (h *Handler) ListNotifications(c echo.Context) error {
	include, err := boolQuery(c, "include_dismissed")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid include_dismissed"})
	}
	notes, err := h.Service.Notifications(c.Request().Context(), c.Param("rid"), !include)
	if err != nil {
		return h.internal(c, "notifications unavailable", err)
	}
	return c.JSON(http.StatusOK, notes)
}

type transitionBody struct {
	Status   string            `json:"status"`
	Actor    string            `json:"actor"`
	Mode     string            `json:"mode"`
	Metadata map[string]string `json:"metadata"`
}

// PostTransition handles POST /restaurants/:rid/bookings/:bid/transitions.
// A transition the policy forbids answers 409 with the rejected edge.
func (h *Handler) PostTransition(c echo.Context) error {
	var body transitionBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	to, err := domain.ParseStatus(body.Status)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status", "status": body.Status})
	}
	mode, err := lifecycle.ParseMode(body.Mode)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid mode", "mode": body.Mode})
	}
	// an omitted mode falls back to the engine's configured default
	if body.Mode == "" {
		mode = ""
	}
	actor := body.Actor
	if actor == "" {
		actor = DefaultActor
	}

	entry, err := h.Service.Transition(c.Request().Context(), engine.TransitionRequest{
		RestaurantID: c.Param("rid"),
		BookingID:    c.Param("bid"),
		To:           to,
		Actor:        actor,
		Mode:         mode,
		Metadata:     body.Metadata,
	})
	var invalid *lifecycle.InvalidTransitionError
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, entry)
	case errors.As(err, &invalid):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":  "invalid_transition",
			"from":   invalid.From,
			"to":     invalid.To,
			"policy": invalid.Policy,
		})
	case errors.Is(err, source.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	default:
		return h.internal(c, "transition failed", err)
	}
}

// GetHistory handles GET /bookings/:bid/history.
func (h *Handler) GetHistory(c echo.Context) error {
	history, err := h.Service.History(c.Request().Context(), c.Param("bid"))
	if err != nil {
		return h.internal(c, "history unavailable", err)
	}
	return c.JSON(http.StatusOK, history)
}

// DismissConflict handles POST /conflicts/:id/dismiss.
func (h *Handler) DismissConflict(c echo.Context) error {
	conflict, err := h.Service.DismissConflict(c.Request().Context(), c.Param("id"))
	if errors.Is(err, store.ErrConflictNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "conflict not found"})
	}
	if err != nil {
		return h.internal(c, "dismiss failed", err)
	}
	return c.JSON(http.StatusOK, conflict)
}

// DismissNotification handles POST /notifications/:id/dismiss.
func (h *Handler) DismissNotification(c echo.Context) error {
	err := h.Service.DismissNotification(c.Request().Context(), c.Param("id"))
	if errors.Is(err, escalation.ErrNotificationNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "notification not found"})
	}
	if err != nil {
		return h.internal(c, "dismiss failed", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) internal(c echo.Context, msg string, err error) error {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(msg,
		"event", "http_error",
		"path", c.Path(),
		"error", err,
	)
	status := http.StatusInternalServerError
	if engine.IsSnapshotError(err) || engine.IsDeadlineError(err) {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func boolQuery(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
