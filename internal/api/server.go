// Package api exposes the engine over HTTP: the floor board, conflicts,
// notifications, booking history and the staff actions that change them.
package api

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/qwerty-development/tableflow/internal/cache"
	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/engine"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
)

// Service is the engine surface the handlers use. *engine.Engine
// implements it.
type Service interface {
	Board(ctx context.Context, restaurantID string) (cache.Board, error)
	Conflicts(ctx context.Context, restaurantID string, includeResolved bool) ([]domain.Conflict, error)
	Notifications(ctx context.Context, restaurantID string, activeOnly bool) ([]domain.Notification, error)
	History(ctx context.Context, bookingID string) ([]lifecycle.HistoryEntry, error)
	Transition(ctx context.Context, req engine.TransitionRequest) (lifecycle.HistoryEntry, error)
	DismissConflict(ctx context.Context, conflictID string) (domain.Conflict, error)
	DismissNotification(ctx context.Context, notificationID string) error
}

var _ Service = (*engine.Engine)(nil)

// New builds the echo instance with every route registered.
func New(svc Service, logger *slog.Logger) *echo.Echo {
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request",
				"event", "http_request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
			)
			return nil
		},
	}))

	Register(e, &Handler{Service: svc, Logger: logger})
	return e
}

// Register maps every route to h.
func Register(e *echo.Echo, h *Handler) {
	e.GET("/healthz", Health)

	r := e.Group("/restaurants/:rid")
	r.GET("/board", h.GetBoard)
	r.GET("/conflicts", h.ListConflicts)
	r.GET("/notifications", h.ListNotifications)
	r.POST("/bookings/:bid/transitions", h.PostTransition)

	e.GET("/bookings/:bid/history", h.GetHistory)
	e.POST("/conflicts/:id/dismiss", h.DismissConflict)
	e.POST("/notifications/:id/dismiss", h.DismissNotification)
}
