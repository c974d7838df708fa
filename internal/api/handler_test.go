package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qwerty-development/tableflow/internal/cache"
	"github.com/qwerty-development/tableflow/internal/clock"
	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/engine"
	"github.com/qwerty-development/tableflow/internal/escalation"
	"github.com/qwerty-development/tableflow/internal/events"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
	"github.com/qwerty-development/tableflow/internal/source"
	"github.com/qwerty-development/tableflow/internal/testutil"
)

var at = testutil.At

func newTestServer(t *testing.T) (*echo.Echo, *engine.Engine) {
	t.Helper()
	logger := testutil.QuietLogger()

	src := source.NewMemorySource()
	src.PutTable(domain.Table{ID: "t5", RestaurantID: "r-1", Number: 5, Capacity: 4, Active: true})
	seated := at(18, 0)
	src.PutBooking(domain.Booking{
		ID: "walk", RestaurantID: "r-1", PartySize: 2, BookingTime: seated,
		Status: domain.StatusSeated, GuestName: "Walk In", SeatedAt: &seated, TableIDs: []string{"t5"},
	})
	src.PutBooking(domain.Booking{
		ID: "res", RestaurantID: "r-1", PartySize: 4, BookingTime: at(19, 0),
		Status: domain.StatusConfirmed, GuestName: "Reserved Guest", TableIDs: []string{"t5"},
	})

	eng := engine.New(src, engine.NewMemoryStore(),
		engine.WithClock(clock.Fake(at(18, 5))),
		engine.WithIDs(escalation.NewSequenceGenerator("n")),
		engine.WithSink(&events.MemorySink{}),
		engine.WithLogger(logger),
	)
	return New(eng, logger), eng
}

func do(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	e, _ := newTestServer(t)
	rec := do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestGetBoard(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(t, e, http.MethodGet, "/restaurants/r-1/board", "")
	require.Equal(t, http.StatusOK, rec.Code)

	board := decode[cache.Board](t, rec)
	assert.Equal(t, "r-1", board.RestaurantID)
	require.Len(t, board.Tables, 1)
	assert.True(t, board.Tables[0].IsOccupied)
	require.Len(t, board.Conflicts, 1)
	assert.Equal(t, 55, board.Conflicts[0].MinutesToArrival)
}

func TestListConflictsAndNotifications(t *testing.T) {
	e, eng := newTestServer(t)
	_, err := eng.Recompute(context.Background(), "r-1")
	require.NoError(t, err)

	rec := do(t, e, http.MethodGet, "/restaurants/r-1/conflicts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	conflicts := decode[[]domain.Conflict](t, rec)
	require.Len(t, conflicts, 1)

	rec = do(t, e, http.MethodGet, "/restaurants/r-1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	notes := decode[[]domain.Notification](t, rec)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.ThresholdWarning, notes[0].Threshold)

	rec = do(t, e, http.MethodGet, "/restaurants/r-1/conflicts?include_resolved=maybe", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostTransition(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/restaurants/r-1/bookings/res/transitions",
		`{"status":"arrived","actor":"host","metadata":{"note":"early"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry := decode[lifecycle.HistoryEntry](t, rec)
	assert.Equal(t, domain.StatusConfirmed, entry.From)
	assert.Equal(t, domain.StatusArrived, entry.To)
	assert.Equal(t, "host", entry.Actor)
	assert.Equal(t, lifecycle.ModeStrict, entry.Mode)

	rec = do(t, e, http.MethodGet, "/bookings/res/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]lifecycle.HistoryEntry](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "early", history[0].Metadata["note"])
}

func TestPostTransition_Errors(t *testing.T) {
	e, _ := newTestServer(t)

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"invalid edge", "/restaurants/r-1/bookings/res/transitions", `{"status":"completed"}`, http.StatusConflict},
		{"unknown status", "/restaurants/r-1/bookings/res/transitions", `{"status":"eating"}`, http.StatusBadRequest},
		{"unknown mode", "/restaurants/r-1/bookings/res/transitions", `{"status":"arrived","mode":"lenient"}`, http.StatusBadRequest},
		{"malformed body", "/restaurants/r-1/bookings/res/transitions", `{"status":`, http.StatusBadRequest},
		{"unknown booking", "/restaurants/r-1/bookings/nope/transitions", `{"status":"arrived"}`, http.StatusNotFound},
		{"other restaurant", "/restaurants/r-2/bookings/res/transitions", `{"status":"arrived"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, e, http.MethodPost, "/restaurants/r-1/bookings/res/transitions", `{"status":"completed"}`)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "invalid_transition", body["error"])
	assert.Equal(t, "confirmed", body["from"])
	assert.Equal(t, "completed", body["to"])
	assert.Equal(t, "strict", body["policy"])
}

func TestPostTransition_Override(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(t, e, http.MethodPost, "/restaurants/r-1/bookings/walk/transitions",
		`{"status":"payment","mode":"override"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	entry := decode[lifecycle.HistoryEntry](t, rec)
	assert.Equal(t, lifecycle.ModeOverride, entry.Mode)
	assert.Equal(t, DefaultActor, entry.Actor)
}

func TestDismissEndpoints(t *testing.T) {
	e, eng := newTestServer(t)
	board, err := eng.Recompute(context.Background(), "r-1")
	require.NoError(t, err)
	require.Len(t, board.Conflicts, 1)

	notes, err := eng.Notifications(context.Background(), "r-1", true)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	rec := do(t, e, http.MethodPost, "/notifications/"+notes[0].ID+"/dismiss", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, e, http.MethodPost, "/notifications/missing/dismiss", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPost, "/conflicts/"+board.Conflicts[0].ID+"/dismiss", "")
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[domain.Conflict](t, rec)
	assert.True(t, c.Resolved)
	assert.Equal(t, domain.ResolutionDismissed, c.Resolution)

	rec = do(t, e, http.MethodPost, "/conflicts/missing/dismiss", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodGet, "/restaurants/r-1/conflicts?include_resolved=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Conflict](t, rec), 1)
	rec = do(t, e, http.MethodGet, "/restaurants/r-1/notifications?include_dismissed=true", "")
	assert.Len(t, decode[[]domain.Notification](t, rec), 1)
	rec = do(t, e, http.MethodGet, "/restaurants/r-1/notifications", "")
	assert.Empty(t, decode[[]domain.Notification](t, rec))
}
