// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"io"
	"log/slog"
	"time"
)

// ServiceDay is the date every fixture timestamp falls on.
var ServiceDay = time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

// At returns hour:minute on ServiceDay in UTC.
func At(hour, minute int) time.Time {
	return ServiceDay.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// Ptr returns a pointer to a copy of t.
func Ptr(t time.Time) *time.Time { return &t }

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
