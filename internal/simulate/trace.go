package simulate

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/qwerty-development/tableflow/internal/cache"
	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/occupancy"
)

// Trace event types.
const (
	EventTick       = "tick"
	EventTransition = "transition"
	EventAssign     = "assign"
	EventUnassign   = "unassign"
	EventExpect     = "expect"
)

// TraceEvent is one line of a run. Only the fields relevant to Type are set.
type TraceEvent struct {
	Step int    `json:"step"`
	At   string `json:"at"`
	Type string `json:"type"`

	Summary   *occupancy.Summary `json:"summary,omitempty"`
	Tables    []TableLine        `json:"tables,omitempty"`
	Conflicts []ConflictLine     `json:"conflicts,omitempty"`
	Emitted   []NoticeLine       `json:"emitted,omitempty"`
	Active    *int               `json:"active_notifications,omitempty"`
	Issues    []string           `json:"issues,omitempty"`

	Booking string   `json:"booking,omitempty"`
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
	Mode    string   `json:"mode,omitempty"`
	Seq     int64    `json:"seq,omitempty"`
	Error   string   `json:"error,omitempty"`
	TableID []string `json:"table_ids,omitempty"`

	Failures []string `json:"failures,omitempty"`
}

// TableLine is the board row of one table.
type TableLine struct {
	Table      int    `json:"table"`
	OccupiedBy string `json:"occupied_by"`
	Current    string `json:"current,omitempty"`
	Next       string `json:"next,omitempty"`
	WalkIn     bool   `json:"walk_in"`
}

// ConflictLine summarizes a conflict.
type ConflictLine struct {
	Pair         string `json:"pair"`
	Tables       []int  `json:"tables"`
	Urgency      string `json:"urgency"`
	Minutes      int    `json:"minutes_to_arrival"`
	MustVacateBy string `json:"must_vacate_by"`
	Resolution   string `json:"resolution,omitempty"`
}

// NoticeLine summarizes a delivered notification.
type NoticeLine struct {
	Threshold string `json:"threshold"`
	Title     string `json:"title"`
	Tables    []int  `json:"tables"`
}

// Result is the outcome of a run.
type Result struct {
	Scenario string       `json:"scenario"`
	Trace    []TraceEvent `json:"trace"`
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool {
	return len(r.Failures()) == 0
}

// Failures lists every failed expectation, prefixed with its step.
func (r *Result) Failures() []string {
	var out []string
	for _, ev := range r.Trace {
		for _, f := range ev.Failures {
			out = append(out, fmt.Sprintf("step %d (%s): %s", ev.Step, ev.At, f))
		}
	}
	return out
}

// JSON returns the indented trace used for golden comparison.
func (r *Result) JSON() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// WriteText renders the trace one event per line.
func (r *Result) WriteText(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "scenario %s\n", r.Scenario)
	for _, ev := range r.Trace {
		fmt.Fprintf(&sb, "%3d %s %-10s", ev.Step, ev.At, ev.Type)
		switch ev.Type {
		case EventTick:
			if ev.Summary != nil {
				fmt.Fprintf(&sb, " occupied=%d free=%d walk_in_ready=%d", ev.Summary.Occupied, ev.Summary.Free, ev.Summary.WalkInReady)
			}
			fmt.Fprintf(&sb, " conflicts=%d emitted=%d", len(ev.Conflicts), len(ev.Emitted))
		case EventTransition:
			fmt.Fprintf(&sb, " %s %s -> %s (%s)", ev.Booking, ev.From, ev.To, ev.Mode)
			if ev.Error != "" {
				fmt.Fprintf(&sb, " error=%s", ev.Error)
			}
		case EventAssign, EventUnassign:
			fmt.Fprintf(&sb, " %s tables=%v", ev.Booking, ev.TableID)
		case EventExpect:
			if len(ev.Failures) == 0 {
				sb.WriteString(" ok")
			} else {
				fmt.Fprintf(&sb, " FAILED (%d)", len(ev.Failures))
			}
		}
		sb.WriteByte('\n')
		for _, c := range ev.Conflicts {
			fmt.Fprintf(&sb, "      conflict %s tables=%v urgency=%s minutes=%d vacate_by=%s", c.Pair, c.Tables, c.Urgency, c.Minutes, c.MustVacateBy)
			if c.Resolution != "" {
				fmt.Fprintf(&sb, " resolved=%s", c.Resolution)
			}
			sb.WriteByte('\n')
		}
		for _, n := range ev.Emitted {
			fmt.Fprintf(&sb, "      notify %s %q\n", n.Threshold, n.Title)
		}
		for _, f := range ev.Failures {
			fmt.Fprintf(&sb, "      - %s\n", f)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func clockLabel(t time.Time) string {
	return t.UTC().Format("15:04")
}

func tableLines(records []occupancy.Record) []TableLine {
	out := make([]TableLine, 0, len(records))
	for _, r := range records {
		line := TableLine{
			Table:      r.TableNumber,
			OccupiedBy: string(r.OccupiedBy),
			WalkIn:     r.CanAcceptWalkIn,
		}
		if line.OccupiedBy == "" {
			line.OccupiedBy = "free"
		}
		if r.Current != nil {
			line.Current = r.Current.BookingID
		}
		if r.Next != nil {
			line.Next = r.Next.BookingID
		}
		out = append(out, line)
	}
	return out
}

func conflictLines(cs []domain.Conflict) []ConflictLine {
	out := make([]ConflictLine, 0, len(cs))
	for _, c := range cs {
		out = append(out, ConflictLine{
			Pair:         c.Key(),
			Tables:       c.TableNumbers,
			Urgency:      string(c.Urgency),
			Minutes:      c.MinutesToArrival,
			MustVacateBy: clockLabel(c.MustVacateBy),
			Resolution:   string(c.Resolution),
		})
	}
	return out
}

func noticeLines(ns []domain.Notification) []NoticeLine {
	out := make([]NoticeLine, 0, len(ns))
	for _, n := range ns {
		out = append(out, NoticeLine{Threshold: string(n.Threshold), Title: n.Title, Tables: n.TableNumbers})
	}
	return out
}

func issueLines(b cache.Board) []string {
	out := make([]string, 0, len(b.Issues))
	for _, is := range b.Issues {
		out = append(out, fmt.Sprintf("%s booking=%s table=%s", is.Kind, is.BookingID, is.TableID))
	}
	return out
}
