package simulate

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/qwerty-development/tableflow/internal/domain"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
)

// Scenario is a scripted service period replayed against the engine.
// Times written as "HH:MM" are on Date in UTC.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Restaurant defaults to "r-1".
	Restaurant string `yaml:"restaurant,omitempty"`

	// Date is the service day, YYYY-MM-DD.
	Date string `yaml:"date"`

	// Start is the clock at the beginning of the run.
	Start string `yaml:"start"`

	// Config is CUE source unified with the engine schema.
	Config string `yaml:"config,omitempty"`

	Tables   []TableSpec   `yaml:"tables"`
	Bookings []BookingSpec `yaml:"bookings"`
	Steps    []Step        `yaml:"steps"`
}

// TableSpec declares one physical table.
type TableSpec struct {
	ID       string `yaml:"id"`
	Number   int    `yaml:"number"`
	Capacity int    `yaml:"capacity,omitempty"`
	// Inactive tables are left out of snapshots.
	Inactive bool `yaml:"inactive,omitempty"`
}

// BookingSpec declares one booking as it stands when the run starts.
type BookingSpec struct {
	ID        string   `yaml:"id"`
	Guest     string   `yaml:"guest"`
	PartySize int      `yaml:"party_size,omitempty"`
	Time      string   `yaml:"time"`
	TurnTime  int      `yaml:"turn_time,omitempty"`
	Status    string   `yaml:"status"`
	CheckedIn string   `yaml:"checked_in,omitempty"`
	Seated    string   `yaml:"seated,omitempty"`
	Tables    []string `yaml:"tables,omitempty"`
}

// Step is one scripted action. At moves the clock first; at most one of
// the remaining fields may be set.
type Step struct {
	At string `yaml:"at,omitempty"`

	Tick       bool            `yaml:"tick,omitempty"`
	Transition *TransitionStep `yaml:"transition,omitempty"`
	Assign     *AssignStep     `yaml:"assign,omitempty"`
	// Unassign removes every table from the named booking.
	Unassign string  `yaml:"unassign,omitempty"`
	Expect   *Expect `yaml:"expect,omitempty"`
}

// TransitionStep requests a status change.
type TransitionStep struct {
	Booking string `yaml:"booking"`
	To      string `yaml:"to"`
	Mode    string `yaml:"mode,omitempty"`
	Actor   string `yaml:"actor,omitempty"`
	// Error is the expected failure, e.g. "invalid_transition".
	Error string `yaml:"error,omitempty"`
}

// AssignStep replaces a booking's tables.
type AssignStep struct {
	Booking string   `yaml:"booking"`
	Tables  []string `yaml:"tables"`
}

// Expect checks the state left by the most recent tick. Unset fields are
// not checked.
type Expect struct {
	Tables    map[string]TableExpect `yaml:"tables,omitempty"`
	Conflicts []ConflictExpect       `yaml:"conflicts,omitempty"`

	// OpenConflicts counts unresolved conflicts.
	OpenConflicts *int `yaml:"open_conflicts,omitempty"`

	// Emitted lists the thresholds delivered by the most recent tick, in
	// order. An empty list asserts nothing was delivered.
	Emitted []string `yaml:"emitted,omitempty"`

	// ActiveNotifications counts undismissed notifications.
	ActiveNotifications *int `yaml:"active_notifications,omitempty"`

	// Status maps booking id to expected status.
	Status map[string]string `yaml:"status,omitempty"`
}

// TableExpect checks one table of the board.
type TableExpect struct {
	Occupied   *bool  `yaml:"occupied,omitempty"`
	OccupiedBy string `yaml:"occupied_by,omitempty"`
	Current    string `yaml:"current,omitempty"`
	Next       string `yaml:"next,omitempty"`
	WalkIn     *bool  `yaml:"walk_in,omitempty"`
}

// ConflictExpect checks one conflict by its booking pair.
type ConflictExpect struct {
	WalkIn       string `yaml:"walk_in"`
	Upcoming     string `yaml:"upcoming"`
	Urgency      string `yaml:"urgency,omitempty"`
	MustVacateBy string `yaml:"must_vacate_by,omitempty"`
	Resolved     *bool  `yaml:"resolved,omitempty"`
	Resolution   string `yaml:"resolution,omitempty"`
}

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos surface as errors.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if s.Restaurant == "" {
		s.Restaurant = "r-1"
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", s.Name, err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := time.Parse(time.DateOnly, s.Date); err != nil {
		return fmt.Errorf("date: %w", err)
	}
	if _, err := s.parseTime(s.Start); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	tables := make(map[string]bool, len(s.Tables))
	for i, t := range s.Tables {
		if t.ID == "" {
			return fmt.Errorf("tables[%d]: id is required", i)
		}
		if tables[t.ID] {
			return fmt.Errorf("tables[%d]: duplicate id %q", i, t.ID)
		}
		tables[t.ID] = true
	}

	bookings := make(map[string]bool, len(s.Bookings))
	for i, b := range s.Bookings {
		if b.ID == "" {
			return fmt.Errorf("bookings[%d]: id is required", i)
		}
		if bookings[b.ID] {
			return fmt.Errorf("bookings[%d]: duplicate id %q", i, b.ID)
		}
		bookings[b.ID] = true
		if !domain.Status(b.Status).IsValid() {
			return fmt.Errorf("bookings[%d]: unknown status %q", i, b.Status)
		}
		for _, field := range []string{b.Time, b.CheckedIn, b.Seated} {
			if field == "" {
				continue
			}
			if _, err := s.parseTime(field); err != nil {
				return fmt.Errorf("bookings[%d]: %w", i, err)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(s, step, bookings); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s *Scenario, step Step, bookings map[string]bool) error {
	if step.At != "" {
		if _, err := s.parseTime(step.At); err != nil {
			return err
		}
	}

	actions := 0
	if step.Tick {
		actions++
	}
	if step.Transition != nil {
		actions++
		if !bookings[step.Transition.Booking] {
			return fmt.Errorf("transition: unknown booking %q", step.Transition.Booking)
		}
		if !domain.Status(step.Transition.To).IsValid() {
			return fmt.Errorf("transition: unknown status %q", step.Transition.To)
		}
		if _, err := lifecycle.ParseMode(step.Transition.Mode); err != nil {
			return fmt.Errorf("transition: %w", err)
		}
	}
	if step.Assign != nil {
		actions++
		if !bookings[step.Assign.Booking] {
			return fmt.Errorf("assign: unknown booking %q", step.Assign.Booking)
		}
	}
	if step.Unassign != "" {
		actions++
		if !bookings[step.Unassign] {
			return fmt.Errorf("unassign: unknown booking %q", step.Unassign)
		}
	}
	if step.Expect != nil {
		actions++
	}

	if actions > 1 {
		return fmt.Errorf("only one action per step")
	}
	if actions == 0 && step.At == "" {
		return fmt.Errorf("empty step")
	}
	return nil
}

// parseTime accepts "HH:MM" on the scenario date or a full RFC 3339
// timestamp.
func (s *Scenario) parseTime(v string) (time.Time, error) {
	if strings.Contains(v, "T") {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid time %q: %w", v, err)
		}
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly+" 15:04", s.Date+" "+v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", v, err)
	}
	return t.UTC(), nil
}

// mustTime is for values already checked by validateScenario.
func (s *Scenario) mustTime(v string) time.Time {
	t, err := s.parseTime(v)
	if err != nil {
		panic(err)
	}
	return t
}

func (s *Scenario) optionalTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t := s.mustTime(v)
	return &t
}
