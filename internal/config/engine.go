// Package config loads engine policy from a CUE file validated against an
// embedded schema, and deployment settings from the environment (with an
// optional .env file).
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/qwerty-development/tableflow/internal/lifecycle"
)

//go:embed schema.cue
var schemaCUE string

// Error codes for configuration failures.
const (
	ErrCodeNotFound = "E_CONFIG_NOT_FOUND"
	ErrCodeSyntax   = "E_CONFIG_SYNTAX"
	ErrCodeInvalid  = "E_CONFIG_INVALID"
	ErrCodeEnv      = "E_CONFIG_ENV"
)

// Error is a configuration failure with an optional CUE position.
type Error struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigError reports whether err is a *Error with the given code.
func IsConfigError(err error, code string) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Code == code
}

// Engine is the decoded engine policy.
type Engine struct {
	TickInterval       time.Duration  `json:"tick_interval"`
	Deadline           time.Duration  `json:"deadline"`
	Lookahead          time.Duration  `json:"lookahead"`
	CandidateWindow    time.Duration  `json:"candidate_window"`
	VacateBuffer       time.Duration  `json:"vacate_buffer"`
	WalkInHorizon      time.Duration  `json:"walk_in_horizon"`
	WarningAt          time.Duration  `json:"warning_at"`
	UrgentAt           time.Duration  `json:"urgent_at"`
	AutoSeatDelay      time.Duration  `json:"auto_seat_delay"`
	ClockSkewTolerance time.Duration  `json:"clock_skew_tolerance"`
	CacheTTL           time.Duration  `json:"cache_ttl"`
	DefaultMode        lifecycle.Mode `json:"default_mode"`
	Restaurants        []string       `json:"restaurants"`
}

// raw mirrors #Engine field for field.
type raw struct {
	TickSeconds               int      `json:"tickSeconds"`
	DeadlineSeconds           int      `json:"deadlineSeconds"`
	LookaheadMinutes          int      `json:"lookaheadMinutes"`
	CandidateWindowMinutes    int      `json:"candidateWindowMinutes"`
	VacateBufferMinutes       int      `json:"vacateBufferMinutes"`
	WalkInHorizonMinutes      int      `json:"walkInHorizonMinutes"`
	WarningMinutes            int      `json:"warningMinutes"`
	UrgentMinutes             int      `json:"urgentMinutes"`
	AutoSeatSeconds           int      `json:"autoSeatSeconds"`
	ClockSkewToleranceSeconds int      `json:"clockSkewToleranceSeconds"`
	CacheTTLSeconds           int      `json:"cacheTTLSeconds"`
	DefaultMode               string   `json:"defaultMode"`
	Restaurants               []string `json:"restaurants"`
}

func (r raw) engine() Engine {
	return Engine{
		TickInterval:       time.Duration(r.TickSeconds) * time.Second,
		Deadline:           time.Duration(r.DeadlineSeconds) * time.Second,
		Lookahead:          time.Duration(r.LookaheadMinutes) * time.Minute,
		CandidateWindow:    time.Duration(r.CandidateWindowMinutes) * time.Minute,
		VacateBuffer:       time.Duration(r.VacateBufferMinutes) * time.Minute,
		WalkInHorizon:      time.Duration(r.WalkInHorizonMinutes) * time.Minute,
		WarningAt:          time.Duration(r.WarningMinutes) * time.Minute,
		UrgentAt:           time.Duration(r.UrgentMinutes) * time.Minute,
		AutoSeatDelay:      time.Duration(r.AutoSeatSeconds) * time.Second,
		ClockSkewTolerance: time.Duration(r.ClockSkewToleranceSeconds) * time.Second,
		CacheTTL:           time.Duration(r.CacheTTLSeconds) * time.Second,
		DefaultMode:        lifecycle.Mode(r.DefaultMode),
		Restaurants:        r.Restaurants,
	}
}

// Default returns the schema defaults.
func Default() Engine {
	cfg, err := ParseEngine(nil, "")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema is invalid: %v", err))
	}
	return cfg
}

// LoadEngine reads a CUE policy file. An empty path returns the defaults.
func LoadEngine(path string) (Engine, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Engine{}, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("config file not found: %s", path)}
	}
	if err != nil {
		return Engine{}, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading config file: %v", err)}
	}
	return ParseEngine(data, path)
}

// ParseEngine unifies src with the schema and decodes the result.
func ParseEngine(src []byte, filename string) (Engine, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Engine{}, cueError(ErrCodeSyntax, err)
	}
	value := schema.LookupPath(cue.ParsePath("#Engine"))

	if len(src) > 0 {
		user := ctx.CompileBytes(src, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return Engine{}, cueError(ErrCodeSyntax, err)
		}
		value = value.Unify(user)
	}

	if err := value.Validate(cue.Concrete(true)); err != nil {
		return Engine{}, cueError(ErrCodeInvalid, err)
	}

	var r raw
	if err := value.Decode(&r); err != nil {
		return Engine{}, cueError(ErrCodeInvalid, err)
	}
	return r.engine(), nil
}

func cueError(code string, err error) *Error {
	ce := &Error{Code: code, Message: cueerrors.Details(err, nil)}
	if positions := cueerrors.Positions(err); len(positions) > 0 {
		ce.Pos = positions[0]
	}
	return ce
}
