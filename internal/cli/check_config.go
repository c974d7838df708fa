package cli

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/qwerty-development/tableflow/internal/config"
)

// NewCheckConfigCommand creates the check-config command.
func NewCheckConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the engine policy and print effective settings",
		Long: `Unify the policy file with the built-in schema, report the first
violation with its position, and print the effective engine settings
and the restaurants that serve would start.

Exit codes:
  0 - Policy valid
  1 - Policy violates the schema
  2 - Command error (file not found, bad environment)

Example:
  tableflow check-config --config policy.cue`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckConfig(rootOpts, cmd)
		},
	}
	return cmd
}

// effectiveConfig is the check-config payload. Durations are rendered as
// Go duration strings.
type effectiveConfig struct {
	Source             string   `json:"source"`
	TickInterval       string   `json:"tick_interval"`
	Deadline           string   `json:"deadline"`
	Lookahead          string   `json:"lookahead"`
	CandidateWindow    string   `json:"candidate_window"`
	VacateBuffer       string   `json:"vacate_buffer"`
	WalkInHorizon      string   `json:"walk_in_horizon"`
	WarningAt          string   `json:"warning_at"`
	UrgentAt           string   `json:"urgent_at"`
	AutoSeatDelay      string   `json:"auto_seat_delay"`
	ClockSkewTolerance string   `json:"clock_skew_tolerance"`
	CacheTTL           string   `json:"cache_ttl"`
	DefaultMode        string   `json:"default_mode"`
	Restaurants        []string `json:"restaurants"`
}

func newEffectiveConfig(source string, cfg config.Engine, restaurants []string) effectiveConfig {
	if restaurants == nil {
		restaurants = []string{}
	}
	return effectiveConfig{
		Source:             source,
		TickInterval:       cfg.TickInterval.String(),
		Deadline:           cfg.Deadline.String(),
		Lookahead:          cfg.Lookahead.String(),
		CandidateWindow:    cfg.CandidateWindow.String(),
		VacateBuffer:       cfg.VacateBuffer.String(),
		WalkInHorizon:      cfg.WalkInHorizon.String(),
		WarningAt:          cfg.WarningAt.String(),
		UrgentAt:           cfg.UrgentAt.String(),
		AutoSeatDelay:      cfg.AutoSeatDelay.String(),
		ClockSkewTolerance: cfg.ClockSkewTolerance.String(),
		CacheTTL:           cfg.CacheTTL.String(),
		DefaultMode:        string(cfg.DefaultMode),
		Restaurants:        restaurants,
	}
}

// WriteText implements TextWriter.
func (c effectiveConfig) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "policy valid (%s)\n\n", c.Source)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"tick interval", c.TickInterval},
		{"cycle deadline", c.Deadline},
		{"conflict lookahead", c.Lookahead},
		{"candidate window", c.CandidateWindow},
		{"vacate buffer", c.VacateBuffer},
		{"walk-in horizon", c.WalkInHorizon},
		{"warning at", c.WarningAt},
		{"urgent at", c.UrgentAt},
		{"auto-seat delay", c.AutoSeatDelay},
		{"clock skew tolerance", c.ClockSkewTolerance},
		{"board cache ttl", c.CacheTTL},
		{"default mode", c.DefaultMode},
		{"restaurants", fmt.Sprint(c.Restaurants)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func runCheckConfig(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	var dotenv []string
	if opts.EnvFile != "" {
		dotenv = append(dotenv, opts.EnvFile)
	}
	env, err := config.LoadEnv(dotenv...)
	if err != nil {
		_ = out.Error(CodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load environment", err)
	}

	path := opts.ConfigPath
	if path == "" {
		path = env.ConfigPath
	}
	source := path
	if source == "" {
		source = "built-in defaults"
	}
	out.VerboseLog("checking policy from %s", source)

	cfg, err := config.LoadEngine(path)
	if err != nil {
		var ce *config.Error
		if errors.As(err, &ce) {
			details := map[string]string{"code": ce.Code}
			if ce.Pos.IsValid() {
				details["position"] = ce.Pos.String()
			}
			_ = out.Error(CodeConfig, ce.Message, details)
			if ce.Code == config.ErrCodeNotFound {
				return WrapExitError(ExitCommandError, "policy file not found", err)
			}
			return WrapExitError(ExitFailure, "policy invalid", err)
		}
		_ = out.Error(CodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load policy", err)
	}

	return out.Success(newEffectiveConfig(source, cfg, config.RestaurantIDs(env, cfg)))
}
