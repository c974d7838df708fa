package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/qwerty-development/tableflow/internal/cache"
	"github.com/qwerty-development/tableflow/internal/engine"
	"github.com/qwerty-development/tableflow/internal/events"
	"github.com/qwerty-development/tableflow/internal/lifecycle"
)

// BoardOptions holds flags for the board command.
type BoardOptions struct {
	*RootOptions
	Restaurant string
}

// NewBoardCommand creates the board command.
func NewBoardCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BoardOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "board",
		Short: "Recompute and print a restaurant's table board",
		Long: `Run one synchronous recompute for a restaurant against the configured
record store and print the resulting occupancy board and open conflicts.
Notifications that come due are recorded and logged as in serve.

Example:
  tableflow board --restaurant r-1
  tableflow board --restaurant r-1 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBoard(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Restaurant, "restaurant", "", "restaurant id (required)")
	_ = cmd.MarkFlagRequired("restaurant")

	return cmd
}

func runBoard(opts *BoardOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	rt, err := openRuntime(ctx, opts.RootOptions, slog.Default())
	if err != nil {
		_ = out.Error(CodeStore, err.Error(), nil)
		return err
	}
	defer rt.Close()

	eng := rt.engine(engine.WithSink(events.LogSink{Logger: rt.logger}))
	if err := eng.Resume(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to resume engine state", err)
	}
	board, err := eng.Recompute(ctx, opts.Restaurant)
	if err != nil {
		_ = out.Error(CodeEngine, err.Error(), map[string]string{"restaurant_id": opts.Restaurant})
		return WrapExitError(ExitFailure, "recompute failed", err)
	}
	return out.Success(boardView(board))
}

// boardView renders a board as a table.
type boardView cache.Board

// WriteText implements TextWriter.
func (b boardView) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "restaurant %s at %s\n", b.RestaurantID, b.ComputedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "%d tables, %d occupied (%d present, %d scheduled), %d free, %d ready for walk-ins\n\n",
		b.Summary.Tables, b.Summary.Occupied, b.Summary.ByPresence, b.Summary.BySchedule, b.Summary.Free, b.Summary.WalkInReady)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tSTATE\tCURRENT\tNEXT\tWALK-IN")
	for _, r := range b.Tables {
		state := string(r.OccupiedBy)
		if state == "" {
			state = "free"
		}
		current, next := "-", "-"
		if r.Current != nil {
			current = fmt.Sprintf("%s (%s, %d)", r.Current.GuestName, r.Current.Status, r.Current.PartySize)
		}
		if r.Next != nil {
			next = fmt.Sprintf("%s %s (%d)", r.Next.Time.Format("15:04"), r.Next.GuestName, r.Next.PartySize)
		}
		walkIn := "no"
		if r.CanAcceptWalkIn {
			walkIn = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.TableNumber, state, current, next, walkIn)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(b.Conflicts) > 0 {
		fmt.Fprintln(w, "\nconflicts:")
		for _, c := range b.Conflicts {
			fmt.Fprintf(w, "  %s: %s on tables %v, %s arrives %s, vacate by %s\n",
				c.Urgency, c.WalkInGuest, c.TableNumbers, c.UpcomingGuest,
				c.ArrivalTime.Format("15:04"), c.MustVacateBy.Format("15:04"))
		}
	}
	for _, is := range b.Issues {
		fmt.Fprintf(w, "issue: %s booking=%s table=%s\n", is.Kind, is.BookingID, is.TableID)
	}
	return nil
}

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Booking string
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a booking's status history",
		Long: `Print every recorded status change of a booking in sequence order,
including changes observed from other writers.

Example:
  tableflow history --booking b-1024`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Booking, "booking", "", "booking id (required)")
	_ = cmd.MarkFlagRequired("booking")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := commandContext(cmd)

	rt, err := openRuntime(ctx, opts.RootOptions, slog.Default())
	if err != nil {
		_ = out.Error(CodeStore, err.Error(), nil)
		return err
	}
	defer rt.Close()

	entries, err := rt.engine().History(ctx, opts.Booking)
	if err != nil {
		_ = out.Error(CodeStore, err.Error(), map[string]string{"booking_id": opts.Booking})
		return WrapExitError(ExitFailure, "failed to load history", err)
	}
	return out.Success(historyView(entries))
}

// historyView renders status history one entry per line.
type historyView []lifecycle.HistoryEntry

func (h historyView) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]lifecycle.HistoryEntry(h))
}

// WriteText implements TextWriter.
func (h historyView) WriteText(w io.Writer) error {
	if len(h) == 0 {
		_, err := fmt.Fprintln(w, "no history")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tAT\tFROM\tTO\tACTOR\tMODE\tMETADATA")
	for _, e := range h {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Seq, e.At.Format("2006-01-02 15:04:05"), e.From, e.To, e.Actor, e.Mode, metadataLabel(e.Metadata))
	}
	return tw.Flush()
}

func metadataLabel(m map[string]string) string {
	if len(m) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
