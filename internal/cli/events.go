package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/asbelov/alepiz-sub006/internal/interval"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	OCID     int64
	OpenOnly bool
	Limit    int
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List events",
		Long: `List events from the database, oldest first.

Examples:
  alepiz-events events --open
  alepiz-events events --ocid 42 --limit 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.OCID, "ocid", 0, "only events of this OCID")
	cmd.Flags().BoolVar(&opts.OpenOnly, "open", false, "only open events")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of events (0 = all)")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	st, loc, err := openReadStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	events, err := st.Queries().ListEvents(cmdContext(cmd), store.EventFilter{
		OCID:     opts.OCID,
		OpenOnly: opts.OpenOnly,
		Limit:    opts.Limit,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeEngine, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list events", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(events)
	}
	if len(events) == 0 {
		fmt.Fprintln(formatter.Writer, "No events.")
		return nil
	}
	writeEventTable(formatter.Writer, events, loc)
	return nil
}

func writeEventTable(w io.Writer, events []store.Event, loc *time.Location) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOCID\tOBJECT\tCOUNTER\tIMPORTANCE\tSTART\tEND\tDATA")
	for _, e := range events {
		end := "open"
		if !e.Open() {
			end = e.EndTime.In(loc).Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%d\t%s\t%s\t%s\n",
			e.ID, e.OCID, e.ObjectName, e.CounterName, e.Importance,
			e.StartTime.In(loc).Format(time.DateTime), end, e.Data)
	}
	_ = tw.Flush()
}

// IntervalsOptions holds flags for the intervals command.
type IntervalsOptions struct {
	*RootOptions
	OCID int64
}

// NewIntervalsCommand creates the intervals command.
func NewIntervalsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IntervalsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "intervals",
		Short: "List suppressed OCIDs and their time windows",
		Long: `List every suppression with its expiry and daily time windows, shown in
the configured timezone. An OCID without windows is suppressed all day.

Examples:
  alepiz-events intervals
  alepiz-events intervals --ocid 42 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIntervals(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.OCID, "ocid", 0, "only this OCID")

	return cmd
}

func runIntervals(opts *IntervalsOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	st, loc, err := openReadStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	disabled, err := st.Queries().ReadDisabledEvents(cmdContext(cmd))
	if err != nil {
		_ = formatter.Error(ErrCodeEngine, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read disabled events", err)
	}
	if opts.OCID != 0 {
		filtered := []store.DisabledEvent{}
		for _, d := range disabled {
			if d.OCID == opts.OCID {
				filtered = append(filtered, d)
			}
		}
		disabled = filtered
	}

	if formatter.Format == "json" {
		return formatter.Success(disabled)
	}
	if len(disabled) == 0 {
		fmt.Fprintln(formatter.Writer, "No suppressed OCIDs.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OCID\tEVENT\tUSER\tUNTIL\tWINDOWS")
	for _, d := range disabled {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n",
			d.OCID, d.EventID, d.User, d.DisableUntil.In(loc).Format(time.DateTime), describeWindows(d.Intervals))
	}
	return tw.Flush()
}

// describeWindows renders intervals as clock times, e.g. "01:00-02:30".
func describeWindows(intervals []interval.Interval) string {
	if len(intervals) == 0 {
		return "whole day"
	}
	parts := make([]string, len(intervals))
	for i, iv := range intervals {
		parts[i] = clockTime(iv.From) + "-" + clockTime(iv.To)
	}
	return strings.Join(parts, ", ")
}

func clockTime(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h, m, s := int(d/time.Hour), int(d%time.Hour/time.Minute), int(d%time.Minute/time.Second)
	rest := ms % 1000
	switch {
	case rest != 0:
		return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, rest)
	case s != 0:
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	default:
		return fmt.Sprintf("%02d:%02d", h, m)
	}
}

// openReadStore opens the configured database without starting the engine.
func openReadStore(opts *RootOptions) (*store.Store, *time.Location, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid timezone", err)
	}
	if cfg.Database != ":memory:" && !fileExists(cfg.Database) {
		return nil, nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", cfg.Database))
	}
	st, err := store.Open(cfg.Database, store.WithMaxParams(cfg.MaxQueryParams))
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, loc, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
