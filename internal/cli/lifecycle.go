package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/asbelov/alepiz-sub006/internal/actions"
	"github.com/asbelov/alepiz-sub006/internal/engine"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

// withEngine runs fn against a started engine and drains it afterwards, so
// buffered repeats are written and task hooks finish before the command exits.
// Auto-solve timers do not survive the command.
func withEngine(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, svc *service) error) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx := cmdContext(cmd)
	svc, err := openService(ctx, cfg, opts.services)
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		return WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	svc.start(ctx)

	runErr := fn(ctx, svc)
	if closeErr := svc.Close(); closeErr != nil && runErr == nil {
		return WrapExitError(ExitCommandError, "engine shutdown failed", closeErr)
	}
	return runErr
}

// formatterFor builds the output formatter of a command.
func formatterFor(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// callError reports a failed engine call. Rejected input exits with
// ExitFailure; anything else is a command error.
func callError(f *OutputFormatter, err error) error {
	if engine.IsInvalidOccurrence(err) || actions.IsValidationError(err) {
		_ = f.Error(ErrCodeInvalid, err.Error(), nil)
		return WrapExitError(ExitFailure, "request rejected", err)
	}
	_ = f.Error(ErrCodeEngine, err.Error(), nil)
	return WrapExitError(ExitCommandError, "engine call failed", err)
}

// LifecycleResult is the outcome of an occurred or solved call.
type LifecycleResult struct {
	OCID    int64  `json:"ocid"`
	Outcome string `json:"outcome"`
	EventID int64  `json:"event_id,omitempty"`
}

func (r LifecycleResult) String() string {
	if r.EventID == 0 {
		return fmt.Sprintf("OCID %d: %s", r.OCID, r.Outcome)
	}
	return fmt.Sprintf("OCID %d: %s (event %d)", r.OCID, r.Outcome, r.EventID)
}

// OccurredOptions holds flags for the occurred command.
type OccurredOptions struct {
	*RootOptions
	Occurrence engine.Occurrence
	Duration   time.Duration
	EvalTime   string
}

// NewOccurredCommand creates the occurred command.
func NewOccurredCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OccurredOptions{RootOptions: rootOpts}
	o := &opts.Occurrence

	cmd := &cobra.Command{
		Use:   "occurred",
		Short: "Report that a problem occurred",
		Long: `Report a "problem occurred" evaluation for an object-counter pair.

Opens a new event, or buffers the data of the open one, unless the OCID is
suppressed. Counter rules (rules_dir) fill importance, pronunciation,
duration and task ids that are not given on the command line.

Examples:
  alepiz-events occurred --ocid 42 --object-id 4 --counter-id 17 \
    --object-name srv-1 --counter-name cpu --data "load 97%"
  alepiz-events occurred --ocid 42 --importance 1 --duration 5m --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOccurred(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&o.OCID, "ocid", 0, "object-counter id (required)")
	f.Int64Var(&o.ObjectID, "object-id", 0, "object id")
	f.Int64Var(&o.CounterID, "counter-id", 0, "counter id (selects the counter rule)")
	f.StringVar(&o.ObjectName, "object-name", "", "object name")
	f.StringVar(&o.CounterName, "counter-name", "", "counter name")
	f.Int64Var(&o.ParentOCID, "parent-ocid", 0, "OCID of the parent event")
	f.IntVar(&o.Importance, "importance", 0, "importance (lower is more important)")
	f.StringVar(&o.Data, "data", "", "event data")
	f.StringVar(&o.Pronunciation, "pronunciation", "", "text for voice notifications")
	f.DurationVar(&opts.Duration, "duration", 0, "solve automatically after this duration")
	f.Int64Var(&o.ProblemTaskID, "problem-task", 0, "task to run when the event opens")
	f.Int64Var(&o.SolvedTaskID, "solved-task", 0, "task to run when the event closes")
	f.StringVar(&opts.EvalTime, "at", "", "evaluation time, RFC 3339 (default now)")
	_ = cmd.MarkFlagRequired("ocid")

	return cmd
}

func runOccurred(opts *OccurredOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	return withEngine(opts.RootOptions, cmd, func(ctx context.Context, svc *service) error {
		o := opts.Occurrence
		o.Duration = opts.Duration
		at, err := parseEvalTime(opts.EvalTime, svc.engine.Now())
		if err != nil {
			return err
		}
		o.EvalTime = at
		svc.rules.Apply(&o)

		formatter.VerboseLog("occurred: OCID %d counter %d importance %d", o.OCID, o.CounterID, o.Importance)
		res, err := svc.engine.Occurred(ctx, o)
		if err != nil {
			return callError(formatter, err)
		}
		return formatter.Success(LifecycleResult{OCID: o.OCID, Outcome: string(res.Outcome), EventID: res.EventID})
	})
}

// SolvedOptions holds flags for the solved command.
type SolvedOptions struct {
	*RootOptions
	Solution  engine.Solution
	CounterID int64
	EvalTime  string
}

// NewSolvedCommand creates the solved command.
func NewSolvedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SolvedOptions{RootOptions: rootOpts}
	s := &opts.Solution

	cmd := &cobra.Command{
		Use:   "solved",
		Short: "Report that a problem is solved",
		Long: `Report a "problem solved" evaluation for an object-counter pair.

Closes the open event of the OCID. Solving an OCID without an open event is
not an error.

Examples:
  alepiz-events solved --ocid 42
  alepiz-events solved --ocid 42 --counter-id 17 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolved(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&s.OCID, "ocid", 0, "object-counter id (required)")
	f.Int64Var(&s.EventID, "event-id", 0, "close only this event")
	f.Int64Var(&s.SolvedTaskID, "solved-task", 0, "task to run when the event closes")
	f.Int64Var(&opts.CounterID, "counter-id", 0, "counter id (selects the counter rule)")
	f.StringVar(&opts.EvalTime, "at", "", "evaluation time, RFC 3339 (default now)")
	_ = cmd.MarkFlagRequired("ocid")

	return cmd
}

func runSolved(opts *SolvedOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	return withEngine(opts.RootOptions, cmd, func(ctx context.Context, svc *service) error {
		s := opts.Solution
		at, err := parseEvalTime(opts.EvalTime, svc.engine.Now())
		if err != nil {
			return err
		}
		s.EvalTime = at
		svc.rules.ApplySolution(opts.CounterID, &s)

		res, err := svc.engine.Solved(ctx, s)
		if err != nil {
			return callError(formatter, err)
		}
		return formatter.Success(LifecycleResult{OCID: s.OCID, Outcome: string(res.Outcome), EventID: res.EventID})
	})
}

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Event store.Event
	Start string
	End   string
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}
	ev := &opts.Event

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Insert a historical, already closed event",
		Long: `Insert an event that has both a start and an end time.

The open-event state of the OCID is not touched and no tasks run.

Example:
  alepiz-events record --ocid 42 --start 2026-10-15T09:00:00Z --end 2026-10-15T09:30:00Z`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, cmd)
		},
	}

	f := cmd.Flags()
	f.Int64Var(&ev.OCID, "ocid", 0, "object-counter id (required)")
	f.Int64Var(&ev.ObjectID, "object-id", 0, "object id")
	f.Int64Var(&ev.CounterID, "counter-id", 0, "counter id")
	f.StringVar(&ev.ObjectName, "object-name", "", "object name")
	f.StringVar(&ev.CounterName, "counter-name", "", "counter name")
	f.IntVar(&ev.Importance, "importance", 0, "importance")
	f.StringVar(&ev.Data, "data", "", "event data")
	f.StringVar(&opts.Start, "start", "", "start time, RFC 3339 (required)")
	f.StringVar(&opts.End, "end", "", "end time, RFC 3339 (required)")
	_ = cmd.MarkFlagRequired("ocid")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")

	return cmd
}

func runRecord(opts *RecordOptions, cmd *cobra.Command) error {
	formatter := formatterFor(opts.RootOptions, cmd)

	ev := opts.Event
	var err error
	if ev.StartTime, err = time.Parse(time.RFC3339, opts.Start); err != nil {
		return WrapExitError(ExitCommandError, "invalid --start", err)
	}
	if ev.EndTime, err = time.Parse(time.RFC3339, opts.End); err != nil {
		return WrapExitError(ExitCommandError, "invalid --end", err)
	}

	return withEngine(opts.RootOptions, cmd, func(ctx context.Context, svc *service) error {
		id, err := svc.engine.RecordClosed(ctx, ev)
		if err != nil {
			return callError(formatter, err)
		}
		if formatter.Format == "json" {
			return formatter.Success(map[string]int64{"event_id": id})
		}
		return formatter.Success(fmt.Sprintf("recorded event %d for OCID %d", id, ev.OCID))
	})
}

// NewRemoveCountersCommand creates the remove-counters command.
func NewRemoveCountersCommand(rootOpts *RootOptions) *cobra.Command {
	var ocids []int64

	cmd := &cobra.Command{
		Use:   "remove-counters",
		Short: "Solve the open events of removed object-counter pairs",
		Long: `Solve every open event of the given OCIDs, one at a time. Use it when
monitored objects or counters are deleted.

Example:
  alepiz-events remove-counters --ocid 42,43`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := formatterFor(rootOpts, cmd)
			return withEngine(rootOpts, cmd, func(ctx context.Context, svc *service) error {
				svc.engine.RemoveCounters(ctx, ocids)
				if formatter.Format == "json" {
					return formatter.Success(map[string]int{"ocids": len(ocids)})
				}
				return formatter.Success(fmt.Sprintf("removed %d counter(s)", len(ocids)))
			})
		},
	}

	cmd.Flags().Int64SliceVar(&ocids, "ocid", nil, "object-counter ids (required)")
	_ = cmd.MarkFlagRequired("ocid")

	return cmd
}

// parseEvalTime parses an optional RFC 3339 time, defaulting to now.
func parseEvalTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, WrapExitError(ExitCommandError, "invalid --at", err)
	}
	return t, nil
}
