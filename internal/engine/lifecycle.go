package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/asbelov/alepiz-sub006/internal/cache"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

// Outcome tells the caller what an occurred/solved call did.
type Outcome string

const (
	// OutcomeOpened means a new event row was inserted.
	OutcomeOpened Outcome = "opened"
	// OutcomeRepeated means the event was already open; the observation
	// was buffered for the next flush.
	OutcomeRepeated Outcome = "repeated"
	// OutcomeSuppressed means the OCID is disabled at the evaluation time.
	OutcomeSuppressed Outcome = "suppressed"
	// OutcomeClosed means the open event was closed.
	OutcomeClosed Outcome = "closed"
	// OutcomeNoOpenEvent means there was nothing to solve.
	OutcomeNoOpenEvent Outcome = "no_open_event"
)

// Result is the neutral, non-error answer of an occurred/solved call.
type Result struct {
	Outcome Outcome `json:"outcome"`
	EventID int64   `json:"event_id,omitempty"`
}

// Occurrence is one "problem occurred" evaluation of a counter.
type Occurrence struct {
	OCID          int64
	ObjectID      int64
	CounterID     int64
	ObjectName    string
	CounterName   string
	ParentOCID    int64
	Importance    int
	Data          string
	Pronunciation string

	// Timestamp is the time of the observed data. Defaults to EvalTime.
	Timestamp time.Time

	// EvalTime is when the condition was evaluated; it becomes the event's
	// startTime.
	EvalTime time.Time

	// Duration, when positive, solves the event automatically after it.
	Duration time.Duration

	ProblemTaskID int64
	SolvedTaskID  int64
}

func (o Occurrence) validate() error {
	switch {
	case o.OCID <= 0:
		return invalidOccurrence(o.OCID, "OCID must be positive")
	case o.EvalTime.IsZero():
		return invalidOccurrence(o.OCID, "evaluation time is required")
	case o.Duration < 0:
		return invalidOccurrence(o.OCID, "event duration is negative")
	case o.ProblemTaskID < 0 || o.SolvedTaskID < 0:
		return invalidOccurrence(o.OCID, "task ids must not be negative")
	}
	return nil
}

// Solution is one "problem solved" evaluation of a counter.
type Solution struct {
	OCID     int64
	EvalTime time.Time

	// EventID, when set, restricts the solve to that event: if a different
	// event is open for the OCID nothing happens.
	EventID int64

	SolvedTaskID int64
}

func (s Solution) validate() error {
	switch {
	case s.OCID <= 0:
		return invalidOccurrence(s.OCID, "OCID must be positive")
	case s.EvalTime.IsZero():
		return invalidOccurrence(s.OCID, "evaluation time is required")
	}
	return nil
}

// Occurred records that the problem condition of o.OCID is true.
func (e *Engine) Occurred(ctx context.Context, o Occurrence) (Result, error) {
	if err := o.validate(); err != nil {
		return Result{}, err
	}

	var res Result
	err := e.Transact(ctx, "occurred", func(ctx context.Context, tx *Tx) error {
		var err error
		res, err = tx.Occurred(ctx, o)
		return err
	})
	return res, err
}

// Solved records that the problem condition of s.OCID is false.
func (e *Engine) Solved(ctx context.Context, s Solution) (Result, error) {
	if err := s.validate(); err != nil {
		return Result{}, err
	}

	var res Result
	err := e.Transact(ctx, "solved", func(ctx context.Context, tx *Tx) error {
		var err error
		res, err = tx.Solve(ctx, s)
		return err
	})
	return res, err
}

// RemoveCounters solves every open event of ocids, one at a time. Used when
// the monitored objects or counters are deleted. Errors are logged.
func (e *Engine) RemoveCounters(ctx context.Context, ocids []int64) {
	for _, ocid := range ocids {
		res, err := e.Solved(ctx, Solution{OCID: ocid, EvalTime: e.clock.Now()})
		if err != nil {
			slog.Error("remove counter: solve failed", "ocid", ocid, "error", err)
			if errors.Is(err, ErrStopped) || ctx.Err() != nil {
				return
			}
			continue
		}
		slog.Debug("remove counter", "ocid", ocid, "outcome", res.Outcome)
	}
}

// RecordClosed inserts a historical event that has both start and end time.
// Open-event state is not touched.
func (e *Engine) RecordClosed(ctx context.Context, ev store.Event) (int64, error) {
	switch {
	case ev.OCID <= 0:
		return 0, invalidOccurrence(ev.OCID, "OCID must be positive")
	case ev.StartTime.IsZero() || ev.EndTime.IsZero():
		return 0, invalidOccurrence(ev.OCID, "historical event needs start and end time")
	case ev.EndTime.Before(ev.StartTime):
		return 0, invalidOccurrence(ev.OCID, "end time %s is before start time %s",
			ev.EndTime.Format(time.RFC3339), ev.StartTime.Format(time.RFC3339))
	}

	var id int64
	err := e.Transact(ctx, "record closed", func(ctx context.Context, tx *Tx) error {
		var err error
		id, err = tx.q.InsertEvent(ctx, ev)
		return err
	})
	return id, err
}

// Occurred applies an occurrence inside the transaction.
func (tx *Tx) Occurred(ctx context.Context, o Occurrence) (Result, error) {
	if _, err := tx.Expire(ctx, o.OCID); err != nil {
		return Result{}, err
	}

	if tx.Suppressed(o.OCID, o.EvalTime) {
		slog.Debug("occurrence suppressed", "ocid", o.OCID, "eval_time", o.EvalTime)
		return Result{Outcome: OutcomeSuppressed}, nil
	}

	ts := o.Timestamp
	if ts.IsZero() {
		ts = o.EvalTime
	}

	if id, open := tx.e.cache.OpenEvent(o.OCID); open {
		repeat := cache.Repeat{Data: o.Data, Timestamp: ts, Pronunciation: o.Pronunciation}
		tx.AfterCommit(func() { tx.e.cache.PutRepeat(id, repeat) })
		return Result{Outcome: OutcomeRepeated, EventID: id}, nil
	}

	ev := store.Event{
		OCID:          o.OCID,
		ObjectID:      o.ObjectID,
		CounterID:     o.CounterID,
		ObjectName:    o.ObjectName,
		CounterName:   o.CounterName,
		ParentOCID:    o.ParentOCID,
		Importance:    o.Importance,
		StartTime:     o.EvalTime,
		Data:          o.Data,
		Pronunciation: o.Pronunciation,
		Timestamp:     ts,
	}
	id, err := tx.q.InsertEvent(ctx, ev)
	if err != nil {
		return Result{}, fmt.Errorf("open event for OCID %d: %w", o.OCID, err)
	}
	ev.ID = id
	tx.e.cache.SetOpen(o.OCID, id, tx.journal)

	slog.Info("event opened", "ocid", o.OCID, "event_id", id, "batch", tx.batchID)

	if o.ProblemTaskID != 0 {
		vars := taskVariables(ev, "problem", o.EvalTime)
		tx.AfterCommit(func() { tx.e.runTask(o.ProblemTaskID, vars) })
	}
	if o.Duration > 0 {
		tx.AfterCommit(func() { tx.e.scheduleSolve(o.OCID, id, o.Duration, o.SolvedTaskID) })
	}

	return Result{Outcome: OutcomeOpened, EventID: id}, nil
}

// Solve applies a solution inside the transaction. Bulk actions use it to
// force-close events.
func (tx *Tx) Solve(ctx context.Context, s Solution) (Result, error) {
	if _, err := tx.Expire(ctx, s.OCID); err != nil {
		return Result{}, err
	}

	id, open := tx.e.cache.OpenEvent(s.OCID)
	if !open || (s.EventID != 0 && s.EventID != id) {
		return Result{Outcome: OutcomeNoOpenEvent}, nil
	}

	var data *store.EventData
	if r, ok := tx.e.cache.TakeRepeat(id, tx.journal); ok {
		d := r.EventData()
		data = &d
	}

	closed, err := tx.q.CloseEvent(ctx, id, s.EvalTime, data)
	if err != nil {
		return Result{}, fmt.Errorf("solve OCID %d: %w", s.OCID, err)
	}
	tx.e.cache.DropOpen(s.OCID, tx.journal)

	if !closed {
		slog.Error("cached open event is missing or already closed",
			"ocid", s.OCID,
			"event_id", id,
		)
		return Result{Outcome: OutcomeNoOpenEvent}, nil
	}

	slog.Info("event closed", "ocid", s.OCID, "event_id", id, "batch", tx.batchID)

	if s.SolvedTaskID != 0 && !tx.Suppressed(s.OCID, s.EvalTime) {
		ev, err := tx.q.ReadEvent(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("read solved event %d: %w", id, err)
		}
		vars := taskVariables(ev, "solved", s.EvalTime)
		tx.AfterCommit(func() { tx.e.runTask(s.SolvedTaskID, vars) })
	}

	return Result{Outcome: OutcomeClosed, EventID: id}, nil
}

// scheduleSolve closes eventID after d unless it was closed earlier.
func (e *Engine) scheduleSolve(ocid, eventID int64, d time.Duration, solvedTaskID int64) {
	e.clock.AfterFunc(d, func() {
		res, err := e.Solved(context.Background(), Solution{
			OCID:         ocid,
			EvalTime:     e.clock.Now(),
			EventID:      eventID,
			SolvedTaskID: solvedTaskID,
		})
		if err != nil {
			if !errors.Is(err, ErrStopped) {
				slog.Error("automatic solve failed", "ocid", ocid, "event_id", eventID, "error", err)
			}
			return
		}
		slog.Debug("automatic solve", "ocid", ocid, "event_id", eventID, "outcome", res.Outcome)
	})
}

// taskVariables builds the variables handed to a task hook.
func taskVariables(ev store.Event, action string, at time.Time) map[string]string {
	return map[string]string{
		"EVENT_ID":     strconv.FormatInt(ev.ID, 10),
		"OCID":         strconv.FormatInt(ev.OCID, 10),
		"OBJECT_ID":    strconv.FormatInt(ev.ObjectID, 10),
		"COUNTER_ID":   strconv.FormatInt(ev.CounterID, 10),
		"OBJECT_NAME":  ev.ObjectName,
		"COUNTER_NAME": ev.CounterName,
		"IMPORTANCE":   strconv.Itoa(ev.Importance),
		"DATA":         ev.Data,
		"EVENT_TIME":   strconv.FormatInt(at.UnixMilli(), 10),
		"ACTION":       action,
	}
}
