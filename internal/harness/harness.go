package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/asbelov/alepiz-sub006/internal/actions"
	"github.com/asbelov/alepiz-sub006/internal/engine"
	"github.com/asbelov/alepiz-sub006/internal/store"
	"github.com/asbelov/alepiz-sub006/internal/testutil"
)

// Harness executes one scenario.
type Harness struct {
	store     *store.Store
	engine    *engine.Engine
	processor *actions.Processor
	clock     *testutil.FixedClock
	tasks     *testutil.RecordingRunner
	start     time.Time
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. Step errors and failed
// expectations are reported in the result; only harness failures (store
// cannot be opened, engine cannot start) are returned as errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	start, loc, err := scenario.start()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store: st,
		clock: testutil.NewFixedClock(start),
		tasks: testutil.NewRecordingRunner(nil),
		start: start,
	}
	h.engine = engine.New(st,
		engine.WithClock(h.clock),
		engine.WithLocation(loc),
		engine.WithTaskRunner(h.tasks),
		engine.WithBatchIDs(engine.NewSequenceGenerator(scenario.Name)),
		engine.WithFlushInterval(0),
	)
	h.processor = actions.New(h.engine)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(runCtx) }()
	defer func() {
		h.engine.Stop()
		<-done
		cancel()
	}()

	result := NewResult()
	for i, step := range scenario.Steps {
		ev := h.execute(ctx, step)
		ev.Step = i + 1
		result.Trace = append(result.Trace, ev)

		if msg := checkExpect(step, ev); msg != "" {
			result.AddError(fmt.Sprintf("step %d: %s", ev.Step, msg))
		}
	}

	h.engine.WaitHooks()
	for _, c := range h.tasks.Calls() {
		result.Tasks = append(result.Tasks, TaskTrace{
			TaskID:  c.TaskID,
			EventID: c.Vars["EVENT_ID"],
			Action:  c.Vars["ACTION"],
		})
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// execute runs one step and describes it.
func (h *Harness) execute(ctx context.Context, step Step) TraceEvent {
	ev := TraceEvent{Kind: step.Kind()}

	switch ev.Kind {
	case KindOccurred:
		ev.OCID = step.Occurred.OCID
		res, err := h.engine.Occurred(ctx, h.occurrence(step.Occurred))
		ev.Outcome, ev.EventID = string(res.Outcome), res.EventID
		ev.Error = errString(err)

	case KindSolved:
		ev.OCID = step.Solved.OCID
		res, err := h.engine.Solved(ctx, engine.Solution{
			OCID:         step.Solved.OCID,
			EvalTime:     h.clock.Now(),
			SolvedTaskID: step.Solved.SolvedTask,
		})
		ev.Outcome, ev.EventID = string(res.Outcome), res.EventID
		ev.Error = errString(err)

	case KindAction:
		ev.Action = step.Action
		params, err := json.Marshal(step.Params)
		if err != nil {
			ev.Error = errString(err)
			break
		}
		sum, err := h.processor.Dispatch(ctx, step.Action, params)
		if err != nil {
			ev.Error = errString(err)
			break
		}
		ev.Summary = &sum

	case KindAdvance:
		// Validated on load.
		d, _ := time.ParseDuration(step.Advance)
		h.clock.Advance(d)

	case KindFlush:
		n, err := h.engine.FlushRepeats(ctx)
		ev.Flushed = &n
		ev.Error = errString(err)
	}

	ev.OffsetMS = h.clock.Now().Sub(h.start).Milliseconds()
	return ev
}

func (h *Harness) occurrence(s *OccurredStep) engine.Occurrence {
	var d time.Duration
	if s.Duration != "" {
		d, _ = time.ParseDuration(s.Duration)
	}
	return engine.Occurrence{
		OCID:          s.OCID,
		ObjectID:      s.ObjectID,
		CounterID:     s.CounterID,
		ObjectName:    s.ObjectName,
		CounterName:   s.CounterName,
		Importance:    s.Importance,
		Data:          s.Data,
		EvalTime:      h.clock.Now(),
		Duration:      d,
		ProblemTaskID: s.ProblemTask,
		SolvedTaskID:  s.SolvedTask,
	}
}

// checkExpect compares a step's trace entry with its expectation.
func checkExpect(step Step, ev TraceEvent) string {
	switch {
	case step.Expect == "":
		if ev.Error != "" {
			return fmt.Sprintf("unexpected error: %s", ev.Error)
		}
		return ""
	case step.Expect == ExpectError:
		if ev.Error == "" {
			return "expected an error, got none"
		}
		return ""
	case ev.Error != "":
		return fmt.Sprintf("expected %s, got error: %s", step.Expect, ev.Error)
	case step.Expect == ExpectOK:
		return ""
	case step.Expect != ev.Outcome:
		return fmt.Sprintf("expected outcome %s, got %s", step.Expect, ev.Outcome)
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
