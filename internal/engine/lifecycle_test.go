package engine

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbelov/alepiz-sub006/internal/interval"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

func TestOccurred_OpensOnceThenRepeats(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	first, err := te.Occurred(ctx, occurrence(1, time.Second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, first.Outcome)

	o := occurrence(1, 2*time.Second)
	o.Data = "load is still high"
	second, err := te.Occurred(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRepeated, second.Outcome)
	assert.Equal(t, first.EventID, second.EventID)

	assert.Equal(t, 1, te.count(t, "events"))
	assert.Equal(t, 1, te.Snapshot().Pending)

	ev, err := te.store.Queries().ReadEvent(ctx, first.EventID)
	require.NoError(t, err)
	assert.Equal(t, "load is high", ev.Data, "repeat is written behind")

	written, err := te.FlushRepeats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	ev, err = te.store.Queries().ReadEvent(ctx, first.EventID)
	require.NoError(t, err)
	assert.Equal(t, "load is still high", ev.Data)
	assert.True(t, ev.Timestamp.Equal(midnight.Add(2*time.Second)))
	assert.True(t, ev.StartTime.Equal(midnight.Add(time.Second)))
}

func TestSolved_NothingOpen(t *testing.T) {
	te := startEngine(t, setupTestStore(t))

	res, err := te.Solved(context.Background(), Solution{OCID: 5, EvalTime: midnight})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoOpenEvent, res.Outcome)
	assert.Zero(t, te.count(t, "events"))
}

func TestSolved_ClosesWithBufferedRepeat(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	opened, err := te.Occurred(ctx, occurrence(1, time.Second))
	require.NoError(t, err)
	o := occurrence(1, 2*time.Second)
	o.Data = "latest"
	_, err = te.Occurred(ctx, o)
	require.NoError(t, err)

	res, err := te.Solved(ctx, Solution{OCID: 1, EvalTime: midnight.Add(3 * time.Second)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, res.Outcome)
	assert.Equal(t, opened.EventID, res.EventID)

	ev, err := te.store.Queries().ReadEvent(ctx, res.EventID)
	require.NoError(t, err)
	assert.False(t, ev.Open())
	assert.True(t, ev.EndTime.Equal(midnight.Add(3*time.Second)))
	assert.Equal(t, "latest", ev.Data)
	assert.Zero(t, te.Snapshot().Pending)
	assert.Empty(t, te.Snapshot().Open)

	// The state machine starts over.
	again, err := te.Occurred(ctx, occurrence(1, 4*time.Second))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, again.Outcome)
	assert.NotEqual(t, opened.EventID, again.EventID)
}

func TestTaskHooks(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	o := occurrence(1, time.Second)
	o.ProblemTaskID = 10
	o.SolvedTaskID = 11
	_, err := te.Occurred(ctx, o)
	require.NoError(t, err)
	_, err = te.Occurred(ctx, o) // repeat: no hook
	require.NoError(t, err)
	_, err = te.Solved(ctx, Solution{OCID: 1, EvalTime: midnight.Add(time.Minute), SolvedTaskID: 11})
	require.NoError(t, err)
	te.WaitHooks()

	calls := te.tasks.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, int64(10), calls[0].TaskID)
	assert.Equal(t, "problem", calls[0].Vars["ACTION"])
	assert.Equal(t, "1", calls[0].Vars["OCID"])
	assert.Equal(t, "server-1", calls[0].Vars["OBJECT_NAME"])
	assert.Equal(t, int64(11), calls[1].TaskID)
	assert.Equal(t, "solved", calls[1].Vars["ACTION"])
	assert.Equal(t, calls[0].Vars["EVENT_ID"], calls[1].Vars["EVENT_ID"])
}

func TestTaskHookErrorIsNotReturned(t *testing.T) {
	te := startEngine(t, setupTestStore(t), WithTaskRunner(failingRunner{}))

	o := occurrence(1, time.Second)
	o.ProblemTaskID = 10
	res, err := te.Occurred(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, res.Outcome)
	te.WaitHooks()
}

type failingRunner struct{}

func (failingRunner) RunTask(context.Context, int64, map[string]string) error {
	return errors.New("runner down")
}

func TestOccurred_SuppressedByTimeOfDay(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	// An event is needed for the disabledEvents foreign key.
	seed, err := te.RecordClosed(ctx, store.Event{
		OCID: 42, CounterID: 7, StartTime: midnight, EndTime: midnight,
	})
	require.NoError(t, err)

	te.disable(t, store.DisabledEvent{
		OCID:         42,
		EventID:      seed,
		Timestamp:    midnight,
		User:         "admin",
		DisableUntil: midnight.Add(time.Hour),
		Intervals:    interval.Parse("900-1000"),
	})

	res, err := te.Occurred(ctx, occurrence(42, 930*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, res.Outcome)
	assert.Empty(t, te.openRows(t))

	res, err = te.Occurred(ctx, occurrence(42, 1100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, res.Outcome)
	assert.Len(t, te.openRows(t), 1)
}

func TestOccurred_SuppressedAllDayWithoutIntervals(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	opened, err := te.Occurred(ctx, occurrence(42, time.Second))
	require.NoError(t, err)
	te.disable(t, store.DisabledEvent{
		OCID: 42, EventID: opened.EventID, Timestamp: midnight, User: "admin",
		DisableUntil: midnight.Add(time.Hour),
	})

	// Suppression applies while an event is open too: nothing is buffered.
	res, err := te.Occurred(ctx, occurrence(42, 20*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuppressed, res.Outcome)
	assert.Zero(t, te.Snapshot().Pending)

	// Solving still closes the event but the hook stays quiet.
	res, err = te.Solved(ctx, Solution{OCID: 42, EvalTime: midnight.Add(time.Minute), SolvedTaskID: 11})
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, res.Outcome)
	te.WaitHooks()
	assert.Empty(t, te.tasks.Calls())
}

func TestOccurred_ExpiredDisableIsEnabledFirst(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	seed, err := te.RecordClosed(ctx, store.Event{OCID: 42, StartTime: midnight, EndTime: midnight})
	require.NoError(t, err)
	te.disable(t, store.DisabledEvent{
		OCID: 42, EventID: seed, Timestamp: midnight, User: "admin",
		DisableUntil: midnight.Add(time.Minute),
	})

	te.clock.Advance(2 * time.Minute)
	res, err := te.Occurred(ctx, occurrence(42, 2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, res.Outcome)
	assert.Zero(t, te.count(t, "disabledEvents"))
	assert.Empty(t, te.Snapshot().Disabled)
}

func TestAutoSolve(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	o := occurrence(1, 0)
	o.Duration = 5 * time.Minute
	opened, err := te.Occurred(ctx, o)
	require.NoError(t, err)
	require.Equal(t, 1, te.clock.Pending())

	te.clock.Advance(5 * time.Minute)

	ev, err := te.store.Queries().ReadEvent(ctx, opened.EventID)
	require.NoError(t, err)
	assert.False(t, ev.Open())
	assert.True(t, ev.EndTime.Equal(midnight.Add(5*time.Minute)))
}

func TestAutoSolve_ManualSolveFirst(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	o := occurrence(1, 0)
	o.Duration = 5 * time.Minute
	_, err := te.Occurred(ctx, o)
	require.NoError(t, err)

	_, err = te.Solved(ctx, Solution{OCID: 1, EvalTime: midnight.Add(time.Minute)})
	require.NoError(t, err)

	// A newer event for the same OCID must survive the stale timer.
	reopened, err := te.Occurred(ctx, occurrence(1, 2*time.Minute))
	require.NoError(t, err)

	te.clock.Advance(5 * time.Minute)

	open := te.openRows(t)
	require.Len(t, open, 1)
	assert.Equal(t, reopened.EventID, open[0].ID)
}

func TestTransact_RollbackRestoresCache(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()
	boom := errors.New("boom")

	o := occurrence(1, 0)
	o.ProblemTaskID = 10
	var inside Result
	err := te.Transact(ctx, "failing", func(ctx context.Context, tx *Tx) error {
		var err error
		if inside, err = tx.Occurred(ctx, o); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, OutcomeOpened, inside.Outcome)

	te.WaitHooks()
	assert.Empty(t, te.Snapshot().Open)
	assert.Zero(t, te.count(t, "events"))
	assert.Empty(t, te.tasks.Calls(), "hooks are dropped on rollback")
}

func TestBootstrap_LoadsOpenEvents(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	var id int64
	require.NoError(t, s.WithTx(ctx, "seed", func(q *store.Queries) error {
		var err error
		id, err = q.InsertEvent(ctx, store.Event{OCID: 9, StartTime: midnight})
		return err
	}))

	te := startEngine(t, s)
	res, err := te.Solved(ctx, Solution{OCID: 9, EvalTime: midnight.Add(time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, res.Outcome)
	assert.Equal(t, id, res.EventID)
}

func TestBootstrap_DropsExpiredDisabledRows(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, "seed", func(q *store.Queries) error {
		id, err := q.InsertEvent(ctx, store.Event{OCID: 9, StartTime: midnight, EndTime: midnight})
		if err != nil {
			return err
		}
		return q.UpsertDisabledEvent(ctx, store.DisabledEvent{
			OCID: 9, EventID: id, Timestamp: midnight, User: "u",
			DisableUntil: midnight.Add(-time.Minute),
		})
	}))

	te := startEngine(t, s)
	_, err := te.Solved(ctx, Solution{OCID: 9, EvalTime: midnight})
	require.NoError(t, err)
	assert.Zero(t, te.count(t, "disabledEvents"))
}

func TestBootstrap_FailureIsRetried(t *testing.T) {
	s := setupTestStore(t)
	te := startEngine(t, s)
	require.NoError(t, s.Close())

	_, err := te.Occurred(context.Background(), occurrence(1, 0))
	require.Error(t, err)
	assert.True(t, IsBootstrapError(err))
	assert.False(t, te.bootstrapped)
}

func TestInvalidOccurrence(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	_, err := te.Occurred(ctx, Occurrence{OCID: 0, EvalTime: midnight})
	assert.True(t, IsInvalidOccurrence(err))

	_, err = te.Occurred(ctx, Occurrence{OCID: 1})
	assert.True(t, IsInvalidOccurrence(err))

	_, err = te.Solved(ctx, Solution{OCID: -1, EvalTime: midnight})
	assert.True(t, IsInvalidOccurrence(err))

	_, err = te.RecordClosed(ctx, store.Event{OCID: 1, StartTime: midnight.Add(time.Hour), EndTime: midnight})
	assert.True(t, IsInvalidOccurrence(err))
}

func TestRemoveCounters(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	for _, ocid := range []int64{1, 2, 3} {
		_, err := te.Occurred(ctx, occurrence(ocid, 0))
		require.NoError(t, err)
	}

	te.RemoveCounters(ctx, []int64{1, 3, 99})

	open := te.openRows(t)
	require.Len(t, open, 1)
	assert.Equal(t, int64(2), open[0].OCID)
}

func TestRecordClosed_DoesNotTouchOpenState(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()

	id, err := te.RecordClosed(ctx, store.Event{
		OCID: 1, StartTime: midnight, EndTime: midnight.Add(time.Hour), Data: "history",
	})
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Empty(t, te.Snapshot().Open)

	res, err := te.Occurred(ctx, occurrence(1, 2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, OutcomeOpened, res.Outcome)
}

func TestAtMostOneOpenEventPerOCID(t *testing.T) {
	te := startEngine(t, setupTestStore(t))
	ctx := context.Background()
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		ocid := int64(rng.Intn(5) + 1)
		at := time.Duration(i) * time.Second
		var err error
		if rng.Intn(2) == 0 {
			_, err = te.Occurred(ctx, occurrence(ocid, at))
		} else {
			_, err = te.Solved(ctx, Solution{OCID: ocid, EvalTime: midnight.Add(at)})
		}
		require.NoError(t, err)

		seen := map[int64]int64{}
		for _, ev := range te.openRows(t) {
			_, dup := seen[ev.OCID]
			require.False(t, dup, "two open events for OCID %d after step %d", ev.OCID, i)
			seen[ev.OCID] = ev.ID
		}
		require.Equal(t, seen, te.Snapshot().Open)
	}
}
