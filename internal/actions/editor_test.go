package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbelov/alepiz-sub006/internal/engine"
	"github.com/asbelov/alepiz-sub006/internal/interval"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

func TestEventEditor_AppliesAllParts(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ids := f.open(t, 1, 2)

	sum, err := f.EventEditor(ctx, EditorRequest{
		EventIDs: ids,
		User:     "admin",
		Hint:     &HintEdit{Note: Note{Comment: "restart the agent"}},
		Disable: &DisableEdit{
			DisableUntil: midnight.Add(time.Hour),
			Intervals:    interval.Parse("0-3600000"),
		},
		Solve: true,
		Note:  Note{Comment: "night maintenance"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Hints)
	assert.Equal(t, 2, sum.Solved)
	assert.NotZero(t, sum.CommentID)

	assert.Equal(t, 1, f.count(t, "hints"))
	assert.Equal(t, 2, f.count(t, "disabledEvents"))
	assert.Equal(t, "0-3600000", f.rawIntervals(t, 2).String)
	assert.Empty(t, f.engine.Snapshot().Open)
}

func TestEventEditor_EnableAndRemoveConflict(t *testing.T) {
	f := setup(t)
	ids := f.open(t, 1)

	_, err := f.EventEditor(context.Background(), EditorRequest{
		EventIDs:        ids,
		User:            "admin",
		Enable:          true,
		RemoveIntervals: []string{"1-2"},
	})
	assert.True(t, IsValidationError(err))
}

func TestEventEditor_RemoveIntervalsFromExpiredDisable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ids := f.open(t, 1)

	_, err := f.DisableEvents(ctx, DisableRequest{
		EventIDs:     ids,
		User:         "admin",
		DisableUntil: midnight.Add(time.Hour),
		Intervals:    interval.Parse("900-1000;2000-3000"),
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	_, err = f.EventEditor(ctx, EditorRequest{
		EventIDs:        ids,
		User:            "admin",
		RemoveIntervals: []string{"900-1000"},
	})
	require.NoError(t, err)

	assert.Zero(t, f.count(t, "disabledEvents"))
	assert.Empty(t, f.engine.Snapshot().Disabled)
}

func TestEventEditor_NothingToEdit(t *testing.T) {
	f := setup(t)
	ids := f.open(t, 1)

	_, err := f.EventEditor(context.Background(), EditorRequest{EventIDs: ids, User: "admin"})
	assert.True(t, IsValidationError(err))
}

func TestEventEditor_StoreFailureRollsBackEverything(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ids := f.open(t, 1, 2)

	_, err := f.AddAsHint(ctx, HintRequest{EventIDs: ids, User: "admin", Note: Note{Comment: "original hint"}})
	require.NoError(t, err)
	_, err = f.DisableEvents(ctx, DisableRequest{
		EventIDs:     ids[:1],
		User:         "admin",
		DisableUntil: midnight.Add(time.Hour),
		Intervals:    interval.Parse("900-1000"),
	})
	require.NoError(t, err)

	before := f.disabledRow(t, 1)
	snapshot := f.engine.Snapshot()
	comments := f.count(t, "comments")

	// Every write to disabledEvents fails from now on.
	_, err = f.store.DB().Exec(`
		CREATE TRIGGER fail_disable BEFORE INSERT ON disabledEvents
		BEGIN
			SELECT RAISE(ABORT, 'injected failure');
		END
	`)
	require.NoError(t, err)

	_, err = f.EventEditor(ctx, EditorRequest{
		EventIDs: ids,
		User:     "other",
		Hint:     &HintEdit{Note: Note{Comment: "new hint"}},
		Disable: &DisableEdit{
			DisableUntil: midnight.Add(2 * time.Hour),
			Intervals:    interval.Parse("2000-3000"),
		},
		Note: Note{Comment: "should vanish"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "injected failure")
	assert.False(t, IsValidationError(err))

	hints, err := f.store.Queries().ReadHints(ctx, store.HintKey{CounterID: 7})
	require.NoError(t, err)
	require.Len(t, hints, 1)
	assert.Equal(t, "original hint", hints[0].Comment)

	assert.Equal(t, 1, f.count(t, "disabledEvents"))
	after := f.disabledRow(t, 1)
	assert.Equal(t, before.User, after.User)
	assert.Equal(t, before.Intervals, after.Intervals)
	assert.True(t, before.DisableUntil.Equal(after.DisableUntil))

	assert.Equal(t, comments, f.count(t, "comments"))
	assert.Equal(t, snapshot, f.engine.Snapshot())
	assert.Equal(t, []int64{1}, f.engine.Snapshot().Disabled)

	// The cached windows are the original ones too.
	res, err := f.engine.Occurred(ctx, engine.Occurrence{OCID: 1, EvalTime: midnight.Add(2500 * time.Millisecond)})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeRepeated, res.Outcome)
	res, err = f.engine.Occurred(ctx, engine.Occurrence{OCID: 1, EvalTime: midnight.Add(950 * time.Millisecond)})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeSuppressed, res.Outcome)
}
