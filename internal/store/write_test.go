package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbelov/alepiz-sub006/internal/interval"
)

func TestInsertEvent_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	e := createTestEvent(42)
	e.ParentOCID = 41
	e.Pronunciation = "load high"
	id := insertTestEvent(t, s, e)

	got, err := s.Queries().ReadEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, int64(42), got.OCID)
	assert.Equal(t, int64(41), got.ParentOCID)
	assert.Equal(t, "load is high", got.Data)
	assert.Equal(t, "load high", got.Pronunciation)
	assert.True(t, got.StartTime.Equal(testTime))
	assert.True(t, got.Open())
	assert.Zero(t, got.CommentID)
}

func TestCloseEvent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := insertTestEvent(t, s, createTestEvent(1))
	end := testTime.Add(time.Minute)

	var closed bool
	err := s.WithTx(ctx, "t", func(q *Queries) error {
		var err error
		closed, err = q.CloseEvent(ctx, id, end, &EventData{Data: "last", Timestamp: end})
		return err
	})
	require.NoError(t, err)
	assert.True(t, closed)

	got, err := s.Queries().ReadEvent(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Open())
	assert.True(t, got.EndTime.Equal(end))
	assert.Equal(t, "last", got.Data)

	// Closing twice is a no-op.
	err = s.WithTx(ctx, "t", func(q *Queries) error {
		var err error
		closed, err = q.CloseEvent(ctx, id, end.Add(time.Minute), nil)
		return err
	})
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestUpdateEventData(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := insertTestEvent(t, s, createTestEvent(1))

	later := testTime.Add(30 * time.Second)
	var updated bool
	err := s.WithTx(ctx, "t", func(q *Queries) error {
		var err error
		updated, err = q.UpdateEventData(ctx, id, EventData{Data: "still high", Timestamp: later, Pronunciation: "p"})
		return err
	})
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := s.Queries().ReadEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "still high", got.Data)
	assert.Equal(t, "p", got.Pronunciation)
	assert.True(t, got.Timestamp.Equal(later))
	assert.True(t, got.Open())
}

func TestUpdateEventData_ClosedEventUnchanged(t *testing.T) {
	rep := &captureReplicator{}
	s := createTestStore(t, WithReplicator(rep))
	ctx := context.Background()
	id := insertTestEvent(t, s, createTestEvent(1))

	end := testTime.Add(time.Minute)
	err := s.WithTx(ctx, "t", func(q *Queries) error {
		_, err := q.CloseEvent(ctx, id, end, &EventData{Data: "final", Timestamp: end})
		return err
	})
	require.NoError(t, err)

	var updated bool
	err = s.WithTx(ctx, "t", func(q *Queries) error {
		var err error
		updated, err = q.UpdateEventData(ctx, id, EventData{Data: "stale", Timestamp: testTime.Add(30 * time.Second)})
		return err
	})
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Len(t, rep.batches, 2, "a skipped update must not replicate")

	got, err := s.Queries().ReadEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "final", got.Data)
	assert.True(t, got.Timestamp.Equal(end))
	assert.True(t, got.EndTime.Equal(end))
}

func TestSetEventComment_RetiresUnreferenced(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e1 := insertTestEvent(t, s, createTestEvent(1))
	e2 := insertTestEvent(t, s, createTestEvent(2))

	var first, second int64
	err := s.WithTx(ctx, "t", func(q *Queries) error {
		var err error
		first, err = q.InsertComment(ctx, Comment{Timestamp: testTime, User: "admin", Comment: "first"})
		if err != nil {
			return err
		}
		for _, id := range []int64{e1, e2} {
			if _, err := q.SetEventComment(ctx, id, first); err != nil {
				return err
			}
		}
		second, err = q.InsertComment(ctx, Comment{Timestamp: testTime, User: "admin", Comment: "second"})
		return err
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, "t", func(q *Queries) error {
		old, err := q.SetEventComment(ctx, e1, second)
		require.NoError(t, err)
		assert.Equal(t, first, old)

		// e2 still references the first comment.
		retired, err := q.RetireComment(ctx, old)
		require.NoError(t, err)
		assert.False(t, retired)

		old, err = q.SetEventComment(ctx, e2, second)
		require.NoError(t, err)
		retired, err = q.RetireComment(ctx, old)
		require.NoError(t, err)
		assert.True(t, retired)
		return nil
	})
	require.NoError(t, err)

	_, err = s.Queries().ReadComment(ctx, first)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	c, err := s.Queries().ReadComment(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, "second", c.Comment)
}

func TestRetireComment_KeptWhileDisabledEventReferences(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := insertTestEvent(t, s, createTestEvent(1))

	err := s.WithTx(ctx, "t", func(q *Queries) error {
		cid, err := q.InsertComment(ctx, Comment{Timestamp: testTime, User: "admin"})
		require.NoError(t, err)
		require.NoError(t, q.UpsertDisabledEvent(ctx, DisabledEvent{
			OCID: 1, EventID: id, Timestamp: testTime, User: "admin",
			CommentID: cid, DisableUntil: testTime.Add(time.Hour),
		}))
		retired, err := q.RetireComment(ctx, cid)
		require.NoError(t, err)
		assert.False(t, retired)
		return nil
	})
	require.NoError(t, err)
}

func TestUpsertDisabledEvent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := insertTestEvent(t, s, createTestEvent(42))

	d := DisabledEvent{
		OCID:         42,
		EventID:      id,
		Timestamp:    testTime,
		User:         "admin",
		DisableUntil: testTime.Add(time.Hour),
		Intervals:    []interval.Interval{{From: 1000, To: 2000}, {From: 900, To: 1000}},
	}
	require.NoError(t, s.WithTx(ctx, "t", func(q *Queries) error {
		return q.UpsertDisabledEvent(ctx, d)
	}))

	var raw sql.NullString
	require.NoError(t, s.db.QueryRow("SELECT intervals FROM disabledEvents WHERE OCID = 42").Scan(&raw))
	assert.Equal(t, "900-2000", raw.String, "intervals are merged before persisting")

	d.Intervals = nil
	d.User = "other"
	require.NoError(t, s.WithTx(ctx, "t", func(q *Queries) error {
		return q.UpsertDisabledEvent(ctx, d)
	}))

	require.NoError(t, s.db.QueryRow("SELECT intervals FROM disabledEvents WHERE OCID = 42").Scan(&raw))
	assert.False(t, raw.Valid, "no intervals are stored as NULL")

	got, found, err := s.Queries().ReadDisabledEvent(ctx, 42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "other", got.User)
	assert.Nil(t, got.Intervals)
}

func TestDeleteDisabledEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	id := insertTestEvent(t, s, createTestEvent(1))

	require.NoError(t, s.WithTx(ctx, "t", func(q *Queries) error {
		for ocid, until := range map[int64]time.Time{
			1: testTime.Add(-time.Minute),
			2: testTime,
			3: testTime.Add(time.Minute),
		} {
			if err := q.UpsertDisabledEvent(ctx, DisabledEvent{
				OCID: ocid, EventID: id, Timestamp: testTime, User: "u", DisableUntil: until,
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	var removed int64
	require.NoError(t, s.WithTx(ctx, "t", func(q *Queries) error {
		var err error
		removed, err = q.DeleteExpiredDisabledEvents(ctx, testTime)
		return err
	}))
	assert.Equal(t, int64(2), removed)

	var deleted bool
	require.NoError(t, s.WithTx(ctx, "t", func(q *Queries) error {
		var err error
		deleted, err = q.DeleteDisabledEvent(ctx, 3)
		return err
	}))
	assert.True(t, deleted)

	left, err := s.Queries().ReadDisabledEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestReplaceHint(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	key := HintKey{CounterID: 7}

	replace := func(h Hint) int64 {
		var id int64
		require.NoError(t, s.WithTx(ctx, "t", func(q *Queries) error {
			var err error
			id, err = q.ReplaceHint(ctx, key, h)
			return err
		}))
		return id
	}

	first := replace(Hint{Timestamp: testTime, User: "admin", Subject: "cpu", Comment: "check cron"})
	assert.NotZero(t, first)
	second := replace(Hint{Timestamp: testTime, User: "admin", Comment: "check backup"})
	assert.NotEqual(t, first, second)

	hints, err := s.Queries().ReadHints(ctx, key)
	require.NoError(t, err)
	require.Len(t, hints, 1)
	assert.Equal(t, "check backup", hints[0].Comment)
	assert.Equal(t, int64(7), hints[0].CounterID)

	assert.Zero(t, replace(Hint{Timestamp: testTime, User: "admin"}))
	hints, err = s.Queries().ReadHints(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, hints)
}

func TestReplaceHint_InvalidKey(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, "t", func(q *Queries) error {
		_, err := q.ReplaceHint(ctx, HintKey{}, Hint{Comment: "x"})
		return err
	})
	assert.Error(t, err)

	err = s.WithTx(ctx, "t", func(q *Queries) error {
		_, err := q.ReplaceHint(ctx, HintKey{OCID: 1, CounterID: 2}, Hint{Comment: "x"})
		return err
	})
	assert.Error(t, err)
}
