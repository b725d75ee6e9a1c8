package actions

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asbelov/alepiz-sub006/internal/engine"
	"github.com/asbelov/alepiz-sub006/internal/store"
	"github.com/asbelov/alepiz-sub006/internal/testutil"
)

var midnight = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

type fixture struct {
	*Processor
	engine *engine.Engine
	store  *store.Store
	clock  *testutil.FixedClock
}

func setup(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "actions.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewFixedClock(midnight)
	e := engine.New(s,
		engine.WithClock(clock),
		engine.WithLocation(time.UTC),
		engine.WithBatchIDs(engine.NewSequenceGenerator("test")),
		engine.WithFlushInterval(0),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &fixture{Processor: New(e), engine: e, store: s, clock: clock}
}

// open opens one event per OCID and returns their IDs in order.
func (f *fixture) open(t *testing.T, ocids ...int64) []int64 {
	t.Helper()
	ids := make([]int64, len(ocids))
	for i, ocid := range ocids {
		res, err := f.engine.Occurred(context.Background(), engine.Occurrence{
			OCID:        ocid,
			ObjectID:    ocid * 10,
			CounterID:   7,
			ObjectName:  "server",
			CounterName: "cpu",
			EvalTime:    f.clock.Now(),
		})
		require.NoError(t, err)
		require.Equal(t, engine.OutcomeOpened, res.Outcome)
		ids[i] = res.EventID
	}
	return ids
}

func (f *fixture) count(t *testing.T, table string) int {
	t.Helper()
	n, err := f.store.Queries().Count(context.Background(), table)
	require.NoError(t, err)
	return n
}

func (f *fixture) rawIntervals(t *testing.T, ocid int64) sql.NullString {
	t.Helper()
	var s sql.NullString
	err := f.store.DB().QueryRow(`SELECT intervals FROM disabledEvents WHERE OCID = ?`, ocid).Scan(&s)
	require.NoError(t, err)
	return s
}

func (f *fixture) disabledRow(t *testing.T, ocid int64) store.DisabledEvent {
	t.Helper()
	d, found, err := f.store.Queries().ReadDisabledEvent(context.Background(), ocid)
	require.NoError(t, err)
	require.True(t, found, "OCID %d should be disabled", ocid)
	return d
}
