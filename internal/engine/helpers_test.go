package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/asbelov/alepiz-sub006/internal/store"
	"github.com/asbelov/alepiz-sub006/internal/testutil"
)

// midnight is the start of the test day; interval offsets are relative to it.
var midnight = time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

type testEngine struct {
	*Engine
	clock *testutil.FixedClock
	tasks *testutil.RecordingRunner
	store *store.Store
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// startEngine runs an engine over s until the test ends.
func startEngine(t *testing.T, s *store.Store, opts ...Option) *testEngine {
	t.Helper()

	te := &testEngine{
		clock: testutil.NewFixedClock(midnight),
		tasks: testutil.NewRecordingRunner(nil),
		store: s,
	}
	base := []Option{
		WithClock(te.clock),
		WithLocation(time.UTC),
		WithTaskRunner(te.tasks),
		WithBatchIDs(NewSequenceGenerator("test")),
		WithFlushInterval(0),
	}
	te.Engine = New(s, append(base, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- te.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return te
}

func occurrence(ocid int64, offset time.Duration) Occurrence {
	return Occurrence{
		OCID:        ocid,
		ObjectID:    ocid * 10,
		CounterID:   7,
		ObjectName:  "server-1",
		CounterName: "cpu",
		Importance:  2,
		Data:        "load is high",
		EvalTime:    midnight.Add(offset),
	}
}

func (te *testEngine) disable(t *testing.T, d store.DisabledEvent) {
	t.Helper()
	err := te.Transact(context.Background(), "disable", func(ctx context.Context, tx *Tx) error {
		return tx.Disable(ctx, d)
	})
	require.NoError(t, err)
}

func (te *testEngine) count(t *testing.T, table string) int {
	t.Helper()
	n, err := te.store.Queries().Count(context.Background(), table)
	require.NoError(t, err)
	return n
}

func (te *testEngine) openRows(t *testing.T) []store.Event {
	t.Helper()
	events, err := te.store.Queries().ReadOpenEvents(context.Background())
	require.NoError(t, err)
	return events
}
