package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new file-backed store in a temp dir for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testTime is a fixed instant used by store tests.
var testTime = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// createTestEvent returns an open event with minimal required fields.
func createTestEvent(ocid int64) Event {
	return Event{
		OCID:        ocid,
		ObjectID:    ocid * 10,
		CounterID:   7,
		ObjectName:  "server-1",
		CounterName: "cpu",
		Importance:  2,
		StartTime:   testTime,
		Data:        "load is high",
		Timestamp:   testTime,
	}
}

// insertTestEvent writes an event inside its own transaction.
func insertTestEvent(t *testing.T, s *Store, e Event) int64 {
	t.Helper()
	var id int64
	err := s.WithTx(context.Background(), "test", func(q *Queries) error {
		var err error
		id, err = q.InsertEvent(context.Background(), e)
		return err
	})
	if err != nil {
		t.Fatalf("InsertEvent() failed: %v", err)
	}
	return id
}

// captureReplicator records replicated batches.
type captureReplicator struct {
	batches []Batch
}

func (c *captureReplicator) Replicate(b Batch) {
	c.batches = append(c.batches, b)
}
