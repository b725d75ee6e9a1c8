package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEvent_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Queries().ReadEvent(context.Background(), 404)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListEvents_Filters(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id1 := insertTestEvent(t, s, createTestEvent(1))
	insertTestEvent(t, s, createTestEvent(2))
	closed := createTestEvent(1)
	closed.EndTime = testTime.Add(time.Minute)
	insertTestEvent(t, s, closed)

	all, err := s.Queries().ListEvents(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byOCID, err := s.Queries().ListEvents(ctx, EventFilter{OCID: 1})
	require.NoError(t, err)
	assert.Len(t, byOCID, 2)

	open, err := s.Queries().ReadOpenEvents(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, id1, open[0].ID)

	limited, err := s.Queries().ListEvents(ctx, EventFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.Queries().ListEvents(ctx, EventFilter{OCID: 99})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestResolveEvents_Chunked(t *testing.T) {
	s := createTestStore(t, WithMaxParams(2))
	ctx := context.Background()

	var ids []int64
	for ocid := int64(1); ocid <= 5; ocid++ {
		ids = append(ids, insertTestEvent(t, s, createTestEvent(ocid)))
	}

	// Reverse order plus an unknown id across three chunks.
	query := []int64{ids[4], ids[3], 999, ids[2], ids[1], ids[0]}
	refs, err := s.Queries().ResolveEvents(ctx, query)
	require.NoError(t, err)
	require.Len(t, refs, 5)
	for i, ref := range refs {
		assert.Equal(t, ids[i], ref.ID)
		assert.Equal(t, int64(i+1), ref.OCID)
		assert.Equal(t, int64(7), ref.CounterID)
	}
}

func TestResolveEvents_Empty(t *testing.T) {
	s := createTestStore(t)

	refs, err := s.Queries().ResolveEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestCount_UnknownTable(t *testing.T) {
	s := createTestStore(t)

	_, err := s.Queries().Count(context.Background(), "sqlite_master")
	assert.Error(t, err)
}
