package replication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbelov/alepiz-sub006/internal/store"
)

func newMockSink(t *testing.T) (*PostgresSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresSinkFromDB(db), mock
}

func TestPostgresSink_Send(t *testing.T) {
	sink, mock := newMockSink(t)
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO event_mutations").
		WithArgs("b1", "events", "insert", "1", `{"OCID":42}`, at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO event_mutations").
		WithArgs("b1", "comments", "delete", "3", nil, at).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := sink.Send(context.Background(), store.Batch{ID: "b1", Mutations: []store.Mutation{
		{Table: "events", Op: store.OpInsert, Key: "1", Values: map[string]any{"OCID": 42}, At: at},
		{Table: "comments", Op: store.OpDelete, Key: "3", At: at},
	}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_SendRollsBackOnError(t *testing.T) {
	sink, mock := newMockSink(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO event_mutations").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := sink.Send(context.Background(), batch("b1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal insert mutation of events 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_EmptyBatch(t *testing.T) {
	sink, mock := newMockSink(t)
	require.NoError(t, sink.Send(context.Background(), store.Batch{ID: "empty"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Migrate(t *testing.T) {
	sink, mock := newMockSink(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS event_mutations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, sink.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
