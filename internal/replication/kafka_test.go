package replication

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbelov/alepiz-sub006/internal/store"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewKafkaSink(t *testing.T) {
	tests := []struct {
		name    string
		brokers string
		topic   string
		errMsg  string
	}{
		{name: "valid sink", brokers: "localhost:9092", topic: "alepiz.mutations"},
		{name: "multiple brokers", brokers: "localhost:9092, localhost:9093", topic: "alepiz.mutations"},
		{name: "empty brokers", brokers: "", topic: "alepiz.mutations", errMsg: "brokers cannot be empty"},
		{name: "empty topic", brokers: "localhost:9092", topic: "", errMsg: "topic cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, err := NewKafkaSink(tt.brokers, tt.topic)
			if tt.errMsg != "" {
				require.EqualError(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			// The writer connects lazily, so closing never dials.
			assert.NoError(t, sink.Close())
		})
	}
}

func TestBuildMessage(t *testing.T) {
	at := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	msg, err := buildMessage("batch-7", store.Mutation{
		Table:  "disabledEvents",
		Op:     store.OpUpsert,
		Key:    "42",
		Values: map[string]any{"intervals": "900-1000"},
		At:     at,
	})
	require.NoError(t, err)

	assert.Equal(t, "disabledEvents:42", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, []kafka.Header{
		{Key: "batch_id", Value: []byte("batch-7")},
		{Key: "op", Value: []byte("upsert")},
	}, msg.Headers)

	var decoded mutationMessage
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "batch-7", decoded.BatchID)
	assert.Equal(t, "disabledEvents", decoded.Table)
	assert.Equal(t, "900-1000", decoded.Values["intervals"])
}

func TestKafkaSink_Send(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, topic: "t"}

	err := sink.Send(context.Background(), store.Batch{ID: "b1", Mutations: []store.Mutation{
		{Table: "events", Op: store.OpInsert, Key: "1"},
		{Table: "comments", Op: store.OpDelete, Key: "3"},
	}})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "events:1", string(w.msgs[0].Key))
	assert.Equal(t, "comments:3", string(w.msgs[1].Key))

	require.NoError(t, sink.Send(context.Background(), store.Batch{ID: "empty"}))
	assert.Len(t, w.msgs, 2)

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSink_SendError(t *testing.T) {
	sink := &KafkaSink{writer: &fakeWriter{err: errors.New("leader not available")}, topic: "t"}
	err := sink.Send(context.Background(), batch("b1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "write batch b1 to topic t")
}
