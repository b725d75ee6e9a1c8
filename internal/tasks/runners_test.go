package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asbelov/alepiz-sub006/internal/engine"
	"github.com/asbelov/alepiz-sub006/internal/testutil"
)

var (
	_ engine.TaskRunner = (*RedisRunner)(nil)
	_ engine.TaskRunner = LogRunner{}
	_ engine.TaskRunner = Multi{}
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisRunner_RunTask(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	r := NewRedisRunner(client)

	vars := map[string]string{"EVENT_ID": "12", "OCID": "42", "ACTION": "problem"}
	require.NoError(t, r.RunTask(ctx, 10, vars))
	require.NoError(t, r.RunTask(ctx, 11, map[string]string{"EVENT_ID": "12", "ACTION": "solved"}))

	entries, err := client.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "10", entries[0].Values["task_id"])
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["variables"].(string)), &got))
	assert.Equal(t, vars, got)
	assert.Equal(t, "11", entries[1].Values["task_id"])
}

func TestRedisRunner_CustomStream(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()
	r := NewRedisRunner(client, WithStream("custom:tasks"), WithMaxLen(100))

	require.NoError(t, r.RunTask(ctx, 5, nil))

	n, err := client.XLen(ctx, "custom:tasks").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = client.XLen(ctx, DefaultStream).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisRunner_ServerDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	err := NewRedisRunner(client).RunTask(context.Background(), 10, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue task 10 on alepiz:tasks")
}

func TestMulti(t *testing.T) {
	ok := testutil.NewRecordingRunner(nil)
	failing := testutil.NewRecordingRunner(errors.New("boom"))
	m := Multi{failing, LogRunner{}, ok}

	err := m.RunTask(context.Background(), 3, map[string]string{"EVENT_ID": "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	require.Len(t, ok.Calls(), 1)
	require.Len(t, failing.Calls(), 1)
	assert.Equal(t, int64(3), ok.Calls()[0].TaskID)
}
