package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream task requests are appended to.
const DefaultStream = "alepiz:tasks"

// Runner is the engine's task hook.
type Runner interface {
	RunTask(ctx context.Context, taskID int64, vars map[string]string) error
}

// RedisRunner appends task requests to a Redis stream.
type RedisRunner struct {
	client *redis.Client
	stream string
	maxLen int64
}

// RedisOption configures a RedisRunner.
type RedisOption func(*RedisRunner)

// WithStream sets the stream key.
func WithStream(stream string) RedisOption {
	return func(r *RedisRunner) {
		if stream != "" {
			r.stream = stream
		}
	}
}

// WithMaxLen caps the stream length (approximate trimming). Zero keeps all.
func WithMaxLen(n int64) RedisOption {
	return func(r *RedisRunner) {
		r.maxLen = n
	}
}

// NewRedisRunner creates a runner on an existing client.
func NewRedisRunner(client *redis.Client, opts ...RedisOption) *RedisRunner {
	r := &RedisRunner{client: client, stream: DefaultStream}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunTask XADDs {task_id, variables} to the stream.
func (r *RedisRunner) RunTask(ctx context.Context, taskID int64, vars map[string]string) error {
	payload, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("marshal variables of task %d: %w", taskID, err)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"task_id":   strconv.FormatInt(taskID, 10),
			"variables": string(payload),
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	id, err := r.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("queue task %d on %s: %w", taskID, r.stream, err)
	}

	slog.Debug("task queued", "task_id", taskID, "stream", r.stream, "entry", id, "event_id", vars["EVENT_ID"])
	return nil
}

// LogRunner only logs task requests. It is the runner used when no task
// stream is configured.
type LogRunner struct{}

// RunTask logs the request.
func (LogRunner) RunTask(ctx context.Context, taskID int64, vars map[string]string) error {
	slog.Info("task requested",
		"task_id", taskID,
		"event_id", vars["EVENT_ID"],
		"ocid", vars["OCID"],
		"action", vars["ACTION"],
	)
	return nil
}

// Multi runs a task on every runner and joins their errors.
type Multi []Runner

// RunTask calls each runner in order; a failing runner does not stop the rest.
func (m Multi) RunTask(ctx context.Context, taskID int64, vars map[string]string) error {
	var errs []error
	for _, r := range m {
		if err := r.RunTask(ctx, taskID, vars); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
