package testutil

import (
	"context"
	"sort"
	"sync"
)

// TaskCall is one recorded task hook invocation.
type TaskCall struct {
	TaskID int64
	Vars   map[string]string
}

// RecordingRunner records task hook invocations instead of running them.
// Its RunTask method matches the engine's TaskRunner interface.
//
// Thread-safety: safe for concurrent use; hooks run in their own goroutines.
type RecordingRunner struct {
	mu    sync.Mutex
	calls []TaskCall
	err   error
}

// NewRecordingRunner creates a runner. A non-nil err is returned from every
// RunTask call after recording it.
func NewRecordingRunner(err error) *RecordingRunner {
	return &RecordingRunner{err: err}
}

// RunTask records the call.
func (r *RecordingRunner) RunTask(_ context.Context, taskID int64, vars map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, TaskCall{TaskID: taskID, Vars: vars})
	return r.err
}

// Calls returns the recorded calls ordered by task ID, then event ID.
func (r *RecordingRunner) Calls() []TaskCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	calls := make([]TaskCall, len(r.calls))
	copy(calls, r.calls)
	sort.SliceStable(calls, func(i, j int) bool {
		if calls[i].TaskID != calls[j].TaskID {
			return calls[i].TaskID < calls[j].TaskID
		}
		return calls[i].Vars["EVENT_ID"] < calls[j].Vars["EVENT_ID"]
	})
	return calls
}
