package harness

import "github.com/asbelov/alepiz-sub006/internal/actions"

// TraceEvent records what one step did.
type TraceEvent struct {
	Step     int    `json:"step"`
	Kind     string `json:"kind"`
	OffsetMS int64  `json:"offset_ms"` // clock time relative to the scenario start
	OCID     int64  `json:"ocid,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	EventID  int64  `json:"event_id,omitempty"`
	Action   string `json:"action,omitempty"`

	Summary *actions.Summary `json:"summary,omitempty"`
	Flushed *int             `json:"flushed,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// TaskTrace is one task hook invocation.
type TaskTrace struct {
	TaskID  int64  `json:"task_id"`
	EventID string `json:"event_id"`
	Action  string `json:"action"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace has one entry per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Tasks are the task hooks started, ordered by task ID then event ID.
	Tasks []TaskTrace `json:"tasks"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Tasks:  []TaskTrace{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
