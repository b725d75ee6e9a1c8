package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/asbelov/alepiz-sub006/internal/engine"
)

// Scenario is one scripted run of the engine.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Clock is the RFC 3339 start time of the fixed clock.
	Clock string `yaml:"clock"`

	// Timezone is the location of time-of-day intervals. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of occurred, solved, action, advance or flush.
type Step struct {
	Occurred *OccurredStep `yaml:"occurred,omitempty"`
	Solved   *SolvedStep   `yaml:"solved,omitempty"`

	// Action names a bulk action; Params are its JSON parameters.
	Action string         `yaml:"action,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`

	// Advance moves the clock forward and fires due auto-solve timers.
	Advance string `yaml:"advance,omitempty"`

	// Flush writes buffered repeats.
	Flush bool `yaml:"flush,omitempty"`

	// Expect is the expected outcome of an occurred/solved step, or
	// "ok"/"error" for an action.
	Expect string `yaml:"expect,omitempty"`
}

// OccurredStep is a "problem occurred" evaluation at the current clock time.
type OccurredStep struct {
	OCID        int64  `yaml:"ocid"`
	ObjectID    int64  `yaml:"object_id,omitempty"`
	CounterID   int64  `yaml:"counter_id,omitempty"`
	ObjectName  string `yaml:"object_name,omitempty"`
	CounterName string `yaml:"counter_name,omitempty"`
	Importance  int    `yaml:"importance,omitempty"`
	Data        string `yaml:"data,omitempty"`
	Duration    string `yaml:"duration,omitempty"`
	ProblemTask int64  `yaml:"problem_task,omitempty"`
	SolvedTask  int64  `yaml:"solved_task,omitempty"`
}

// SolvedStep is a "problem solved" evaluation at the current clock time.
type SolvedStep struct {
	OCID       int64 `yaml:"ocid"`
	SolvedTask int64 `yaml:"solved_task,omitempty"`
}

// Step kinds, as they appear in the trace.
const (
	KindOccurred = "occurred"
	KindSolved   = "solved"
	KindAction   = "action"
	KindAdvance  = "advance"
	KindFlush    = "flush"
)

// Action expectations.
const (
	ExpectOK    = "ok"
	ExpectError = "error"
)

// Kind returns the step kind, or "" if the step sets none or several.
func (s Step) Kind() string {
	var kinds []string
	if s.Occurred != nil {
		kinds = append(kinds, KindOccurred)
	}
	if s.Solved != nil {
		kinds = append(kinds, KindSolved)
	}
	if s.Action != "" {
		kinds = append(kinds, KindAction)
	}
	if s.Advance != "" {
		kinds = append(kinds, KindAdvance)
	}
	if s.Flush {
		kinds = append(kinds, KindFlush)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Assertion checks the final store state.
type Assertion struct {
	// Type is one of event_count, open_event, disabled, hint_count,
	// comment_count.
	Type string `yaml:"type"`

	// OCID selects the object-counter pair (open_event, disabled) or
	// narrows event_count.
	OCID int64 `yaml:"ocid,omitempty"`

	// Count is the expected row count.
	Count *int `yaml:"count,omitempty"`

	// Open is the expected open state of the OCID (open_event).
	Open *bool `yaml:"open,omitempty"`

	// Data is the expected data of the open event (open_event).
	Data *string `yaml:"data,omitempty"`

	// Disabled is the expected disable state (disabled). Defaults to true.
	Disabled *bool `yaml:"disabled,omitempty"`

	// Intervals is the expected persisted intervals string (disabled).
	// An empty string means the whole day.
	Intervals *string `yaml:"intervals,omitempty"`
}

// Assertion type constants.
const (
	AssertEventCount   = "event_count"
	AssertOpenEvent    = "open_event"
	AssertDisabled     = "disabled"
	AssertHintCount    = "hint_count"
	AssertCommentCount = "comment_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// start returns the parsed clock and location.
func (s *Scenario) start() (time.Time, *time.Location, error) {
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("timezone: %w", err)
	}
	start, err := time.Parse(time.RFC3339, s.Clock)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("clock: %w", err)
	}
	return start, loc, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if _, _, err := s.start(); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s Step) error {
	kind := s.Kind()
	switch kind {
	case "":
		return fmt.Errorf("steps[%d]: exactly one of occurred, solved, action, advance, flush is required", index)
	case KindOccurred:
		if s.Occurred.OCID <= 0 {
			return fmt.Errorf("steps[%d]: occurred.ocid must be positive", index)
		}
		if s.Occurred.Duration != "" {
			if _, err := time.ParseDuration(s.Occurred.Duration); err != nil {
				return fmt.Errorf("steps[%d]: occurred.duration: %w", index, err)
			}
		}
	case KindSolved:
		if s.Solved.OCID <= 0 {
			return fmt.Errorf("steps[%d]: solved.ocid must be positive", index)
		}
	case KindAdvance:
		d, err := time.ParseDuration(s.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	}

	if s.Params != nil && kind != KindAction {
		return fmt.Errorf("steps[%d]: params are only allowed on action steps", index)
	}

	if s.Expect == "" {
		return nil
	}
	switch kind {
	case KindOccurred, KindSolved:
		switch engine.Outcome(s.Expect) {
		case engine.OutcomeOpened, engine.OutcomeRepeated, engine.OutcomeSuppressed,
			engine.OutcomeClosed, engine.OutcomeNoOpenEvent:
		default:
			if s.Expect != ExpectError {
				return fmt.Errorf("steps[%d]: unknown outcome %q", index, s.Expect)
			}
		}
	case KindAction:
		if s.Expect != ExpectOK && s.Expect != ExpectError {
			return fmt.Errorf("steps[%d]: action expect must be %q or %q", index, ExpectOK, ExpectError)
		}
	default:
		return fmt.Errorf("steps[%d]: expect is not allowed on %s steps", index, kind)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertEventCount, AssertHintCount, AssertCommentCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertOpenEvent:
		if a.OCID <= 0 {
			return fmt.Errorf("assertions[%d]: ocid is required for open_event", index)
		}
		if a.Open == nil {
			return fmt.Errorf("assertions[%d]: open is required for open_event", index)
		}
	case AssertDisabled:
		if a.OCID <= 0 {
			return fmt.Errorf("assertions[%d]: ocid is required for disabled", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
