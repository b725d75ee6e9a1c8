package rules

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/asbelov/alepiz-sub006/internal/engine"
)

//go:embed schema.cue
var schemaCUE string

// Rule holds the defaults for one counter.
type Rule struct {
	CounterID     int64         `json:"counterID"`
	Importance    int           `json:"importance"`
	Description   string        `json:"description,omitempty"`
	Pronunciation string        `json:"pronunciation,omitempty"`
	EventDuration time.Duration `json:"eventDuration"`
	ProblemTask   int64         `json:"problemTask,omitempty"`
	SolvedTask    int64         `json:"solvedTask,omitempty"`
}

// Apply fills the fields of o that the evaluation left unset.
func (r Rule) Apply(o *engine.Occurrence) {
	if o.Importance == 0 {
		o.Importance = r.Importance
	}
	if o.Pronunciation == "" {
		o.Pronunciation = r.Pronunciation
	}
	if o.Duration == 0 {
		o.Duration = r.EventDuration
	}
	if o.ProblemTaskID == 0 {
		o.ProblemTaskID = r.ProblemTask
	}
	if o.SolvedTaskID == 0 {
		o.SolvedTaskID = r.SolvedTask
	}
}

// Set maps counter IDs to rules.
type Set map[int64]Rule

// Apply applies the rule of o's counter, if there is one.
func (s Set) Apply(o *engine.Occurrence) {
	if r, ok := s[o.CounterID]; ok {
		r.Apply(o)
	}
}

// ApplySolution fills the solved task of a solution for counterID.
func (s Set) ApplySolution(counterID int64, sol *engine.Solution) {
	if r, ok := s[counterID]; ok && sol.SolvedTaskID == 0 {
		sol.SolvedTaskID = r.SolvedTask
	}
}

// Sorted returns the rules ordered by counter ID.
func (s Set) Sorted() []Rule {
	out := make([]Rule, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CounterID < out[j].CounterID })
	return out
}

// Error is a rule loading error with its CUE source position.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// rawRule mirrors #Rule in the schema.
type rawRule struct {
	Importance    int    `json:"importance"`
	Description   string `json:"description"`
	Pronunciation string `json:"pronunciation"`
	EventDuration string `json:"eventDuration"`
	ProblemTask   int64  `json:"problemTask"`
	SolvedTask    int64  `json:"solvedTask"`
}

// Load reads every CUE file in dir. A missing directory is an error; a
// directory without CUE files yields an empty Set.
func Load(dir string) (Set, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules directory: not a directory: %s", dir)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, fmt.Errorf("scan rules directory: %w", err)
	}
	if len(files) == 0 {
		return Set{}, nil
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &Error{Field: "load", Message: "no CUE instances loaded"}
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}

	value := ctx.BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compile(ctx, value)
}

// Parse compiles rules from CUE source.
func Parse(src string) (Set, error) {
	ctx := cuecontext.New()
	value := ctx.CompileString(src, cue.Filename("rules.cue"))
	if err := value.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compile(ctx, value)
}

func compile(ctx *cue.Context, value cue.Value) (Set, error) {
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile rule schema: %w", err)
	}

	value = schema.Unify(value)
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	set := Set{}
	counters := value.LookupPath(cue.ParsePath("counter"))
	if !counters.Exists() {
		return set, nil
	}

	iter, err := counters.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		rule, err := compileRule(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		set[rule.CounterID] = rule
	}
	return set, nil
}

func compileRule(label string, v cue.Value) (Rule, error) {
	counterID, err := strconv.ParseInt(label, 10, 64)
	if err != nil {
		return Rule{}, &Error{Field: "counter", Message: fmt.Sprintf("invalid counter id %q", label), Pos: v.Pos()}
	}

	var raw rawRule
	if err := v.Decode(&raw); err != nil {
		return Rule{}, formatCUEError(err)
	}

	duration, err := time.ParseDuration(raw.EventDuration)
	if err != nil || duration < 0 {
		return Rule{}, &Error{
			Field:   fmt.Sprintf("counter.%s.eventDuration", label),
			Message: fmt.Sprintf("invalid duration %q", raw.EventDuration),
			Pos:     v.LookupPath(cue.ParsePath("eventDuration")).Pos(),
		}
	}

	return Rule{
		CounterID:     counterID,
		Importance:    raw.Importance,
		Description:   raw.Description,
		Pronunciation: raw.Pronunciation,
		EventDuration: duration,
		ProblemTask:   raw.ProblemTask,
		SolvedTask:    raw.SolvedTask,
	}, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return &Error{Field: "cue", Message: first.Error()}
}
