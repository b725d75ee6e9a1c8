package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/asbelov/alepiz-sub006/internal/interval"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the store.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Store == nil {
			err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
		} else {
			err = evaluate(actx.Ctx, actx.Store.Queries(), assertion)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func evaluate(ctx context.Context, q *store.Queries, a Assertion) error {
	switch a.Type {
	case AssertEventCount:
		return assertEventCount(ctx, q, a)
	case AssertOpenEvent:
		return assertOpenEvent(ctx, q, a)
	case AssertDisabled:
		return assertDisabled(ctx, q, a)
	case AssertHintCount:
		return assertTableCount(ctx, q, a, "hints")
	case AssertCommentCount:
		return assertTableCount(ctx, q, a, "comments")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertEventCount counts all events, or those of one OCID.
func assertEventCount(ctx context.Context, q *store.Queries, a Assertion) error {
	events, err := q.ListEvents(ctx, store.EventFilter{OCID: a.OCID})
	if err != nil {
		return fmt.Errorf("event_count: %w", err)
	}
	if len(events) != *a.Count {
		expected := fmt.Sprintf("%d events", *a.Count)
		if a.OCID != 0 {
			expected += fmt.Sprintf(" for OCID %d", a.OCID)
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: expected,
			Actual:   fmt.Sprintf("%d events", len(events)),
		}
	}
	return nil
}

// assertOpenEvent checks whether the OCID has an open event and, optionally,
// that event's data.
func assertOpenEvent(ctx context.Context, q *store.Queries, a Assertion) error {
	open, err := q.ListEvents(ctx, store.EventFilter{OCID: a.OCID, OpenOnly: true})
	if err != nil {
		return fmt.Errorf("open_event: %w", err)
	}

	if len(open) > 1 {
		return &AssertionError{
			Type:     AssertOpenEvent,
			Expected: fmt.Sprintf("at most one open event for OCID %d", a.OCID),
			Actual:   fmt.Sprintf("%d open events", len(open)),
		}
	}
	if (len(open) == 1) != *a.Open {
		return &AssertionError{
			Type:     AssertOpenEvent,
			Expected: fmt.Sprintf("OCID %d open=%t", a.OCID, *a.Open),
			Actual:   fmt.Sprintf("open=%t", len(open) == 1),
		}
	}
	if a.Data != nil && len(open) == 1 && open[0].Data != *a.Data {
		return &AssertionError{
			Type:     AssertOpenEvent,
			Expected: fmt.Sprintf("data %q", *a.Data),
			Actual:   fmt.Sprintf("data %q", open[0].Data),
		}
	}
	return nil
}

// assertDisabled checks the suppression row of an OCID.
func assertDisabled(ctx context.Context, q *store.Queries, a Assertion) error {
	d, found, err := q.ReadDisabledEvent(ctx, a.OCID)
	if err != nil {
		return fmt.Errorf("disabled: %w", err)
	}

	want := a.Disabled == nil || *a.Disabled
	if found != want {
		return &AssertionError{
			Type:     AssertDisabled,
			Expected: fmt.Sprintf("OCID %d disabled=%t", a.OCID, want),
			Actual:   fmt.Sprintf("disabled=%t", found),
		}
	}
	if found && a.Intervals != nil {
		if got := interval.Format(d.Intervals); got != *a.Intervals {
			return &AssertionError{
				Type:     AssertDisabled,
				Expected: fmt.Sprintf("intervals %s", describeIntervals(*a.Intervals)),
				Actual:   fmt.Sprintf("intervals %s", describeIntervals(got)),
			}
		}
	}
	return nil
}

func assertTableCount(ctx context.Context, q *store.Queries, a Assertion, table string) error {
	n, err := q.Count(ctx, table)
	if err != nil {
		return fmt.Errorf("%s: %w", a.Type, err)
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d rows in %s", *a.Count, table),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

func describeIntervals(s string) string {
	if s == "" {
		return "(whole day)"
	}
	return fmt.Sprintf("%q", s)
}
