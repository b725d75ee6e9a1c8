package actions

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/asbelov/alepiz-sub006/internal/interval"
)

// MinDisableAhead is how far in the future disableUntil must be.
const MinDisableAhead = 2 * time.Minute

// Note is the comment attached to the events touched by an action.
type Note struct {
	Subject    string `json:"subject,omitempty"`
	Recipients string `json:"recipients,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// Empty reports whether the note carries no text.
func (n Note) Empty() bool {
	return n.Subject == "" && n.Comment == ""
}

func (n Note) normalized() Note {
	return Note{
		Subject:    normalizeText(n.Subject),
		Recipients: normalizeText(n.Recipients),
		Comment:    normalizeText(n.Comment),
	}
}

// DisableRequest suppresses new events for the OCIDs of the given events.
type DisableRequest struct {
	EventIDs         []int64             `json:"eventIDs"`
	User             string              `json:"user"`
	DisableUntil     time.Time           `json:"disableUntil"`
	Intervals        []interval.Interval `json:"intervals,omitempty"`
	ReplaceIntervals bool                `json:"replaceIntervals,omitempty"`
	Note
}

// EnableRequest lifts suppression for the OCIDs of the given events.
// The note is optional.
type EnableRequest struct {
	EventIDs []int64 `json:"eventIDs"`
	User     string  `json:"user"`
	Note
}

// RemoveIntervalsRequest removes "from-to" windows from the disable
// intervals of the OCIDs of the given events.
type RemoveIntervalsRequest struct {
	EventIDs  []int64  `json:"eventIDs"`
	User      string   `json:"user"`
	Intervals []string `json:"intervals"`
}

// CommentRequest attaches one shared comment to the given events.
type CommentRequest struct {
	EventIDs []int64 `json:"eventIDs"`
	User     string  `json:"user"`
	Note
}

// HintRequest replaces the hint of the given events' counters (AddAsHint)
// or OCIDs (AddAsHintForObject). An empty note deletes the hint.
type HintRequest struct {
	EventIDs []int64 `json:"eventIDs"`
	User     string  `json:"user"`
	Note
}

// SolveRequest force-closes the given events.
type SolveRequest struct {
	EventIDs []int64 `json:"eventIDs"`
	User     string  `json:"user"`
}

// DisableEdit is the disable part of an EditorRequest.
type DisableEdit struct {
	DisableUntil     time.Time           `json:"disableUntil"`
	Intervals        []interval.Interval `json:"intervals,omitempty"`
	ReplaceIntervals bool                `json:"replaceIntervals,omitempty"`
}

// HintEdit is the hint part of an EditorRequest.
type HintEdit struct {
	// ForObject keys the hint by OCID instead of counterID.
	ForObject bool `json:"forObject,omitempty"`
	Note
}

// EditorRequest combines hint editing with disable state editing for a set
// of events. All parts run in one transaction.
type EditorRequest struct {
	EventIDs        []int64      `json:"eventIDs"`
	User            string       `json:"user"`
	Hint            *HintEdit    `json:"hint,omitempty"`
	Disable         *DisableEdit `json:"disable,omitempty"`
	Enable          bool         `json:"enable,omitempty"`
	RemoveIntervals []string     `json:"removeIntervals,omitempty"`
	Solve           bool         `json:"solve,omitempty"`
	Note
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// validateTargets checks the fields every request shares.
func validateTargets(ids []int64, user string) ValidationErrors {
	var errs ValidationErrors
	if len(ids) == 0 {
		errs = append(errs, ValidationError{Field: "eventIDs", Message: "at least one event is required"})
	}
	for i, id := range ids {
		if id <= 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("eventIDs[%d]", i),
				Message: fmt.Sprintf("invalid event id %d", id),
			})
		}
	}
	if user == "" {
		errs = append(errs, ValidationError{Field: "user", Message: "user is required"})
	}
	return errs
}

func validateDisable(until time.Time, intervals []interval.Interval, now time.Time) ValidationErrors {
	var errs ValidationErrors
	if earliest := now.Add(MinDisableAhead); until.Before(earliest) {
		errs = append(errs, ValidationError{
			Field:   "disableUntil",
			Message: fmt.Sprintf("must be at least %s in the future (not before %s)", MinDisableAhead, earliest.Format(time.RFC3339)),
		})
	}
	if err := interval.Validate(intervals); err != nil {
		errs = append(errs, ValidationError{Field: "intervals", Message: err.Error()})
	}
	return errs
}

func validateRemove(field string, intervals []string) ValidationErrors {
	if len(intervals) == 0 {
		return ValidationErrors{{Field: field, Message: "at least one interval is required"}}
	}
	return nil
}

func (r *DisableRequest) validate(now time.Time) error {
	r.User = normalizeText(r.User)
	r.Note = r.Note.normalized()
	errs := validateTargets(r.EventIDs, r.User)
	errs = append(errs, validateDisable(r.DisableUntil, r.Intervals, now)...)
	return errs.asError()
}

func (r *EnableRequest) validate() error {
	r.User = normalizeText(r.User)
	r.Note = r.Note.normalized()
	return validateTargets(r.EventIDs, r.User).asError()
}

func (r *RemoveIntervalsRequest) validate() error {
	r.User = normalizeText(r.User)
	errs := validateTargets(r.EventIDs, r.User)
	errs = append(errs, validateRemove("intervals", r.Intervals)...)
	return errs.asError()
}

func (r *CommentRequest) validate() error {
	r.User = normalizeText(r.User)
	r.Note = r.Note.normalized()
	errs := validateTargets(r.EventIDs, r.User)
	if r.Note.Empty() {
		errs = append(errs, ValidationError{Field: "comment", Message: "subject or comment is required"})
	}
	return errs.asError()
}

func (r *HintRequest) validate() error {
	r.User = normalizeText(r.User)
	r.Note = r.Note.normalized()
	return validateTargets(r.EventIDs, r.User).asError()
}

func (r *SolveRequest) validate() error {
	r.User = normalizeText(r.User)
	return validateTargets(r.EventIDs, r.User).asError()
}

func (r *EditorRequest) validate(now time.Time) error {
	r.User = normalizeText(r.User)
	r.Note = r.Note.normalized()
	errs := validateTargets(r.EventIDs, r.User)

	if r.Hint != nil {
		r.Hint.Note = r.Hint.Note.normalized()
	}
	if r.Disable != nil {
		errs = append(errs, validateDisable(r.Disable.DisableUntil, r.Disable.Intervals, now)...)
		if r.Enable {
			errs = append(errs, ValidationError{Field: "enable", Message: "cannot disable and enable at once"})
		}
	}
	if r.RemoveIntervals != nil {
		errs = append(errs, validateRemove("removeIntervals", r.RemoveIntervals)...)
		if r.Enable {
			errs = append(errs, ValidationError{Field: "removeIntervals", Message: "cannot edit intervals of enabled events"})
		}
	}
	if r.Hint == nil && r.Disable == nil && !r.Enable && r.RemoveIntervals == nil && !r.Solve {
		errs = append(errs, ValidationError{Field: "request", Message: "nothing to edit"})
	}
	return errs.asError()
}
