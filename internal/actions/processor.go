package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/asbelov/alepiz-sub006/internal/engine"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

// Summary reports what an action touched.
type Summary struct {
	Action    string `json:"action"`
	Events    int    `json:"events"`
	OCIDs     int    `json:"ocids"`
	CommentID int64  `json:"commentID,omitempty"`
	Hints     int    `json:"hints,omitempty"`
	Solved    int    `json:"solved,omitempty"`
}

// Processor executes bulk actions through the engine's serializer.
type Processor struct {
	engine *engine.Engine
}

// New creates a processor bound to e.
func New(e *engine.Engine) *Processor {
	return &Processor{engine: e}
}

// run resolves ids and runs fn in one engine transaction.
func (p *Processor) run(ctx context.Context, name string, ids []int64, fn func(ctx context.Context, tx *engine.Tx, refs []store.EventRef, s *Summary) error) (Summary, error) {
	s := Summary{Action: name}
	err := p.engine.Transact(ctx, name, func(ctx context.Context, tx *engine.Tx) error {
		s = Summary{Action: name}
		refs, err := resolve(ctx, tx, ids)
		if err != nil {
			return err
		}
		s.Events = len(refs)
		s.OCIDs = len(uniqueOCIDs(refs))
		return fn(ctx, tx, refs, &s)
	})
	if err != nil {
		return Summary{}, fmt.Errorf("%s: %w", name, err)
	}

	slog.Info("action applied",
		"action", name,
		"events", s.Events,
		"ocids", s.OCIDs,
	)
	return s, nil
}

// DisableEvents suppresses the OCIDs of the requested events until
// req.DisableUntil, optionally only inside time-of-day windows.
func (p *Processor) DisableEvents(ctx context.Context, req DisableRequest) (Summary, error) {
	if err := req.validate(p.engine.Now()); err != nil {
		return Summary{}, err
	}

	return p.run(ctx, "disableEvents", req.EventIDs, func(ctx context.Context, tx *engine.Tx, refs []store.EventRef, s *Summary) error {
		commentID, err := attachNote(ctx, tx, refs, req.User, req.Note, true)
		if err != nil {
			return err
		}
		s.CommentID = commentID
		return disable(ctx, tx, refs, req.User, commentID, DisableEdit{
			DisableUntil:     req.DisableUntil,
			Intervals:        req.Intervals,
			ReplaceIntervals: req.ReplaceIntervals,
		})
	})
}

// EnableEvents lifts suppression for the OCIDs of the requested events.
func (p *Processor) EnableEvents(ctx context.Context, req EnableRequest) (Summary, error) {
	if err := req.validate(); err != nil {
		return Summary{}, err
	}

	return p.run(ctx, "enableEvents", req.EventIDs, func(ctx context.Context, tx *engine.Tx, refs []store.EventRef, s *Summary) error {
		commentID, err := attachNote(ctx, tx, refs, req.User, req.Note, false)
		if err != nil {
			return err
		}
		s.CommentID = commentID
		return enable(ctx, tx, refs)
	})
}

// RemoveTimeIntervals removes windows from the disable intervals of the
// OCIDs of the requested events.
func (p *Processor) RemoveTimeIntervals(ctx context.Context, req RemoveIntervalsRequest) (Summary, error) {
	if err := req.validate(); err != nil {
		return Summary{}, err
	}

	return p.run(ctx, "removeTimeIntervals", req.EventIDs, func(ctx context.Context, tx *engine.Tx, refs []store.EventRef, _ *Summary) error {
		return removeIntervals(ctx, tx, refs, req.User, req.Intervals)
	})
}

// AddAsComment attaches one shared comment to the requested events.
func (p *Processor) AddAsComment(ctx context.Context, req CommentRequest) (Summary, error) {
	if err := req.validate(); err != nil {
		return Summary{}, err
	}

	return p.run(ctx, "addAsComment", req.EventIDs, func(ctx context.Context, tx *engine.Tx, refs []store.EventRef, s *Summary) error {
		commentID, err := attachNote(ctx, tx, refs, req.User, req.Note, true)
		s.CommentID = commentID
		return err
	})
}

// AddAsHint replaces the hint of every counter of the requested events.
func (p *Processor) AddAsHint(ctx context.Context, req HintRequest) (Summary, error) {
	if err := req.validate(); err != nil {
		return Summary{}, err
	}

	return p.run(ctx, "addAsHint", req.EventIDs, func(ctx context.Context, tx *engine.Tx, refs []store.EventRef, s *Summary) error {
		n, err := replaceHints(ctx, tx, refs, req.User, HintEdit{Note: req.Note})
		s.Hints = n
		return err
	})
}

// AddAsHintForObject replaces the hint of every OCID of the requested events.
func (p *Processor) AddAsHintForObject(ctx context.Context, req HintRequest) (Summary, error) {
	if err := req.validate(); err != nil {
		return Summary{}, err
	}

	return p.run(ctx, "addAsHintForObject", req.EventIDs, func(ctx context.Context, tx *engine.Tx, refs []store.EventRef, s *Summary) error {
		n, err := replaceHints(ctx, tx, refs, req.User, HintEdit{ForObject: true, Note: req.Note})
		s.Hints = n
		return err
	})
}

// SolveProblem force-closes the requested events.
func (p *Processor) SolveProblem(ctx context.Context, req SolveRequest) (Summary, error) {
	if err := req.validate(); err != nil {
		return Summary{}, err
	}

	return p.run(ctx, "solveProblem", req.EventIDs, func(ctx context.Context, tx *engine.Tx, refs []store.EventRef, s *Summary) error {
		n, err := solve(ctx, tx, refs, req.User)
		s.Solved = n
		return err
	})
}

// EventEditor applies hint, disable, enable, interval removal and solve
// edits to the requested events in one transaction.
func (p *Processor) EventEditor(ctx context.Context, req EditorRequest) (Summary, error) {
	if err := req.validate(p.engine.Now()); err != nil {
		return Summary{}, err
	}

	return p.run(ctx, "eventEditor", req.EventIDs, func(ctx context.Context, tx *engine.Tx, refs []store.EventRef, s *Summary) error {
		if req.Hint != nil {
			n, err := replaceHints(ctx, tx, refs, req.User, *req.Hint)
			if err != nil {
				return err
			}
			s.Hints = n
		}

		if req.Disable != nil || req.Enable || req.RemoveIntervals != nil || !req.Note.Empty() {
			commentID, err := attachNote(ctx, tx, refs, req.User, req.Note, req.Disable != nil)
			if err != nil {
				return err
			}
			s.CommentID = commentID
		}

		switch {
		case req.Disable != nil:
			if err := disable(ctx, tx, refs, req.User, s.CommentID, *req.Disable); err != nil {
				return err
			}
		case req.Enable:
			if err := enable(ctx, tx, refs); err != nil {
				return err
			}
		}

		if req.RemoveIntervals != nil {
			if err := removeIntervals(ctx, tx, refs, req.User, req.RemoveIntervals); err != nil {
				return err
			}
		}

		if req.Solve {
			n, err := solve(ctx, tx, refs, req.User)
			if err != nil {
				return err
			}
			s.Solved = n
		}
		return nil
	})
}
