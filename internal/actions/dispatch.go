package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Names returns the action names accepted by Dispatch, sorted.
func Names() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type handler func(ctx context.Context, p *Processor, params json.RawMessage) (Summary, error)

var handlers = map[string]handler{
	"disableEvents": func(ctx context.Context, p *Processor, params json.RawMessage) (Summary, error) {
		var req DisableRequest
		if err := decodeParams(params, &req); err != nil {
			return Summary{}, err
		}
		return p.DisableEvents(ctx, req)
	},
	"enableEvents": func(ctx context.Context, p *Processor, params json.RawMessage) (Summary, error) {
		var req EnableRequest
		if err := decodeParams(params, &req); err != nil {
			return Summary{}, err
		}
		return p.EnableEvents(ctx, req)
	},
	"removeTimeIntervals": func(ctx context.Context, p *Processor, params json.RawMessage) (Summary, error) {
		var req RemoveIntervalsRequest
		if err := decodeParams(params, &req); err != nil {
			return Summary{}, err
		}
		return p.RemoveTimeIntervals(ctx, req)
	},
	"addAsComment": func(ctx context.Context, p *Processor, params json.RawMessage) (Summary, error) {
		var req CommentRequest
		if err := decodeParams(params, &req); err != nil {
			return Summary{}, err
		}
		return p.AddAsComment(ctx, req)
	},
	"addAsHint": func(ctx context.Context, p *Processor, params json.RawMessage) (Summary, error) {
		var req HintRequest
		if err := decodeParams(params, &req); err != nil {
			return Summary{}, err
		}
		return p.AddAsHint(ctx, req)
	},
	"addAsHintForObject": func(ctx context.Context, p *Processor, params json.RawMessage) (Summary, error) {
		var req HintRequest
		if err := decodeParams(params, &req); err != nil {
			return Summary{}, err
		}
		return p.AddAsHintForObject(ctx, req)
	},
	"solveProblem": func(ctx context.Context, p *Processor, params json.RawMessage) (Summary, error) {
		var req SolveRequest
		if err := decodeParams(params, &req); err != nil {
			return Summary{}, err
		}
		return p.SolveProblem(ctx, req)
	},
	"eventEditor": func(ctx context.Context, p *Processor, params json.RawMessage) (Summary, error) {
		var req EditorRequest
		if err := decodeParams(params, &req); err != nil {
			return Summary{}, err
		}
		return p.EventEditor(ctx, req)
	},
}

// Dispatch runs the named action with JSON parameters.
func (p *Processor) Dispatch(ctx context.Context, name string, params json.RawMessage) (Summary, error) {
	h, ok := handlers[name]
	if !ok {
		return Summary{}, ValidationErrors{{
			Field:   "action",
			Message: fmt.Sprintf("unknown action %q", name),
		}}
	}
	return h(ctx, p, params)
}

// decodeParams decodes strictly: unknown fields are a validation error.
func decodeParams(params json.RawMessage, v any) error {
	if len(bytes.TrimSpace(params)) == 0 {
		return ValidationErrors{{Field: "params", Message: "parameters are required"}}
	}

	dec := json.NewDecoder(bytes.NewReader(params))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return ValidationErrors{{Field: "params", Message: err.Error()}}
	}
	return nil
}
