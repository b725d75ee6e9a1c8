package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

const eventColumns = `id, OCID, objectID, counterID, objectName, counterName, parentOCID, importance,
	startTime, endTime, data, commentID, timestamp, pronunciation`

// ReadEvent retrieves a single event by ID.
// Returns sql.ErrNoRows if not found.
func (q *Queries) ReadEvent(ctx context.Context, id int64) (Event, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

// ReadOpenEvents returns every event with endTime IS NULL, ordered by id.
// Used to rebuild the open-event cache at startup.
func (q *Queries) ReadOpenEvents(ctx context.Context) ([]Event, error) {
	return q.ListEvents(ctx, EventFilter{OpenOnly: true})
}

// ListEvents returns events matching the filter ordered by id ascending.
// Returns an empty slice (not nil) if nothing matches.
func (q *Queries) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	var (
		where []string
		args  []any
	)
	if f.OCID != 0 {
		where = append(where, "OCID = ?")
		args = append(args, f.OCID)
	}
	if f.OpenOnly {
		where = append(where, "endTime IS NULL")
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ResolveEvents maps event IDs to {id, OCID, counterID} triples. IDs are
// queried in chunks so no statement binds more than the store's parameter
// limit. Unknown IDs are skipped. Results are ordered by id.
func (q *Queries) ResolveEvents(ctx context.Context, ids []int64) ([]EventRef, error) {
	chunk := q.maxParams
	if chunk <= 0 {
		chunk = DefaultMaxParams
	}

	refs := []EventRef{}
	for start := 0; start < len(ids); start += chunk {
		end := start + chunk
		if end > len(ids) {
			end = len(ids)
		}
		part, err := q.resolveChunk(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		refs = append(refs, part...)
	}

	sortRefs(refs)
	return refs, nil
}

func (q *Queries) resolveChunk(ctx context.Context, ids []int64) ([]EventRef, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := q.q.QueryContext(ctx,
		`SELECT id, OCID, counterID FROM events WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("resolve events: %w", err)
	}
	defer rows.Close()

	var refs []EventRef
	for rows.Next() {
		var r EventRef
		if err := rows.Scan(&r.ID, &r.OCID, &r.CounterID); err != nil {
			return nil, fmt.Errorf("scan event ref: %w", err)
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event refs: %w", err)
	}
	return refs, nil
}

func sortRefs(refs []EventRef) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
}

// ReadDisabledEvents returns every suppression row ordered by OCID.
func (q *Queries) ReadDisabledEvents(ctx context.Context) ([]DisabledEvent, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT OCID, eventID, timestamp, user, commentID, disableUntil, intervals
		FROM disabledEvents
		ORDER BY OCID ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query disabled events: %w", err)
	}
	defer rows.Close()

	disabled := []DisabledEvent{}
	for rows.Next() {
		d, err := scanDisabledEvent(rows)
		if err != nil {
			return nil, err
		}
		disabled = append(disabled, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate disabled events: %w", err)
	}
	return disabled, nil
}

// ReadDisabledEvent returns the suppression row for an OCID.
// The boolean is false if the OCID is not disabled.
func (q *Queries) ReadDisabledEvent(ctx context.Context, ocid int64) (DisabledEvent, bool, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT OCID, eventID, timestamp, user, commentID, disableUntil, intervals
		FROM disabledEvents
		WHERE OCID = ?
	`, ocid)

	d, err := scanDisabledEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return DisabledEvent{}, false, nil
	}
	if err != nil {
		return DisabledEvent{}, false, err
	}
	return d, true, nil
}

// ReadComment retrieves a comment by ID.
// Returns sql.ErrNoRows if not found.
func (q *Queries) ReadComment(ctx context.Context, id int64) (Comment, error) {
	var (
		c                            Comment
		ts                           int64
		subject, recipients, comment sql.NullString
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT id, timestamp, user, subject, recipients, comment FROM comments WHERE id = ?
	`, id).Scan(&c.ID, &ts, &c.User, &subject, &recipients, &comment)
	if err != nil {
		return Comment{}, fmt.Errorf("read comment %d: %w", id, err)
	}
	c.Timestamp = fromMillis(sql.NullInt64{Int64: ts, Valid: true})
	c.Subject = subject.String
	c.Recipients = recipients.String
	c.Comment = comment.String
	return c, nil
}

// ReadHints returns the hints stored under key ordered by id.
func (q *Queries) ReadHints(ctx context.Context, key HintKey) ([]Hint, error) {
	column, target, err := hintColumn(key)
	if err != nil {
		return nil, err
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT id, OCID, counterID, timestamp, user, subject, recipients, comment
		FROM hints WHERE `+column+` = ? ORDER BY id ASC
	`, target)
	if err != nil {
		return nil, fmt.Errorf("query hints: %w", err)
	}
	defer rows.Close()

	hints := []Hint{}
	for rows.Next() {
		var (
			h                   Hint
			ocid, counterID     sql.NullInt64
			ts                  int64
			subject, recipients sql.NullString
		)
		if err := rows.Scan(&h.ID, &ocid, &counterID, &ts, &h.User, &subject, &recipients, &h.Comment); err != nil {
			return nil, fmt.Errorf("scan hint: %w", err)
		}
		h.OCID = ocid.Int64
		h.CounterID = counterID.Int64
		h.Timestamp = fromMillis(sql.NullInt64{Int64: ts, Valid: true})
		h.Subject = subject.String
		h.Recipients = recipients.String
		hints = append(hints, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hints: %w", err)
	}
	return hints, nil
}

// Count returns the number of rows in one of the store's tables.
func (q *Queries) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case "events", "comments", "hints", "disabledEvents":
	default:
		return 0, fmt.Errorf("count: unknown table %q", table)
	}

	var n int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		e                   Event
		parent, commentID   sql.NullInt64
		start               int64
		end, ts             sql.NullInt64
		data, pronunciation sql.NullString
	)
	err := row.Scan(
		&e.ID, &e.OCID, &e.ObjectID, &e.CounterID, &e.ObjectName, &e.CounterName,
		&parent, &e.Importance, &start, &end, &data, &commentID, &ts, &pronunciation,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Event{}, err
		}
		return Event{}, fmt.Errorf("scan event: %w", err)
	}

	e.ParentOCID = parent.Int64
	e.StartTime = fromMillis(sql.NullInt64{Int64: start, Valid: true})
	e.EndTime = fromMillis(end)
	e.Data = data.String
	e.CommentID = commentID.Int64
	e.Timestamp = fromMillis(ts)
	e.Pronunciation = pronunciation.String
	return e, nil
}

func scanDisabledEvent(row rowScanner) (DisabledEvent, error) {
	var (
		d               DisabledEvent
		ts, until       int64
		commentID       sql.NullInt64
		intervalsColumn sql.NullString
	)
	err := row.Scan(&d.OCID, &d.EventID, &ts, &d.User, &commentID, &until, &intervalsColumn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DisabledEvent{}, err
		}
		return DisabledEvent{}, fmt.Errorf("scan disabled event: %w", err)
	}

	d.Timestamp = fromMillis(sql.NullInt64{Int64: ts, Valid: true})
	d.CommentID = commentID.Int64
	d.DisableUntil = fromMillis(sql.NullInt64{Int64: until, Valid: true})
	d.Intervals = unmarshalIntervals(intervalsColumn)
	return d, nil
}
