package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertEvent inserts an event row and returns its auto-assigned ID.
// An event with a zero EndTime is open.
func (q *Queries) InsertEvent(ctx context.Context, e Event) (int64, error) {
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO events
		(OCID, objectID, counterID, objectName, counterName, parentOCID, importance,
		 startTime, endTime, data, commentID, timestamp, pronunciation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.OCID,
		e.ObjectID,
		e.CounterID,
		e.ObjectName,
		e.CounterName,
		nullID(e.ParentOCID),
		e.Importance,
		e.StartTime.UnixMilli(),
		toMillis(e.EndTime),
		nullText(e.Data),
		nullID(e.CommentID),
		toMillis(e.Timestamp),
		nullText(e.Pronunciation),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event for OCID %d: %w", e.OCID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert event for OCID %d: last insert id: %w", e.OCID, err)
	}

	q.record("events", OpInsert, id, map[string]any{
		"OCID":       e.OCID,
		"objectID":   e.ObjectID,
		"counterID":  e.CounterID,
		"importance": e.Importance,
		"startTime":  e.StartTime.UnixMilli(),
		"endTime":    toMillis(e.EndTime).Int64,
		"data":       e.Data,
	})
	return id, nil
}

// CloseEvent sets endTime on an open event. When data is non-nil the buffered
// data, timestamp and pronunciation are written in the same statement.
// Returns false if the event did not exist or was already closed.
func (q *Queries) CloseEvent(ctx context.Context, id int64, endTime time.Time, data *EventData) (bool, error) {
	var (
		query string
		args  []any
	)
	if data != nil {
		query = `UPDATE events SET endTime = ?, data = ?, timestamp = ?, pronunciation = ?
			WHERE id = ? AND endTime IS NULL`
		args = []any{endTime.UnixMilli(), nullText(data.Data), toMillis(data.Timestamp), nullText(data.Pronunciation), id}
	} else {
		query = `UPDATE events SET endTime = ? WHERE id = ? AND endTime IS NULL`
		args = []any{endTime.UnixMilli(), id}
	}

	result, err := q.q.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("close event %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close event %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}

	q.record("events", OpUpdate, id, map[string]any{"endTime": endTime.UnixMilli()})
	return true, nil
}

// UpdateEventData writes the latest repeated observation of an open event.
// Returns false if the event is missing or already closed.
func (q *Queries) UpdateEventData(ctx context.Context, id int64, data EventData) (bool, error) {
	result, err := q.q.ExecContext(ctx, `
		UPDATE events SET data = ?, timestamp = ?, pronunciation = ?
		WHERE id = ? AND endTime IS NULL
	`, nullText(data.Data), toMillis(data.Timestamp), nullText(data.Pronunciation), id)
	if err != nil {
		return false, fmt.Errorf("update data of event %d: %w", id, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update data of event %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}

	q.record("events", OpUpdate, id, map[string]any{
		"data":      data.Data,
		"timestamp": toMillis(data.Timestamp).Int64,
	})
	return true, nil
}

// SetEventComment points an event at commentID and returns the comment it
// referenced before (0 if none).
func (q *Queries) SetEventComment(ctx context.Context, eventID, commentID int64) (int64, error) {
	var old sql.NullInt64
	err := q.q.QueryRowContext(ctx, `SELECT commentID FROM events WHERE id = ?`, eventID).Scan(&old)
	if err != nil {
		return 0, fmt.Errorf("read comment of event %d: %w", eventID, err)
	}

	_, err = q.q.ExecContext(ctx, `UPDATE events SET commentID = ? WHERE id = ?`, nullID(commentID), eventID)
	if err != nil {
		return 0, fmt.Errorf("set comment %d on event %d: %w", commentID, eventID, err)
	}

	q.record("events", OpUpdate, eventID, map[string]any{"commentID": commentID})
	return old.Int64, nil
}

// InsertComment inserts a comment and returns its ID.
func (q *Queries) InsertComment(ctx context.Context, c Comment) (int64, error) {
	result, err := q.q.ExecContext(ctx, `
		INSERT INTO comments (timestamp, user, subject, recipients, comment)
		VALUES (?, ?, ?, ?, ?)
	`, c.Timestamp.UnixMilli(), c.User, nullText(c.Subject), nullText(c.Recipients), nullText(c.Comment))
	if err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert comment: last insert id: %w", err)
	}

	q.record("comments", OpInsert, id, map[string]any{
		"user":    c.User,
		"subject": c.Subject,
		"comment": c.Comment,
	})
	return id, nil
}

// RetireComment deletes a comment if no event and no disabled event still
// references it. Returns true if the row was deleted.
func (q *Queries) RetireComment(ctx context.Context, commentID int64) (bool, error) {
	if commentID == 0 {
		return false, nil
	}

	var refs int
	err := q.q.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM events WHERE commentID = ?) +
		       (SELECT COUNT(*) FROM disabledEvents WHERE commentID = ?)
	`, commentID, commentID).Scan(&refs)
	if err != nil {
		return false, fmt.Errorf("count references to comment %d: %w", commentID, err)
	}
	if refs > 0 {
		return false, nil
	}

	if _, err := q.q.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, commentID); err != nil {
		return false, fmt.Errorf("delete comment %d: %w", commentID, err)
	}

	q.record("comments", OpDelete, commentID, nil)
	return true, nil
}

// UpsertDisabledEvent writes the suppression row for an OCID, replacing any
// previous row. Intervals are merged before they are persisted; an empty set
// is stored as NULL.
func (q *Queries) UpsertDisabledEvent(ctx context.Context, d DisabledEvent) error {
	intervals := marshalIntervals(d.Intervals)
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO disabledEvents (OCID, eventID, timestamp, user, commentID, disableUntil, intervals)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(OCID) DO UPDATE SET
			eventID = excluded.eventID,
			timestamp = excluded.timestamp,
			user = excluded.user,
			commentID = excluded.commentID,
			disableUntil = excluded.disableUntil,
			intervals = excluded.intervals
	`,
		d.OCID,
		d.EventID,
		d.Timestamp.UnixMilli(),
		d.User,
		nullID(d.CommentID),
		d.DisableUntil.UnixMilli(),
		intervals,
	)
	if err != nil {
		return fmt.Errorf("disable OCID %d: %w", d.OCID, err)
	}

	q.record("disabledEvents", OpUpsert, d.OCID, map[string]any{
		"eventID":      d.EventID,
		"user":         d.User,
		"disableUntil": d.DisableUntil.UnixMilli(),
		"intervals":    intervals.String,
	})
	return nil
}

// DeleteDisabledEvent removes the suppression row for an OCID.
// Returns false if there was none.
func (q *Queries) DeleteDisabledEvent(ctx context.Context, ocid int64) (bool, error) {
	result, err := q.q.ExecContext(ctx, `DELETE FROM disabledEvents WHERE OCID = ?`, ocid)
	if err != nil {
		return false, fmt.Errorf("enable OCID %d: %w", ocid, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("enable OCID %d: rows affected: %w", ocid, err)
	}
	if n == 0 {
		return false, nil
	}

	q.record("disabledEvents", OpDelete, ocid, nil)
	return true, nil
}

// DeleteExpiredDisabledEvents removes every suppression row whose
// disableUntil is not after now. Returns the number of rows removed.
func (q *Queries) DeleteExpiredDisabledEvents(ctx context.Context, now time.Time) (int64, error) {
	result, err := q.q.ExecContext(ctx, `DELETE FROM disabledEvents WHERE disableUntil <= ?`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired disabled events: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired disabled events: rows affected: %w", err)
	}
	if n > 0 {
		q.record("disabledEvents", OpDelete, 0, map[string]any{"disableUntilBefore": now.UnixMilli()})
	}
	return n, nil
}

// ReplaceHint deletes every hint stored under key and, unless h is empty,
// inserts h in its place. Returns the new hint ID, or 0 for a pure deletion.
func (q *Queries) ReplaceHint(ctx context.Context, key HintKey, h Hint) (int64, error) {
	column, target, err := hintColumn(key)
	if err != nil {
		return 0, err
	}

	if _, err := q.q.ExecContext(ctx, `DELETE FROM hints WHERE `+column+` = ?`, target); err != nil {
		return 0, fmt.Errorf("delete hints for %s %d: %w", column, target, err)
	}
	q.record("hints", OpDelete, target, map[string]any{"by": column})

	if h.Empty() {
		return 0, nil
	}

	result, err := q.q.ExecContext(ctx, `
		INSERT INTO hints (OCID, counterID, timestamp, user, subject, recipients, comment)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		nullID(key.OCID),
		nullID(key.CounterID),
		h.Timestamp.UnixMilli(),
		h.User,
		nullText(h.Subject),
		nullText(h.Recipients),
		h.Comment,
	)
	if err != nil {
		return 0, fmt.Errorf("insert hint for %s %d: %w", column, target, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert hint for %s %d: last insert id: %w", column, target, err)
	}

	q.record("hints", OpInsert, id, map[string]any{
		column:    target,
		"user":    h.User,
		"subject": h.Subject,
		"comment": h.Comment,
	})
	return id, nil
}

func hintColumn(key HintKey) (string, int64, error) {
	switch {
	case key.OCID != 0 && key.CounterID != 0:
		return "", 0, fmt.Errorf("hint key must set only one of OCID and counterID")
	case key.OCID != 0:
		return "OCID", key.OCID, nil
	case key.CounterID != 0:
		return "counterID", key.CounterID, nil
	default:
		return "", 0, fmt.Errorf("hint key must set OCID or counterID")
	}
}
