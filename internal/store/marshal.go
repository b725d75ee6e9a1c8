package store

import (
	"database/sql"
	"time"

	"github.com/asbelov/alepiz-sub006/internal/interval"
)

// toMillis converts t to epoch milliseconds; the zero time maps to SQL NULL.
func toMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

// fromMillis converts nullable epoch milliseconds back to time.
func fromMillis(ms sql.NullInt64) time.Time {
	if !ms.Valid {
		return time.Time{}
	}
	return time.UnixMilli(ms.Int64)
}

// nullID maps 0 to SQL NULL.
func nullID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

// nullText maps "" to SQL NULL.
func nullText(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// marshalIntervals serializes merged intervals; none maps to NULL, never "".
func marshalIntervals(intervals []interval.Interval) sql.NullString {
	return nullText(interval.Format(interval.Merge(intervals)))
}

// unmarshalIntervals parses a nullable intervals column, ignoring damage.
func unmarshalIntervals(s sql.NullString) []interval.Interval {
	if !s.Valid {
		return nil
	}
	return interval.Merge(interval.Parse(s.String))
}
