package store

import (
	"time"

	"github.com/asbelov/alepiz-sub006/internal/interval"
)

// Event is one occurrence of a monitored condition on one object/counter pair.
// Zero ParentOCID and CommentID mean NULL. A zero EndTime means the event is open.
type Event struct {
	ID            int64     `json:"id"`
	OCID          int64     `json:"OCID"`
	ObjectID      int64     `json:"objectID"`
	CounterID     int64     `json:"counterID"`
	ObjectName    string    `json:"objectName"`
	CounterName   string    `json:"counterName"`
	ParentOCID    int64     `json:"parentOCID,omitempty"`
	Importance    int       `json:"importance"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime,omitempty"`
	Data          string    `json:"data,omitempty"`
	Pronunciation string    `json:"pronunciation,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"`
	CommentID     int64     `json:"commentID,omitempty"`
}

// Open reports whether the event has not been closed yet.
func (e Event) Open() bool {
	return e.EndTime.IsZero()
}

// EventData is the mutable part of an open event.
type EventData struct {
	Data          string
	Timestamp     time.Time
	Pronunciation string
}

// EventRef is the resolved identity of an event targeted by a bulk action.
type EventRef struct {
	ID        int64 `json:"id"`
	OCID      int64 `json:"OCID"`
	CounterID int64 `json:"counterID"`
}

// DisabledEvent suppresses new events for one OCID until DisableUntil.
// Nil Intervals means the OCID is disabled for the whole day.
type DisabledEvent struct {
	OCID         int64               `json:"OCID"`
	EventID      int64               `json:"eventID"`
	Timestamp    time.Time           `json:"timestamp"`
	User         string              `json:"user"`
	CommentID    int64               `json:"commentID,omitempty"`
	DisableUntil time.Time           `json:"disableUntil"`
	Intervals    []interval.Interval `json:"intervals,omitempty"`
}

// Expired reports whether the disable window has elapsed at now.
func (d DisabledEvent) Expired(now time.Time) bool {
	return !now.Before(d.DisableUntil)
}

// Comment is free text attached to one or more events.
type Comment struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	User       string    `json:"user"`
	Subject    string    `json:"subject,omitempty"`
	Recipients string    `json:"recipients,omitempty"`
	Comment    string    `json:"comment,omitempty"`
}

// HintKey selects a hint target: exactly one of OCID or CounterID is set.
type HintKey struct {
	OCID      int64
	CounterID int64
}

// Hint is guidance text keyed by OCID or by counterID.
type Hint struct {
	ID         int64     `json:"id"`
	OCID       int64     `json:"OCID,omitempty"`
	CounterID  int64     `json:"counterID,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	User       string    `json:"user"`
	Subject    string    `json:"subject,omitempty"`
	Recipients string    `json:"recipients,omitempty"`
	Comment    string    `json:"comment"`
}

// Empty reports whether the hint carries no text, which means "delete only".
func (h Hint) Empty() bool {
	return h.Subject == "" && h.Comment == ""
}

// EventFilter narrows ListEvents.
type EventFilter struct {
	OCID     int64
	OpenOnly bool
	Limit    int
}

// Mutation operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// Mutation describes one committed write, for replication to secondary stores.
type Mutation struct {
	Table  string         `json:"table"`
	Op     string         `json:"op"`
	Key    string         `json:"key"`
	Values map[string]any `json:"values,omitempty"`
	At     time.Time      `json:"at"`
}

// Batch is the set of mutations committed by one transaction.
type Batch struct {
	ID        string     `json:"batch_id"`
	Mutations []Mutation `json:"mutations"`
}

// Replicator receives committed batches. Implementations must not block the
// caller; the store calls Replicate on the writer's path.
type Replicator interface {
	Replicate(b Batch)
}
