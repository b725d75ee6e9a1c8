package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/asbelov/alepiz-sub006/internal/store"
)

// Repeat is the latest observation of an already-open event, waiting to be
// flushed to the store.
type Repeat struct {
	Data          string
	Timestamp     time.Time
	Pronunciation string
}

// EventData converts the repeat into the store's representation.
func (r Repeat) EventData() store.EventData {
	return store.EventData{
		Data:          r.Data,
		Timestamp:     r.Timestamp,
		Pronunciation: r.Pronunciation,
	}
}

// PendingRepeat is a repeat removed from the buffer for flushing.
type PendingRepeat struct {
	EventID int64
	Repeat
}

// Cache is the owned state object of one engine instance.
type Cache struct {
	mu       sync.Mutex
	open     map[int64]int64
	disabled map[int64]store.DisabledEvent
	repeats  map[int64]Repeat
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{
		open:     make(map[int64]int64),
		disabled: make(map[int64]store.DisabledEvent),
		repeats:  make(map[int64]Repeat),
	}
}

// Load replaces the open and disabled projections with rows read from the
// store. Pending repeats are kept. If the store holds more than one open
// event for an OCID the newest one wins and the anomaly is logged.
func (c *Cache) Load(open []store.Event, disabled []store.DisabledEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.open = make(map[int64]int64, len(open))
	for _, e := range open {
		if prev, ok := c.open[e.OCID]; ok {
			slog.Error("more than one open event for OCID",
				"ocid", e.OCID,
				"event_id", prev,
				"duplicate_event_id", e.ID,
			)
			if prev > e.ID {
				continue
			}
		}
		c.open[e.OCID] = e.ID
	}

	c.disabled = make(map[int64]store.DisabledEvent, len(disabled))
	for _, d := range disabled {
		c.disabled[d.OCID] = d
	}
}

// OpenEvent returns the ID of the open event for ocid.
func (c *Cache) OpenEvent(ocid int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.open[ocid]
	return id, ok
}

// SetOpen records eventID as the open event of ocid.
func (c *Cache) SetOpen(ocid, eventID int64, j *Journal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, had := c.open[ocid]
	c.open[ocid] = eventID
	j.add(func() { c.restoreOpen(ocid, prev, had) })
}

// DropOpen forgets the open event of ocid.
func (c *Cache) DropOpen(ocid int64, j *Journal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, had := c.open[ocid]
	if !had {
		return
	}
	delete(c.open, ocid)
	j.add(func() { c.restoreOpen(ocid, prev, true) })
}

func (c *Cache) restoreOpen(ocid, eventID int64, had bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if had {
		c.open[ocid] = eventID
	} else {
		delete(c.open, ocid)
	}
}

// Disabled returns the suppression entry for ocid, expired or not.
func (c *Cache) Disabled(ocid int64) (store.DisabledEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.disabled[ocid]
	return d, ok
}

// SetDisabled stores the suppression entry for d.OCID.
func (c *Cache) SetDisabled(d store.DisabledEvent, j *Journal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, had := c.disabled[d.OCID]
	c.disabled[d.OCID] = d
	j.add(func() { c.restoreDisabled(d.OCID, prev, had) })
}

// DropDisabled removes the suppression entry for ocid.
func (c *Cache) DropDisabled(ocid int64, j *Journal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, had := c.disabled[ocid]
	if !had {
		return
	}
	delete(c.disabled, ocid)
	j.add(func() { c.restoreDisabled(ocid, prev, true) })
}

func (c *Cache) restoreDisabled(ocid int64, d store.DisabledEvent, had bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if had {
		c.disabled[ocid] = d
	} else {
		delete(c.disabled, ocid)
	}
}

// ExpiredDisabled returns the OCIDs whose disable window has elapsed at now,
// in ascending order.
func (c *Cache) ExpiredDisabled(now time.Time) []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ocids []int64
	for ocid, d := range c.disabled {
		if d.Expired(now) {
			ocids = append(ocids, ocid)
		}
	}
	sort.Slice(ocids, func(i, j int) bool { return ocids[i] < ocids[j] })
	return ocids
}

// PutRepeat buffers the latest observation of an open event, replacing any
// earlier one.
func (c *Cache) PutRepeat(eventID int64, r Repeat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repeats[eventID] = r
}

// TakeRepeat removes and returns the buffered observation of one event.
// If j is non-nil and the journal is rolled back, the repeat is put back
// unless a newer one has been buffered meanwhile.
func (c *Cache) TakeRepeat(eventID int64, j *Journal) (Repeat, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.repeats[eventID]
	if !ok {
		return Repeat{}, false
	}
	delete(c.repeats, eventID)
	j.add(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if _, newer := c.repeats[eventID]; !newer {
			c.repeats[eventID] = r
		}
	})
	return r, true
}

// TakeRepeats removes every buffered observation and returns them ordered by
// event ID.
func (c *Cache) TakeRepeats() []PendingRepeat {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make([]PendingRepeat, 0, len(c.repeats))
	for id, r := range c.repeats {
		pending = append(pending, PendingRepeat{EventID: id, Repeat: r})
	}
	c.repeats = make(map[int64]Repeat)

	sort.Slice(pending, func(i, j int) bool { return pending[i].EventID < pending[j].EventID })
	return pending
}

// Snapshot is a point-in-time copy of the cache for inspection.
type Snapshot struct {
	Open     map[int64]int64 `json:"open"`
	Disabled []int64         `json:"disabled"`
	Pending  int             `json:"pending"`
}

// Snapshot copies the current state.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Open:     make(map[int64]int64, len(c.open)),
		Disabled: make([]int64, 0, len(c.disabled)),
		Pending:  len(c.repeats),
	}
	for ocid, id := range c.open {
		s.Open[ocid] = id
	}
	for ocid := range c.disabled {
		s.Disabled = append(s.Disabled, ocid)
	}
	sort.Slice(s.Disabled, func(i, j int) bool { return s.Disabled[i] < s.Disabled[j] })
	return s
}
