// Package interval implements time-of-day window algebra for disabled events.
//
// A window is a half-open range [From, To) expressed in milliseconds since
// local midnight. Windows are persisted as "<from>-<to>;<from>-<to>".
//
// All functions are pure. Malformed input is ignored rather than reported,
// so a damaged intervals column can never stop event processing.
package interval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DayMillis is the length of one day in milliseconds.
const DayMillis int64 = 86_400_000

const (
	pairSeparator  = ";"
	boundSeparator = "-"
)

// Interval is a [From, To) time-of-day window in milliseconds since midnight.
type Interval struct {
	From int64 `json:"from" yaml:"from"`
	To   int64 `json:"to" yaml:"to"`
}

// String returns the persisted "<from>-<to>" form.
func (i Interval) String() string {
	return strconv.FormatInt(i.From, 10) + boundSeparator + strconv.FormatInt(i.To, 10)
}

// Contains reports whether offset lies inside [From, To).
func (i Interval) Contains(offset int64) bool {
	return offset >= i.From && offset < i.To
}

func (i Interval) valid() bool {
	return i.From >= 0 && i.To <= DayMillis && i.From < i.To
}

// Parse decodes a persisted intervals string.
//
// Pairs that cannot be parsed, lie outside one day or are inverted are
// skipped. An empty string yields nil.
func Parse(s string) []Interval {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var out []Interval
	for _, pair := range strings.Split(s, pairSeparator) {
		iv, ok := parsePair(pair)
		if !ok {
			continue
		}
		out = append(out, iv)
	}
	return out
}

func parsePair(pair string) (Interval, bool) {
	fromStr, toStr, found := strings.Cut(strings.TrimSpace(pair), boundSeparator)
	if !found {
		return Interval{}, false
	}
	from, err := strconv.ParseInt(strings.TrimSpace(fromStr), 10, 64)
	if err != nil {
		return Interval{}, false
	}
	to, err := strconv.ParseInt(strings.TrimSpace(toStr), 10, 64)
	if err != nil {
		return Interval{}, false
	}
	iv := Interval{From: from, To: to}
	if !iv.valid() {
		return Interval{}, false
	}
	return iv, true
}

// Format encodes intervals into the persisted form. Nil or empty input
// yields "".
func Format(intervals []Interval) string {
	parts := make([]string, 0, len(intervals))
	for _, iv := range intervals {
		parts = append(parts, iv.String())
	}
	return strings.Join(parts, pairSeparator)
}

// Merge returns the minimal sorted, non-overlapping cover of intervals.
// Touching intervals (next.From == cur.To) are coalesced. The input slice
// is not modified. Merge is idempotent.
func Merge(intervals []Interval) []Interval {
	if len(intervals) == 0 {
		return nil
	}

	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].From < sorted[b].From
	})

	merged := make([]Interval, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if next.From <= cur.To {
			if next.To > cur.To {
				cur.To = next.To
			}
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	return append(merged, cur)
}

// Remove drops every interval of list whose "<from>-<to>" form exactly
// matches one of remove, then re-merges what is left. Matching happens
// against the merged list, so callers pass windows as they were displayed.
func Remove(list []Interval, remove []string) []Interval {
	drop := make(map[string]struct{}, len(remove))
	for _, r := range remove {
		drop[strings.TrimSpace(r)] = struct{}{}
	}

	var kept []Interval
	for _, iv := range Merge(list) {
		if _, ok := drop[iv.String()]; ok {
			continue
		}
		kept = append(kept, iv)
	}
	return Merge(kept)
}

// Validate checks that every interval satisfies 0 <= from < to <= DayMillis.
func Validate(intervals []Interval) error {
	for _, iv := range intervals {
		if iv.From < 0 || iv.To < 0 {
			return fmt.Errorf("interval %s: bounds must not be negative", iv)
		}
		if iv.From > DayMillis || iv.To > DayMillis {
			return fmt.Errorf("interval %s: bounds must not exceed %d ms", iv, DayMillis)
		}
		if iv.From >= iv.To {
			return fmt.Errorf("interval %s: from must be less than to", iv)
		}
	}
	return nil
}

// OffsetOf returns the milliseconds elapsed since midnight of t in loc.
func OffsetOf(t time.Time, loc *time.Location) int64 {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return local.Sub(midnight).Milliseconds()
}

// DisabledAt reports whether both start and end fall inside the same window.
//
// Nil or empty intervals mean the entity is disabled for the whole day, so
// DisabledAt returns true.
func DisabledAt(intervals []Interval, start, end time.Time, loc *time.Location) bool {
	if len(intervals) == 0 {
		return true
	}

	startOffset := OffsetOf(start, loc)
	endOffset := OffsetOf(end, loc)
	for _, iv := range intervals {
		if iv.Contains(startOffset) && iv.Contains(endOffset) {
			return true
		}
	}
	return false
}
