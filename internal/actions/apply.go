package actions

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/asbelov/alepiz-sub006/internal/engine"
	"github.com/asbelov/alepiz-sub006/internal/interval"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

// resolve maps caller-supplied event IDs to {id, OCID, counterID}.
// Unknown IDs are logged and skipped; if none is known the request fails.
func resolve(ctx context.Context, tx *engine.Tx, ids []int64) ([]store.EventRef, error) {
	refs, err := tx.Queries().ResolveEvents(ctx, ids)
	if err != nil {
		return nil, err
	}

	if len(refs) < len(uniqueInts(ids)) {
		found := make(map[int64]bool, len(refs))
		for _, r := range refs {
			found[r.ID] = true
		}
		var missing []int64
		for _, id := range uniqueInts(ids) {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		slog.Warn("skipping unknown events", "event_ids", fmt.Sprint(missing))
	}

	if len(refs) == 0 {
		return nil, ValidationErrors{{Field: "eventIDs", Message: "none of the events exist"}}
	}
	return refs, nil
}

// latestPerOCID keeps the newest event of every OCID, ordered by OCID.
func latestPerOCID(refs []store.EventRef) []store.EventRef {
	latest := make(map[int64]store.EventRef)
	for _, r := range refs {
		if cur, ok := latest[r.OCID]; !ok || r.ID > cur.ID {
			latest[r.OCID] = r
		}
	}

	out := make([]store.EventRef, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OCID < out[j].OCID })
	return out
}

func uniqueOCIDs(refs []store.EventRef) []int64 {
	ocids := make([]int64, len(refs))
	for i, r := range refs {
		ocids[i] = r.OCID
	}
	return uniqueInts(ocids)
}

// uniqueInts returns the distinct values of ids in ascending order.
func uniqueInts(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	var out []int64
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// attachNote inserts one comment and points every event at it. Comments no
// longer referenced afterwards are deleted. Without text the comment is
// only written when always is set. Returns the new comment ID or 0.
func attachNote(ctx context.Context, tx *engine.Tx, refs []store.EventRef, user string, note Note, always bool) (int64, error) {
	if note.Empty() && !always {
		return 0, nil
	}

	q := tx.Queries()
	commentID, err := q.InsertComment(ctx, store.Comment{
		Timestamp:  tx.Now(),
		User:       user,
		Subject:    note.Subject,
		Recipients: note.Recipients,
		Comment:    note.Comment,
	})
	if err != nil {
		return 0, err
	}

	var replaced []int64
	for _, r := range refs {
		old, err := q.SetEventComment(ctx, r.ID, commentID)
		if err != nil {
			return 0, err
		}
		if old != 0 {
			replaced = append(replaced, old)
		}
	}

	retireComments(ctx, q, replaced...)
	return commentID, nil
}

// retireComments deletes comments that nothing references anymore.
// Failures are logged: a leftover comment is harmless.
func retireComments(ctx context.Context, q *store.Queries, ids ...int64) {
	for _, id := range uniqueInts(ids) {
		retired, err := q.RetireComment(ctx, id)
		if err != nil {
			slog.Error("retire comment failed", "comment_id", id, "error", err)
			continue
		}
		if retired {
			slog.Debug("comment retired", "comment_id", id)
		}
	}
}

func disable(ctx context.Context, tx *engine.Tx, refs []store.EventRef, user string, commentID int64, edit DisableEdit) error {
	for _, r := range latestPerOCID(refs) {
		prev, had := tx.Disabled(r.OCID)
		expired, err := tx.Expire(ctx, r.OCID)
		if err != nil {
			return err
		}

		intervals := edit.Intervals
		if had && !expired && !edit.ReplaceIntervals {
			intervals = extendIntervals(prev.Intervals, edit.Intervals)
		}

		err = tx.Disable(ctx, store.DisabledEvent{
			OCID:         r.OCID,
			EventID:      r.ID,
			Timestamp:    tx.Now(),
			User:         user,
			CommentID:    commentID,
			DisableUntil: edit.DisableUntil,
			Intervals:    intervals,
		})
		if err != nil {
			return err
		}

		if had && prev.CommentID != commentID {
			retireComments(ctx, tx.Queries(), prev.CommentID)
		}
	}
	return nil
}

// extendIntervals adds windows to an existing disable. An empty list means
// the whole day, so it absorbs any window on either side.
func extendIntervals(prev, add []interval.Interval) []interval.Interval {
	if len(prev) == 0 || len(add) == 0 {
		return nil
	}
	return append(append([]interval.Interval{}, prev...), add...)
}

func enable(ctx context.Context, tx *engine.Tx, refs []store.EventRef) error {
	for _, r := range latestPerOCID(refs) {
		prev, had := tx.Disabled(r.OCID)

		deleted, err := tx.Enable(ctx, r.OCID)
		if err != nil {
			return err
		}
		if !deleted {
			slog.Warn("OCID was not disabled", "ocid", r.OCID)
			continue
		}
		if had {
			retireComments(ctx, tx.Queries(), prev.CommentID)
		}
	}
	return nil
}

func removeIntervals(ctx context.Context, tx *engine.Tx, refs []store.EventRef, user string, remove []string) error {
	for _, r := range latestPerOCID(refs) {
		if _, err := tx.Expire(ctx, r.OCID); err != nil {
			return err
		}

		d, ok := tx.Disabled(r.OCID)
		if !ok {
			var err error
			d, ok, err = tx.Queries().ReadDisabledEvent(ctx, r.OCID)
			if err != nil {
				return err
			}
			if ok {
				slog.Error("disabled event missing from cache", "ocid", r.OCID)
			}
		}
		if !ok {
			slog.Warn("OCID is not disabled, no intervals to remove", "ocid", r.OCID)
			continue
		}

		d.Intervals = interval.Remove(d.Intervals, remove)
		d.User = user
		d.Timestamp = tx.Now()
		if err := tx.Disable(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// replaceHints writes one hint per counterID, or per OCID for object hints.
// Returns the number of hint keys replaced.
func replaceHints(ctx context.Context, tx *engine.Tx, refs []store.EventRef, user string, edit HintEdit) (int, error) {
	var keys []store.HintKey
	if edit.ForObject {
		for _, ocid := range uniqueOCIDs(refs) {
			keys = append(keys, store.HintKey{OCID: ocid})
		}
	} else {
		counters := make([]int64, 0, len(refs))
		for _, r := range refs {
			counters = append(counters, r.CounterID)
		}
		for _, id := range uniqueInts(counters) {
			if id == 0 {
				slog.Warn("event has no counter, skipping counter hint")
				continue
			}
			keys = append(keys, store.HintKey{CounterID: id})
		}
	}

	hint := store.Hint{
		Timestamp:  tx.Now(),
		User:       user,
		Subject:    edit.Subject,
		Recipients: edit.Recipients,
		Comment:    edit.Comment,
	}
	for _, key := range keys {
		if _, err := tx.Queries().ReplaceHint(ctx, key, hint); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// solve force-closes events. Events whose OCID is not cached as open are
// checked against the store and closed by ID if the row is still open.
func solve(ctx context.Context, tx *engine.Tx, refs []store.EventRef, user string) (int, error) {
	solved := 0
	for _, r := range refs {
		if open, ok := tx.OpenEvent(r.OCID); ok && open == r.ID {
			res, err := tx.Solve(ctx, engine.Solution{OCID: r.OCID, EvalTime: tx.Now(), EventID: r.ID})
			if err != nil {
				return 0, err
			}
			if res.Outcome == engine.OutcomeClosed {
				solved++
				slog.Info("event solved by user", "event_id", r.ID, "ocid", r.OCID, "user", user)
			}
			continue
		}

		ev, err := tx.Queries().ReadEvent(ctx, r.ID)
		if err != nil {
			return 0, fmt.Errorf("read event %d: %w", r.ID, err)
		}
		if !ev.Open() {
			slog.Debug("event already closed", "event_id", r.ID, "ocid", r.OCID)
			continue
		}

		slog.Error("open event missing from cache, closing by id", "event_id", r.ID, "ocid", r.OCID)
		closed, err := tx.Queries().CloseEvent(ctx, r.ID, tx.Now(), nil)
		if err != nil {
			return 0, err
		}
		if closed {
			solved++
		}
	}
	return solved, nil
}
