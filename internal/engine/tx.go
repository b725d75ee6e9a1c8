package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asbelov/alepiz-sub006/internal/cache"
	"github.com/asbelov/alepiz-sub006/internal/interval"
	"github.com/asbelov/alepiz-sub006/internal/store"
)

// Tx is one serialized engine transaction. It is valid only inside the
// function passed to Engine.Transact.
type Tx struct {
	e           *Engine
	q           *store.Queries
	batchID     string
	journal     *cache.Journal
	afterCommit []func()
}

// Queries returns the store statements bound to this transaction.
func (tx *Tx) Queries() *store.Queries {
	return tx.q
}

// BatchID returns the transaction's batch ID.
func (tx *Tx) BatchID() string {
	return tx.batchID
}

// Now returns the engine clock's current time.
func (tx *Tx) Now() time.Time {
	return tx.e.clock.Now()
}

// Location returns the time zone of time-of-day intervals.
func (tx *Tx) Location() *time.Location {
	return tx.e.loc
}

// AfterCommit defers f until the transaction has committed.
// Deferred functions are dropped on rollback.
func (tx *Tx) AfterCommit(f func()) {
	tx.afterCommit = append(tx.afterCommit, f)
}

// OpenEvent returns the ID of the cached open event for ocid.
func (tx *Tx) OpenEvent(ocid int64) (int64, bool) {
	return tx.e.cache.OpenEvent(ocid)
}

// Disabled returns the cached suppression entry for ocid.
func (tx *Tx) Disabled(ocid int64) (store.DisabledEvent, bool) {
	return tx.e.cache.Disabled(ocid)
}

// Disable persists d and mirrors it in the cache.
func (tx *Tx) Disable(ctx context.Context, d store.DisabledEvent) error {
	d.Intervals = interval.Merge(d.Intervals)
	if err := tx.q.UpsertDisabledEvent(ctx, d); err != nil {
		return err
	}
	tx.e.cache.SetDisabled(d, tx.journal)
	return nil
}

// Enable removes the suppression of ocid from the store and the cache.
// Returns false if the OCID was not disabled.
func (tx *Tx) Enable(ctx context.Context, ocid int64) (bool, error) {
	deleted, err := tx.q.DeleteDisabledEvent(ctx, ocid)
	if err != nil {
		return false, err
	}

	if _, cached := tx.e.cache.Disabled(ocid); cached != deleted {
		slog.Error("disabled event cache out of sync with store",
			"ocid", ocid,
			"cached", cached,
			"stored", deleted,
		)
	}
	tx.e.cache.DropDisabled(ocid, tx.journal)
	return deleted, nil
}

// Expire enables ocid if its disable window has elapsed and reports whether
// it did.
func (tx *Tx) Expire(ctx context.Context, ocid int64) (bool, error) {
	d, ok := tx.e.cache.Disabled(ocid)
	if !ok || !d.Expired(tx.Now()) {
		return false, nil
	}

	slog.Info("disable window elapsed", "ocid", ocid, "disable_until", d.DisableUntil)
	if _, err := tx.Enable(ctx, ocid); err != nil {
		return false, fmt.Errorf("enable expired OCID %d: %w", ocid, err)
	}
	return true, nil
}

// Suppressed reports whether ocid is disabled at evalTime. Expired entries
// never suppress.
func (tx *Tx) Suppressed(ocid int64, evalTime time.Time) bool {
	d, ok := tx.e.cache.Disabled(ocid)
	if !ok || d.Expired(tx.Now()) {
		return false
	}
	return interval.DisabledAt(d.Intervals, evalTime, evalTime, tx.e.loc)
}
