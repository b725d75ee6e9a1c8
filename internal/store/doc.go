// Package store provides SQLite-backed durable storage for the event generator.
//
// The store holds four tables:
//   - events: one row per occurrence of a monitored condition (open while endTime IS NULL)
//   - comments: operator annotations referenced by events and disabled events
//   - hints: guidance text keyed by OCID or by counterID
//   - disabledEvents: per-OCID suppression windows with an absolute expiry
//
// The store does not enforce "one open event per OCID". That invariant belongs to
// the engine's cache layer, which is rebuilt from this store at startup.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//   - One open connection: SQLite has a single writer
//
// # Transactions and Replication
//
// Mutations go through WithTx. Every write made through a transactional Queries
// is recorded as a Mutation; after a successful commit the batch is handed to the
// configured Replicator, which must not block. Rolled-back batches are discarded.
//
// All times are stored as INTEGER milliseconds since the Unix epoch.
package store
