// Package replication ships committed store batches to secondary stores.
//
// The store hands every committed transaction to a store.Replicator on the
// writer's path. Async decouples that path from slow sinks: batches are
// queued on a bounded channel and delivered by one goroutine, in commit
// order, to every configured Sink. When the buffer is full the batch is
// dropped with a warning rather than stalling the writer.
//
// Two sinks are provided:
//   - KafkaSink publishes one message per mutation, keyed "table:key"
//   - PostgresSink appends mutations to an event_mutations journal table
package replication
