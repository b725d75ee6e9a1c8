// Package ingest feeds counter evaluations from Kafka into the engine.
//
// Each message is one JSON Evaluation. A true value is a "problem occurred"
// call, a false value a "problem solved" call. Counter rules fill in the
// importance, auto-solve duration and task hooks the evaluation leaves unset.
//
// Delivery is at-least-once: an offset is committed only after the engine
// accepted the call. Messages that can never be applied (bad JSON, invalid
// OCID) are logged and committed so they do not block the partition.
package ingest
