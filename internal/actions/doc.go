// Package actions implements the bulk administrative actions on events:
// disable, enable, time-interval removal, comments, hints, manual solve and
// the composite event editor.
//
// Every action is validated before anything is submitted to the engine,
// then executed as one engine transaction: it either fully applies or is
// rolled back together with the engine's caches.
//
// Callers name their targets by event ID. Inside the transaction the IDs
// are resolved to {id, OCID, counterID} triples in chunks that respect the
// store's bound-parameter limit.
package actions
