// Package cache holds the engine's in-memory projections of persisted state.
//
// A Cache mirrors three things:
//   - open events: OCID -> ID of the event whose endTime is NULL
//   - disabled OCIDs: OCID -> the disabledEvents row suppressing it
//   - pending repeats: event ID -> latest buffered observation, written behind
//
// Open and disabled entries are mutated only by the engine's serializer,
// always through a Journal so that a rolled-back transaction can undo them.
// Pending repeats are also drained by the flush timer, so every method takes
// the cache mutex.
package cache
