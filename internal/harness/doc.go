// Package harness runs event scenarios against a real engine.
//
// A scenario is a YAML file describing a sequence of evaluations, bulk
// actions, clock moves and repeat flushes, followed by assertions on the
// final store state:
//
//	name: time_window_suppression
//	description: occurrences inside a disabled window are dropped
//	clock: "2026-10-16T00:00:00Z"
//	timezone: UTC
//	steps:
//	  - occurred: {ocid: 42, counter_id: 17}
//	    expect: opened
//	  - action: disableEvents
//	    params: {eventIDs: [1], user: admin, disableUntil: "2026-10-16T01:00:00Z"}
//	    expect: ok
//	  - advance: 930ms
//	assertions:
//	  - type: event_count
//	    count: 1
//
// Each run uses a fresh in-memory store, a fixed clock starting at the
// scenario's clock and a recording task runner, so the produced trace is
// deterministic and can be compared with a golden file.
package harness
