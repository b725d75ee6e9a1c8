// Package rules loads per-counter event rules from CUE files.
//
// A rules directory holds one CUE package whose "counter" struct maps
// counter IDs to the defaults the engine applies to that counter's
// evaluations:
//
//	package rules
//
//	counter: "17": {
//		importance:    2
//		description:   "CPU load is high"
//		pronunciation: "CPU high"
//		eventDuration: "0s"
//		problemTask:   10
//		solvedTask:    11
//	}
//
// Files are unified with an embedded schema before they are decoded, so
// range and type errors are reported with their CUE source position.
package rules
