// Package tasks provides engine.TaskRunner implementations.
//
// The engine starts the problem task of a counter when an event opens and
// the solved task when it closes. Running the task itself is the job of a
// separate scheduler; runners here only hand the request over.
package tasks
