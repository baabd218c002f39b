/*
Package builtin provides the registry of the tasks shipped with the
gateway.
*/
package builtin

import (
	"time"

	"github.com/passeplat/passeplat/logsink"
	"github.com/passeplat/passeplat/openapi"
	"github.com/passeplat/passeplat/tasks"
	"github.com/passeplat/passeplat/tasks/alter"
	"github.com/passeplat/passeplat/tasks/headers"
	"github.com/passeplat/passeplat/tasks/history"
	"github.com/passeplat/passeplat/tasks/stop"
	"github.com/passeplat/passeplat/tasks/transcode"
)

// Options of the tasks that depend on external collaborators.
type Options struct {

	// Sink searched by the cache and fallback tasks.
	Sink logsink.Sink

	// Index of the transaction records.
	Index string

	// Validator used by the openapi task.
	Validator openapi.Validator

	Now func() time.Time
}

// MakeRegistry returns a registry with all the built-in tasks. The tasks
// whose collaborators are missing are registered anyway, and fail when
// instantiated.
func MakeRegistry(o Options) *tasks.Registry {
	ho := history.Options{Sink: o.Sink, Index: o.Index, Now: o.Now}
	r := tasks.NewRegistry()
	r.Add(
		alter.NewAlter(),
		headers.NewHeaders(),
		transcode.NewTranscode(),
		stop.NewStopOnCondition(),
		history.NewCache(ho),
		history.NewFallback(ho),
		openapi.NewTask(o.Validator),
	)

	return r
}
