// Package tracer implements the evaluator's observability side channel:
// the Trace interface every cache operation and body execution can be
// routed through, a no-op default, an in-memory recorder used for the
// reactor's own trace() API, and a JSONL file writer.
package tracer

import (
	"github.com/kvlabs/queries/cache"
	"github.com/kvlabs/queries/qid"
)

// Trace receives one event per cache operation and per body execution.
// Implementations must not block the caller for long: the reactor calls
// these synchronously from the hot path.
type Trace interface {
	CachePush(key qid.QueryId, entry cache.Cached, stack []qid.QueryId)
	CachePull(key qid.QueryId, reason string, stack []qid.QueryId)
	CacheRemove(key qid.QueryId, stack []qid.QueryId)
	CacheModify(key qid.QueryId, entry cache.Cached, stack []qid.QueryId)
	BodyExecuted(key qid.QueryId, stack []qid.QueryId)
}

// NoOpTrace discards every event. A reactor built without an explicit
// tracer does not use it: its default Trace is its own Recorder.
type NoOpTrace struct{}

func (NoOpTrace) CachePush(qid.QueryId, cache.Cached, []qid.QueryId)   {}
func (NoOpTrace) CachePull(qid.QueryId, string, []qid.QueryId)         {}
func (NoOpTrace) CacheRemove(qid.QueryId, []qid.QueryId)               {}
func (NoOpTrace) CacheModify(qid.QueryId, cache.Cached, []qid.QueryId) {}
func (NoOpTrace) BodyExecuted(qid.QueryId, []qid.QueryId)              {}
