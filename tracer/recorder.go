package tracer

import (
	"sync"

	"github.com/kvlabs/queries/cache"
	"github.com/kvlabs/queries/qid"
)

// Recorder is a Trace that only records body executions, as a flat
// ordered log of QueryId strings. This backs the reactor's own
// trace() API (§6); cache events pass through untouched.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) CachePush(qid.QueryId, cache.Cached, []qid.QueryId)   {}
func (r *Recorder) CachePull(qid.QueryId, string, []qid.QueryId)         {}
func (r *Recorder) CacheRemove(qid.QueryId, []qid.QueryId)               {}
func (r *Recorder) CacheModify(qid.QueryId, cache.Cached, []qid.QueryId) {}

func (r *Recorder) BodyExecuted(key qid.QueryId, _ []qid.QueryId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, key.String())
}

// Drain returns a snapshot of every line recorded so far. It does not
// clear the log: repeated calls accumulate, matching §6's "drains and
// returns all emitted trace lines accumulated so far".
func (r *Recorder) Drain() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
