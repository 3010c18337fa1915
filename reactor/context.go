package reactor

import (
	"context"
	"sync"

	"github.com/kvlabs/queries/cache"
	"github.com/kvlabs/queries/fingerprint"
	"github.com/kvlabs/queries/permap"
	"github.com/kvlabs/queries/qid"
)

// depSink is a thread-safe accumulator standing in for the spec's
// per-body dependency channel: every contributing goroutine pushes one
// DepMap, and fold() reduces them via NonOverridingUnion in push order.
// A mutex-guarded slice gives the same FIFO-per-sink, no-cross-sink-
// ordering guarantee a literal mpsc channel would, without needing a
// concurrently-draining reader goroutine.
type depSink struct {
	mu   sync.Mutex
	maps []cache.DepMap
}

func newDepSink() *depSink {
	return &depSink{}
}

func (s *depSink) push(m cache.DepMap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maps = append(s.maps, m)
}

func (s *depSink) fold() (cache.DepMap, *permap.Conflict[qid.QueryId, fingerprint.Fingerprint]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agg := cache.EmptyDepMap()
	for _, m := range s.maps {
		var conflict *permap.Conflict[qid.QueryId, fingerprint.Fingerprint]
		agg, conflict = agg.NonOverridingUnion(m, fingerprintsEqual)
		if conflict != nil {
			return nil, conflict
		}
	}
	return agg, nil
}

func fingerprintsEqual(a, b fingerprint.Fingerprint) bool {
	return a.Equal(b)
}

// ExecutionContext is the per-invocation view a running query body sees.
// It carries the ancestor chain for cycle detection and tracing, and the
// three dependency sinks the body's GetParam/Run calls feed.
type ExecutionContext struct {
	current    qid.QueryId
	parent     *ExecutionContext
	dependents *permap.PerSet[qid.QueryId]
	chain      []qid.QueryId
	continuity *Continuity

	world       *depSink
	directWorld *depSink
	deps        *depSink
}

func newExecutionContext(id qid.QueryId, parent *ExecutionContext, cont *Continuity) *ExecutionContext {
	var dependents *permap.PerSet[qid.QueryId]
	var chain []qid.QueryId
	if parent == nil {
		dependents = permap.EmptySet[qid.QueryId](qid.Hash)
		chain = []qid.QueryId{id}
	} else {
		dependents = parent.dependents
		chain = append(append([]qid.QueryId{}, parent.chain...), id)
	}
	return &ExecutionContext{
		current:     id,
		parent:      parent,
		dependents:  dependents.Insert(id),
		chain:       chain,
		continuity:  cont,
		world:       newDepSink(),
		directWorld: newDepSink(),
		deps:        newDepSink(),
	}
}

func chainFor(parent *ExecutionContext, id qid.QueryId) []qid.QueryId {
	if parent == nil {
		return []qid.QueryId{id}
	}
	return append(append([]qid.QueryId{}, parent.chain...), id)
}

func (ec *ExecutionContext) reactor() *Reactor {
	return ec.continuity.reactor
}

// GetParam reads a top-level input, recording it in both the world and
// direct-world dependency sets. Per §7, an unset param is a terminal
// MissingParamError.
func GetParam[T any](ec *ExecutionContext, p qid.Param[T]) (T, error) {
	var zero T
	entry, ok := ec.reactor().params.get(p.ID())
	if !ok {
		return zero, &qid.MissingParamError{ID: p.ID()}
	}
	val, err := qid.Downcast[T](entry.Value)
	if err != nil {
		return zero, err
	}
	singleton := cache.EmptyDepMap().Insert(p.ID(), entry.FP)
	ec.world.push(singleton)
	ec.directWorld.push(singleton)
	return val, nil
}

// Run invokes a nested query, detecting cycles against ec's ancestor
// chain before delegating into the reactor's cache-or-compute path. On
// success it records query's fingerprint into ec's deps set.
func Run[T any](ctx context.Context, ec *ExecutionContext, q Query[T]) (T, error) {
	var zero T
	id := q.ID()
	if ec.dependents.Contains(id) {
		start := 0
		for i, c := range ec.chain {
			if c == id {
				start = i
				break
			}
		}
		return zero, &qid.CycleError{Trace: append(append([]qid.QueryId{}, ec.chain[start:]...), id)}
	}
	result := ec.continuity.doExecute(ctx, erase(q), ec)
	if result.Err != nil {
		return zero, qid.AsPartOf(result.Err, id)
	}
	val, err := qid.Downcast[T](result.Value)
	if err != nil {
		return zero, err
	}
	ec.deps.push(cache.EmptyDepMap().Insert(id, result.FP))
	return val, nil
}
