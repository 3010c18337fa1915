// Package reactor implements the evaluator's scheduler: the concurrent,
// deduplicating driver that turns a Query into a cached, fingerprinted
// result, reruns stale entries, and salvages entries whose direct
// inputs still check out by concurrently rechecking their recorded
// dependencies (§4.F, §4.G).
package reactor

import (
	"context"
	"sync"

	"github.com/kvlabs/queries/cache"
	"github.com/kvlabs/queries/fingerprint"
	"github.com/kvlabs/queries/qid"
	"github.com/kvlabs/queries/tracer"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// errNotSalvageable is recheck's internal sentinel for "this dependency
// no longer verifies"; it never escapes recheck, which only reports a
// bool to its caller.
var errNotSalvageable = errors.New("recheck: dependency not salvageable")

type paramEntry struct {
	FP    fingerprint.Fingerprint
	Value qid.Object
}

// paramStore is the reactor's set_param table: a plain mutex-guarded
// map, since params change far less often than they are read and need
// no structural sharing across snapshots (unlike the cache).
type paramStore struct {
	mu sync.RWMutex
	m  map[qid.QueryId]paramEntry
}

func newParamStore() *paramStore {
	return &paramStore{m: map[qid.QueryId]paramEntry{}}
}

func (p *paramStore) set(id qid.QueryId, e paramEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[id] = e
}

func (p *paramStore) get(id qid.QueryId) (paramEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.m[id]
	return e, ok
}

// inflight is one in-progress or just-finished do_execute call, shared
// by every concurrent caller asking for the same QueryId. Closing done
// wakes every waiter at once, the atomic broadcast the teacher's
// keyed-lock helper gives up a single release for: a WaitGroup.Done
// only ever releases one Wait, where a closed channel unblocks every
// receiver simultaneously.
type inflight struct {
	done   chan struct{}
	result doExecuteResult
}

type doExecuteResult struct {
	FP         fingerprint.Fingerprint
	Value      qid.Object
	Err        error
	WorldState cache.DepMap
}

// Reactor is the evaluator's scheduler: param store, cache, in-flight
// dedup table and the monotonic past_queries registry recheck replays
// queries from.
type Reactor struct {
	params    *paramStore
	cacheImpl cache.Cache
	trace     tracer.Trace
	recorder  *tracer.Recorder

	mu      sync.Mutex
	current map[qid.QueryId]*inflight

	pastMu      sync.RWMutex
	pastQueries map[qid.QueryId]erasedQuery
}

// Option configures a Reactor at construction time.
type Option func(*Reactor)

// WithTracer attaches an additional Trace (e.g. a tracer.FileTracer)
// alongside the reactor's always-on body-execution recorder.
func WithTracer(t tracer.Trace) Option {
	return func(r *Reactor) {
		r.trace = tracer.Multi{Tracers: []tracer.Trace{r.recorder, t}}
	}
}

// WithCache overrides the default in-memory cache, e.g. with a tracing
// or persistent wrapper.
func WithCache(c cache.Cache) Option {
	return func(r *Reactor) { r.cacheImpl = c }
}

// New builds an empty Reactor: no params set, no cache entries, no
// queries yet registered in past_queries.
func New(opts ...Option) *Reactor {
	recorder := tracer.NewRecorder()
	r := &Reactor{
		params:      newParamStore(),
		cacheImpl:   cache.NewMap(),
		recorder:    recorder,
		trace:       recorder,
		current:     map[qid.QueryId]*inflight{},
		pastQueries: map[qid.QueryId]erasedQuery{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Trace drains every BodyExecuted line recorded so far, in run order.
func (r *Reactor) Trace() []string {
	return r.recorder.Drain()
}

func (r *Reactor) newContinuity() *Continuity {
	return &Continuity{reactor: r, fresh: map[qid.QueryId]struct{}{}}
}

// SetParam overwrites a top-level input's value and fingerprint
// atomically. It does not itself invalidate anything: staleness is
// discovered lazily, the next time a dependent is demanded (§1, §4.F).
func SetParam[T any](r *Reactor, p qid.Param[T], value T) {
	fp, _, err := fingerprint.Stamp(value)
	if err != nil {
		panic(qid.WithStack(err))
	}
	r.params.set(p.ID(), paramEntry{FP: fp, Value: value})
}

func (r *Reactor) verify(m cache.DepMap) bool {
	if m == nil {
		return true
	}
	for id, fp := range m.All() {
		cur, present := r.params.get(id)
		if !present || !cur.FP.Equal(fp) {
			return false
		}
	}
	return true
}

func (r *Reactor) registerPastQuery(id qid.QueryId, q erasedQuery) {
	r.pastMu.Lock()
	defer r.pastMu.Unlock()
	if _, ok := r.pastQueries[id]; !ok {
		r.pastQueries[id] = q
	}
}

func (r *Reactor) pastQuery(id qid.QueryId) (erasedQuery, bool) {
	r.pastMu.RLock()
	defer r.pastMu.RUnlock()
	q, ok := r.pastQueries[id]
	return q, ok
}

func (r *Reactor) propagate(parent *ExecutionContext, result doExecuteResult) {
	if parent != nil {
		parent.world.push(result.WorldState)
	}
}

// Execute is the outer, top-level entry into the evaluator (§4.F.4): it
// drives do_execute to completion, then re-verifies the resulting
// world_state against the live params. A set_param that landed mid-run
// invalidates the attempt; Execute simply retries with a fresh
// Continuity rather than return a stale answer.
func Execute[T any](ctx context.Context, r *Reactor, q Query[T]) (T, error) {
	var zero T
	for {
		cont := r.newContinuity()
		result := cont.doExecute(ctx, erase(q), nil)
		if result.Err != nil {
			return zero, result.Err
		}
		if !r.verify(result.WorldState) {
			continue
		}
		val, err := qid.Downcast[T](result.Value)
		if err != nil {
			return zero, err
		}
		return val, nil
	}
}

// Continuity is the per-top-level-Execute freshness cache (§4.G): once
// a query has been resolved within one Continuity, every further
// reference within the same run reads the cache directly rather than
// re-entering the dedup/recheck machinery.
type Continuity struct {
	reactor *Reactor

	mu    sync.Mutex
	fresh map[qid.QueryId]struct{}
}

func (c *Continuity) doExecute(ctx context.Context, q erasedQuery, parent *ExecutionContext) doExecuteResult {
	id := q.ID()
	c.mu.Lock()
	_, isFresh := c.fresh[id]
	c.mu.Unlock()
	if isFresh {
		entry, ok := c.reactor.cacheImpl.Pull(id)
		if !ok {
			panic("cache was corrupted: " + id.String() + " marked fresh but missing from cache")
		}
		result := doExecuteResult{
			FP:         entry.Result.Fingerprint,
			Value:      entry.Result.Value,
			Err:        entry.Result.Err,
			WorldState: entry.WorldState,
		}
		c.reactor.propagate(parent, result)
		return result
	}

	result := c.reactor.doExecute(ctx, q, parent, c)
	if result.Err == nil {
		c.mu.Lock()
		c.fresh[id] = struct{}{}
		c.mu.Unlock()
	}
	return result
}

// doExecute is the sole entry into cache-or-compute (§4.F.1): concurrent
// callers for the same id share one in-flight computation and are woken
// together once it lands.
func (r *Reactor) doExecute(ctx context.Context, q erasedQuery, parent *ExecutionContext, cont *Continuity) doExecuteResult {
	id := q.ID()

	r.mu.Lock()
	if inf, ok := r.current[id]; ok {
		r.mu.Unlock()
		<-inf.done
		result := inf.result
		r.propagate(parent, result)
		return result
	}
	inf := &inflight{done: make(chan struct{})}
	r.current[id] = inf
	r.mu.Unlock()

	entry := r.runBody(ctx, q, parent, cont, id)
	result := doExecuteResult{
		FP:         entry.Result.Fingerprint,
		Value:      entry.Result.Value,
		Err:        entry.Result.Err,
		WorldState: entry.WorldState,
	}
	inf.result = result

	r.mu.Lock()
	delete(r.current, id)
	r.mu.Unlock()
	close(inf.done)

	r.propagate(parent, result)
	return result
}

// runBody implements cache consultation (fast-hit, fast-miss, recheck,
// no-entry) and, when none of those can answer, the body execution
// itself: run, fold the three dependency sinks, stamp, store, and
// register in past_queries (§4.F.2, §4.F.3).
func (r *Reactor) runBody(ctx context.Context, q erasedQuery, parent *ExecutionContext, cont *Continuity, id qid.QueryId) cache.Cached {
	stack := chainFor(parent, id)

	if entry, found := r.cacheImpl.Pull(id); found {
		r.trace.CachePull(id, "lookup", stack)
		switch {
		case r.verify(entry.WorldState):
			r.trace.CachePull(id, "fast-hit", stack)
			return entry
		case !r.verify(entry.DirectWorldState):
			// fast-miss: direct inputs themselves changed, fall through to rerun.
		case entry.Result.OK():
			if newWorld, ok := r.recheck(ctx, entry); ok {
				entry.WorldState = newWorld
				r.cacheImpl.Modify(id, func(c *cache.Cached) { c.WorldState = newWorld })
				r.trace.CacheModify(id, entry, stack)
				return entry
			}
		}
		r.cacheImpl.Remove(id)
		r.trace.CacheRemove(id, stack)
	} else {
		r.trace.CachePull(id, "no-entry", stack)
	}

	for {
		ec := newExecutionContext(id, parent, cont)
		value, bodyErr := q.runBody(ctx, ec)
		r.trace.BodyExecuted(id, ec.chain)

		world, worldConflict := ec.world.fold()
		direct, directConflict := ec.directWorld.fold()
		deps, depsConflict := ec.deps.fold()
		if worldConflict != nil || directConflict != nil || depsConflict != nil {
			// Concurrent GetParam/Run calls raced onto the same id with
			// disagreeing fingerprints within one body run: discard this
			// run and execute the body again with fresh sinks (the cache
			// consultation above is not repeated).
			continue
		}

		var result cache.Cached
		if bodyErr != nil {
			result = cache.Cached{
				Result:           cache.Result{Err: bodyErr},
				WorldState:       world,
				DirectWorldState: direct,
				DepsState:        deps,
			}
		} else {
			fp, _, stampErr := fingerprint.Stamp(value)
			if stampErr != nil {
				result = cache.Cached{
					Result:           cache.Result{Err: stampErr},
					WorldState:       world,
					DirectWorldState: direct,
					DepsState:        deps,
				}
			} else {
				result = cache.Cached{
					Result:           cache.Result{Value: value, Fingerprint: fp},
					WorldState:       world,
					DirectWorldState: direct,
					DepsState:        deps,
				}
			}
		}

		r.cacheImpl.Push(id, result)
		r.trace.CachePush(id, result, stack)
		r.registerPastQuery(id, q)
		return result
	}
}

// recheck salvages a cache entry whose direct inputs still verify by
// concurrently re-resolving every dependency recorded in deps_state
// through the reactor's own past_queries registry (§4.F.3). An entry
// with an empty deps_state (no recorded dependencies to re-verify) is
// never salvageable.
func (r *Reactor) recheck(ctx context.Context, entry cache.Cached) (cache.DepMap, bool) {
	if entry.DepsState == nil || entry.DepsState.IsEmpty() {
		return nil, false
	}

	type depCheck struct {
		id qid.QueryId
		fp fingerprint.Fingerprint
	}
	var deps []depCheck
	for id, fp := range entry.DepsState.All() {
		deps = append(deps, depCheck{id: id, fp: fp})
	}

	recheckCont := r.newContinuity()
	worldStates := make([]cache.DepMap, len(deps))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range deps {
		i, d := i, d
		g.Go(func() error {
			eq, ok := r.pastQuery(d.id)
			if !ok {
				return errNotSalvageable
			}
			result := r.doExecute(gctx, eq, nil, recheckCont)
			if result.Err != nil || !result.FP.Equal(d.fp) {
				return errNotSalvageable
			}
			depEntry, found := r.cacheImpl.Pull(d.id)
			if !found {
				return errNotSalvageable
			}
			worldStates[i] = depEntry.WorldState
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false
	}

	agg := entry.DirectWorldState
	for _, ws := range worldStates {
		conflicted, conflict := agg.NonOverridingUnion(ws, fingerprintsEqual)
		if conflict != nil {
			return nil, false
		}
		agg = conflicted
	}
	return agg, true
}
