package reactor

import (
	"context"

	"github.com/kvlabs/queries/qid"
)

// Query is a named, cloneable asynchronous computation whose result is a
// candidate for memoization. Id must be stable across calls; Body may
// call GetParam and Run against the ExecutionContext it is given.
//
// Go methods cannot introduce their own type parameters, so Execute and
// Run are free generic functions (§4.F, §4.G) rather than generic
// methods on Reactor/ExecutionContext.
type Query[T any] interface {
	ID() qid.QueryId
	Body(ctx context.Context, ec *ExecutionContext) (T, error)
}

// erasedQuery is the type-erased view of a Query[T] the reactor's
// internals operate on: dedup, the cache, and past_queries never know
// the original static response type.
type erasedQuery interface {
	ID() qid.QueryId
	runBody(ctx context.Context, ec *ExecutionContext) (qid.Object, error)
}

type erasedWrapper[T any] struct {
	q Query[T]
}

func (w erasedWrapper[T]) ID() qid.QueryId {
	return w.q.ID()
}

func (w erasedWrapper[T]) runBody(ctx context.Context, ec *ExecutionContext) (qid.Object, error) {
	v, err := w.q.Body(ctx, ec)
	return qid.Object(v), err
}

func erase[T any](q Query[T]) erasedQuery {
	return erasedWrapper[T]{q: q}
}
