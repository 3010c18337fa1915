// Package qid holds the evaluator's data model: QueryId, Param[T], the
// opaque Object boxing/downcast contract, and the error-wrapping helpers
// shared by every other package.
package qid

import (
	"fmt"

	"github.com/pkg/errors"
)

// QueryId is the stable identity of a query or param. Equality and
// hashing are string-level; QueryId is cheap to copy and compare.
type QueryId string

// New builds a QueryId from a plain string, e.g. from a formatted name
// like fmt.Sprintf("RefRead(%d)", i).
func New(s string) QueryId {
	return QueryId(s)
}

// String renders a QueryId as "[<name>]".
func (q QueryId) String() string {
	return "[" + string(q) + "]"
}

// Hash is the HashFunc permap needs to address QueryId keys: an FNV-1a
// over the id's bytes, consumed by the trie four bits at a time.
func Hash(q QueryId) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(q); i++ {
		h ^= uint64(q[i])
		h *= 1099511628211
	}
	return h
}

// Param is a compile-time-typed handle for a top-level input. T is
// advisory: it constrains the type callers may Get/Set through this
// handle but carries no runtime representation of its own.
type Param[T any] struct {
	id QueryId
}

// NewParam declares a param with a fixed, stable id.
func NewParam[T any](name string) Param[T] {
	return Param[T]{id: QueryId(name)}
}

// ID returns the param's QueryId.
func (p Param[T]) ID() QueryId {
	return p.id
}

// Object is an opaque, heap-allocated, shareable value. Any Go value can
// be boxed as an Object (it is simply `any`); Downcast recovers the
// original static type, reporting an error instead of panicking on
// mismatch.
type Object = any

// Downcast recovers a T from a boxed Object, reporting a type-conflict
// error on mismatch rather than panicking. Per §7, type conflicts are
// terminal: they are never retried.
func Downcast[T any](obj Object) (T, error) {
	var zero T
	if obj == nil {
		return zero, errors.New("type conflict: object is nil")
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("type conflict: cannot downcast %T to %T", obj, zero)
	}
	return t, nil
}

// WithStack wraps err with a stack trace the first time it sees it,
// matching the teacher's juicemud.WithStack: idempotent so repeated
// wrapping up a call chain doesn't pile up redundant traces.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	type stackTracer interface {
		StackTrace() errors.StackTrace
	}
	if _, ok := err.(stackTracer); !ok {
		return errors.WithStack(err)
	}
	return err
}

// AsPartOf wraps err with "as a part of <id>" context, per §7's
// propagation rule for body errors bubbling through run chains.
func AsPartOf(err error, id QueryId) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, "as a part of %s", id)
}

// CycleError is returned by ExecutionContext.Run when a query calls
// itself, directly or transitively. Trace lists the cycle: the ids from
// the earlier occurrence of the repeated id down through the
// currently-running query, followed by the repeated id again.
type CycleError struct {
	Trace []QueryId
}

func (e *CycleError) Error() string {
	s := "cyclic dependency: "
	for i, id := range e.Trace {
		if i > 0 {
			s += ", "
		}
		s += id.String()
	}
	return s
}

// MissingParamError is returned by GetParam for an id with no stored
// value.
type MissingParamError struct {
	ID QueryId
}

func (e *MissingParamError) Error() string {
	return fmt.Sprintf("missing param %s", e.ID)
}
