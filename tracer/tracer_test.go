package tracer

import (
	"testing"

	"github.com/kvlabs/queries/cache"
	"github.com/kvlabs/queries/qid"
)

func TestRecorderOnlyTracksBodyExecuted(t *testing.T) {
	r := NewRecorder()
	r.CachePush(qid.New("A"), cache.Cached{}, nil)
	r.CachePull(qid.New("A"), "fast-hit", nil)
	r.BodyExecuted(qid.New("A"), nil)
	r.BodyExecuted(qid.New("B"), nil)

	got := r.Drain()
	want := []string{"[A]", "[B]"}
	if len(got) != len(want) {
		t.Fatalf("Drain() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Drain() = %v, want %v", got, want)
		}
	}
}

func TestRecorderAccumulatesAcrossDrains(t *testing.T) {
	r := NewRecorder()
	r.BodyExecuted(qid.New("A"), nil)
	first := r.Drain()
	r.BodyExecuted(qid.New("B"), nil)
	second := r.Drain()
	if len(first) != 1 || len(second) != 2 {
		t.Fatalf("Drain should accumulate: first=%v second=%v", first, second)
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := Multi{Tracers: []Trace{a, b}}
	m.BodyExecuted(qid.New("A"), nil)
	if len(a.Drain()) != 1 || len(b.Drain()) != 1 {
		t.Fatalf("Multi should forward to every tracer")
	}
}

func TestNoOpTraceDoesNothing(t *testing.T) {
	var tr Trace = NoOpTrace{}
	tr.CachePush(qid.New("A"), cache.Cached{}, nil)
	tr.BodyExecuted(qid.New("A"), nil)
}
