package tracer

import (
	"fmt"
	"io"
	"sync"

	goccy "github.com/goccy/go-json"
	"github.com/pkg/errors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kvlabs/queries/cache"
	"github.com/kvlabs/queries/qid"
)

// wireCacheEntry is the JSON shape of a Cached value in the trace
// stream, per §6: value, fingerprint, and the three *_state maps as
// {id: fingerprint}.
type wireCacheEntry struct {
	Value            string            `json:"value"`
	Fingerprint      string            `json:"fingerprint"`
	WorldState       map[string]string `json:"world_state"`
	DepsState        map[string]string `json:"deps_state"`
	DirectWorldState map[string]string `json:"direct_world_state"`
}

func depMapToWire(m cache.DepMap) map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for id, fp := range m.All() {
		out[string(id)] = fp.String()
	}
	return out
}

func translate(entry cache.Cached) wireCacheEntry {
	value := "<error>"
	fp := ""
	if entry.Result.OK() {
		value = fmt.Sprintf("%v", entry.Result.Value)
		fp = entry.Result.Fingerprint.String()
	} else if entry.Result.Err != nil {
		value = entry.Result.Err.Error()
	}
	return wireCacheEntry{
		Value:            value,
		Fingerprint:      fp,
		WorldState:       depMapToWire(entry.WorldState),
		DepsState:        depMapToWire(entry.DepsState),
		DirectWorldState: depMapToWire(entry.DirectWorldState),
	}
}

func stackStrings(stack []qid.QueryId) []string {
	out := make([]string, len(stack))
	for i, id := range stack {
		out[i] = id.String()
	}
	return out
}

// FileTracer writes the spec's JSONL trace event stream to a
// log-rotated file, using the same lumberjack.Logger + json.Encoder
// pairing the teacher's audit log uses.
type FileTracer struct {
	mu  sync.Mutex
	enc *goccy.Encoder
	out io.WriteCloser
}

// NewFileTracer opens (creating if necessary) a rotating trace file at
// path.
func NewFileTracer(path string) *FileTracer {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     365,
		Compress:   true,
	}
	return &FileTracer{out: w, enc: goccy.NewEncoder(w)}
}

func (f *FileTracer) emit(envelope map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enc.Encode(envelope); err != nil {
		panic(fmt.Sprintf("trace JSONL encode failed: %v", err))
	}
}

func (f *FileTracer) CachePush(key qid.QueryId, entry cache.Cached, stack []qid.QueryId) {
	f.emit(map[string]any{"Push": map[string]any{
		"key": key.String(), "entry": translate(entry), "stack": stackStrings(stack),
	}})
}

func (f *FileTracer) CachePull(key qid.QueryId, reason string, stack []qid.QueryId) {
	f.emit(map[string]any{"Pull": map[string]any{
		"key": key.String(), "reason": reason, "stack": stackStrings(stack),
	}})
}

func (f *FileTracer) CacheRemove(key qid.QueryId, stack []qid.QueryId) {
	f.emit(map[string]any{"Remove": map[string]any{
		"key": key.String(), "stack": stackStrings(stack),
	}})
}

func (f *FileTracer) CacheModify(key qid.QueryId, entry cache.Cached, stack []qid.QueryId) {
	f.emit(map[string]any{"Modify": map[string]any{
		"key": key.String(), "entry": translate(entry), "stack": stackStrings(stack),
	}})
}

func (f *FileTracer) BodyExecuted(key qid.QueryId, stack []qid.QueryId) {
	f.emit(map[string]any{"BodyExecuted": map[string]any{
		"key": key.String(), "stack": stackStrings(stack),
	}})
}

// NewChapter marks the start of a new logical run within the same trace
// file, recording data together with fp, a caller-supplied chapter key
// written as its String() form (queryctl passes a fresh UUID). Nothing is
// hashed here.
func (f *FileTracer) NewChapter(data string, fp fmt.Stringer) {
	f.emit(map[string]any{"NewChapter": map[string]any{
		"data": data, "fingerprint": fp.String(),
	}})
}

// Close emits the terminal End event and closes the underlying file.
func (f *FileTracer) Close() error {
	f.emit(map[string]any{"End": map[string]any{}})
	f.mu.Lock()
	defer f.mu.Unlock()
	return errors.WithStack(f.out.Close())
}

// Multi fans a single Trace call out to several tracers, e.g. the
// reactor's always-on Recorder plus an optional FileTracer.
type Multi struct {
	Tracers []Trace
}

func (m Multi) CachePush(key qid.QueryId, entry cache.Cached, stack []qid.QueryId) {
	for _, t := range m.Tracers {
		t.CachePush(key, entry, stack)
	}
}

func (m Multi) CachePull(key qid.QueryId, reason string, stack []qid.QueryId) {
	for _, t := range m.Tracers {
		t.CachePull(key, reason, stack)
	}
}

func (m Multi) CacheRemove(key qid.QueryId, stack []qid.QueryId) {
	for _, t := range m.Tracers {
		t.CacheRemove(key, stack)
	}
}

func (m Multi) CacheModify(key qid.QueryId, entry cache.Cached, stack []qid.QueryId) {
	for _, t := range m.Tracers {
		t.CacheModify(key, entry, stack)
	}
}

func (m Multi) BodyExecuted(key qid.QueryId, stack []qid.QueryId) {
	for _, t := range m.Tracers {
		t.BodyExecuted(key, stack)
	}
}
