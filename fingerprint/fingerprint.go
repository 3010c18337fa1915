// Package fingerprint computes the 128-bit content hashes the rest of
// the evaluator uses to decide whether a cached result can be reused.
package fingerprint

import (
	"fmt"

	"github.com/dchest/siphash"
	goccy "github.com/goccy/go-json"
	"github.com/pkg/errors"
)

// Fingerprint is a 128-bit value, equal iff produced from byte-equal
// serialized inputs. It carries no reference to the object it was
// stamped from and is safe to copy and compare with ==.
type Fingerprint struct {
	hi uint64
	lo uint64
}

// key0/key1 are the fixed siphash keys for the process. They only need
// to be stable for the lifetime of one reactor, not across processes:
// fingerprints are never persisted or compared cross-process (§1
// Non-goals excludes durable/distributed caching).
const (
	key0 uint64 = 0x9e3779b97f4a7c15
	key1 uint64 = 0xc2b2ae3d27d4eb4f
)

// Fingerprintable lets a type control exactly which bytes feed its
// fingerprint, bypassing the JSON-serialization fallback. Useful for
// types (large slices, externally-defined types without struct tags)
// where the default encoding would be wasteful or non-deterministic.
type Fingerprintable interface {
	FingerprintBytes() ([]byte, error)
}

// Stamp serializes obj deterministically and returns its fingerprint
// alongside the (unconsumed) object, matching the spec's
// stamp(obj) -> (Fingerprint, Object) contract.
func Stamp[T any](obj T) (Fingerprint, T, error) {
	var data []byte
	var err error
	if fp, ok := any(obj).(Fingerprintable); ok {
		data, err = fp.FingerprintBytes()
	} else {
		data, err = goccy.Marshal(obj)
	}
	if err != nil {
		var zero Fingerprint
		return zero, obj, errors.Wrap(err, "serializing object for fingerprinting")
	}
	hi, lo := siphash.Hash128(key0, key1, data)
	return Fingerprint{hi: hi, lo: lo}, obj, nil
}

// Equal reports whether two fingerprints were produced from byte-equal
// serialized inputs.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f.hi == other.hi && f.lo == other.lo
}

// String renders the fingerprint as "<hi16>~<lo16>": four hex digits of
// the high word, a tilde, four hex digits of the low word.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%04x~%04x", f.hi>>48, f.lo&0xffff)
}
