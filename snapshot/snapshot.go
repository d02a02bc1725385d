// Package snapshot encodes a thinker's observable output into an immutable,
// fingerprinted blob that watchers and handles can hold without retaining a
// read lock. Encoding uses msgpack; the fingerprint is a farmhash of the
// encoded bytes, cheap enough to compare on every notification to suppress
// no-op updates.
package snapshot

import (
	"fmt"

	farm "github.com/dgryski/go-farm"
	"github.com/shamaton/msgpack/v2"
)

// Snapshottable is implemented by thinkers whose observable output can be
// snapshotted. SnapshotOutput is called under a read hold on the output
// lock; the returned value must be encodable by msgpack.
type Snapshottable interface {
	SnapshotOutput() any
}

// Snapshot is an encoded copy of a thinker's observable output at one point
// in time.
type Snapshot struct {
	Data []byte
	Hash uint64
}

// Marshal encodes v and fingerprints the result.
func Marshal(v any) (Snapshot, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode snapshot: %w", err)
	}
	return Snapshot{Data: data, Hash: farm.Hash64(data)}, nil
}

// Unmarshal decodes a snapshot into v, which must be a pointer.
func Unmarshal(s Snapshot, v any) error {
	if err := msgpack.Unmarshal(s.Data, v); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return nil
}

// Same reports whether two snapshots contain identical output, by
// fingerprint.
func (s Snapshot) Same(other Snapshot) bool {
	return s.Hash == other.Hash
}

// Empty reports whether the snapshot holds no data.
func (s Snapshot) Empty() bool { return len(s.Data) == 0 }
