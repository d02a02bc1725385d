package core

import (
	"sync"
	"sync/atomic"

	"github.com/hupe1980/cogito/internal/invariant"
	"github.com/hupe1980/cogito/internal/util"
)

// ThinkerState is the user-visible lifecycle state of a Thinker.
type ThinkerState int32

const (
	// ThinkerOwnedByRunner means a runner currently owns the thinker and may
	// be executing its body. This is the zero value so a fresh thinker can be
	// handed to the engine directly.
	ThinkerOwnedByRunner ThinkerState = iota
	// ThinkerFinished means the computation ran to natural completion.
	ThinkerFinished
	// ThinkerCanceled means the computation was stopped before completing,
	// or was relabeled canceled after finishing.
	ThinkerCanceled
)

// String returns the string representation of the state.
func (s ThinkerState) String() string {
	switch s {
	case ThinkerOwnedByRunner:
		return "OwnedByRunner"
	case ThinkerFinished:
		return "Finished"
	case ThinkerCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Thinker is a user-supplied cooperative computation.
//
// Implementations embed ThinkerBase and provide Think, which must call
// tc.PollForStop at progress points and propagate its error unchanged. A
// thinker that never polls cannot be paused or canceled.
type Thinker interface {
	// Think runs the computation. It returns nil on natural completion, the
	// error from PollForStop when cooperatively stopping, or any other error
	// to abort.
	Think(tc *ThinkContext) error

	// Base exposes the embedded ThinkerBase for the engine and handles.
	Base() *ThinkerBase
}

// ThinkerBase carries the engine-facing state every Thinker needs: identity,
// lifecycle state, the observable-output lock, attached watchers, the handle
// refcount and the worker affinity. Embed it by value; the zero value is
// ready for use.
//
// The mutating methods (Bind, SetState, MoveTo, ResetAffinity) exist for the
// engine; applications should treat them as read-only surface.
type ThinkerBase struct {
	idOnce sync.Once
	id     string

	state atomic.Int32

	// outputMu guards the thinker's observable output. The body holds write
	// exclusivity inside LockForWrite/Unlock windows; watchers and handles
	// take read holds for snapshots.
	outputMu sync.RWMutex

	watchersMu sync.RWMutex
	watchers   map[WatcherNotifier]struct{}

	obsMu    sync.Mutex
	observer WriteObserver
	bound    bool

	handles  atomic.Int32
	affinity atomic.Int64
}

// NewID generates a new unique identifier for thinkers.
func NewID() string { return util.NewID() }

// ID returns the thinker's unique identifier, generating it on first use.
func (b *ThinkerBase) ID() string {
	b.idOnce.Do(func() { b.id = NewID() })
	return b.id
}

// State returns a snapshot of the lifecycle state.
func (b *ThinkerBase) State() ThinkerState {
	return ThinkerState(b.state.Load())
}

// SetState updates the lifecycle state. The engine calls this under its
// registry lock so state and registry membership stay coherent.
func (b *ThinkerBase) SetState(s ThinkerState) {
	b.state.Store(int32(s))
}

// Bind attaches the thinker to its write observer (the engine) and marks it
// owned. A thinker can only ever be bound once: exactly one runner may own
// it over its whole lifetime.
func (b *ThinkerBase) Bind(obs WriteObserver) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	invariant.That(!b.bound, "thinker %s was already owned by a runner", b.ID())
	b.bound = true
	b.observer = obs
}

// ReleaseObserver drops the back reference to the write observer. Called by
// the engine when the runner exits; the reference is only valid while the
// thinker is registered.
func (b *ThinkerBase) ReleaseObserver() {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	b.observer = nil
}

func (b *ThinkerBase) loadObserver() WriteObserver {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	return b.observer
}

// LockForWrite begins a write window on the thinker's observable output.
func (b *ThinkerBase) LockForWrite() {
	b.outputMu.Lock()
}

// Unlock ends a write window and notifies the engine, which pulses all
// attached watcher throttlers and the engine-wide write signal.
func (b *ThinkerBase) Unlock() {
	b.outputMu.Unlock()
	if obs := b.loadObserver(); obs != nil {
		obs.UnlockThinker(b)
	}
}

// RLockOutput takes a shared read hold on the observable output, for
// snapshots taken by watchers and handles.
func (b *ThinkerBase) RLockOutput() { b.outputMu.RLock() }

// RUnlockOutput releases a read hold taken with RLockOutput.
func (b *ThinkerBase) RUnlockOutput() { b.outputMu.RUnlock() }

// AttachWatcher registers a watcher notifier to be pulsed after every write
// window.
func (b *ThinkerBase) AttachWatcher(n WatcherNotifier) {
	b.watchersMu.Lock()
	defer b.watchersMu.Unlock()
	if b.watchers == nil {
		b.watchers = make(map[WatcherNotifier]struct{})
	}
	b.watchers[n] = struct{}{}
}

// DetachWatcher removes a previously attached watcher notifier.
func (b *ThinkerBase) DetachWatcher(n WatcherNotifier) {
	b.watchersMu.Lock()
	defer b.watchersMu.Unlock()
	delete(b.watchers, n)
}

// EachWatcher calls fn for every attached watcher under a read hold.
func (b *ThinkerBase) EachWatcher(fn func(WatcherNotifier)) {
	b.watchersMu.RLock()
	defer b.watchersMu.RUnlock()
	for n := range b.watchers {
		fn(n)
	}
}

// Retain increments the handle refcount and returns the new count.
func (b *ThinkerBase) Retain() int32 { return b.handles.Add(1) }

// ReleaseHandle decrements the handle refcount and returns the new count.
func (b *ThinkerBase) ReleaseHandle() int32 { return b.handles.Add(-1) }

// Affinity returns the worker id the thinker is currently parented to;
// zero means the controller.
func (b *ThinkerBase) Affinity() int { return int(b.affinity.Load()) }

// MoveTo re-parents the thinker onto a worker. Only the controller performs
// this, as part of the push handshake.
func (b *ThinkerBase) MoveTo(worker int) { b.affinity.Store(int64(worker)) }

// ResetAffinity returns the thinker's affinity to the controller when the
// runner exits.
func (b *ThinkerBase) ResetAffinity() { b.affinity.Store(0) }
