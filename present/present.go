package present

import (
	"sync/atomic"

	"github.com/hupe1980/cogito/core"
	"github.com/hupe1980/cogito/engine"
	"github.com/hupe1980/cogito/internal/invariant"
	"github.com/hupe1980/cogito/snapshot"
)

// Present is a handle to a thinker managed by an engine.Manager. Handles are
// reference counted; Clone creates additional ones. All methods are safe for
// concurrent use.
type Present struct {
	mgr     *engine.Manager
	thinker core.Thinker

	released atomic.Bool
}

// New creates the first handle for a thinker that was just submitted to the
// manager. The facade calls this; applications receive the Present from
// Spawn.
func New(mgr *engine.Manager, th core.Thinker) *Present {
	th.Base().Retain()
	return &Present{mgr: mgr, thinker: th}
}

// Thinker returns the underlying thinker.
func (p *Present) Thinker() core.Thinker { return p.thinker }

// Clone creates an additional handle referring to the same thinker.
func (p *Present) Clone() *Present {
	invariant.That(!p.released.Load(), "clone of released handle")
	p.thinker.Base().Retain()
	return &Present{mgr: p.mgr, thinker: p.thinker}
}

// Release drops this handle. When the last handle for a still-running
// thinker is released, the computation is canceled and awaited. Release is
// idempotent per handle.
func (p *Present) Release() {
	if !p.released.CompareAndSwap(false, true) {
		return
	}
	if p.thinker.Base().ReleaseHandle() > 0 {
		return
	}
	if p.thinker.Base().State() == core.ThinkerOwnedByRunner {
		p.mgr.RequestAndWaitCancel(p.thinker)
	}
}

// Pause parks the computation at its next poll and waits until it is
// quiescent (or already terminal).
func (p *Present) Pause() {
	if r := p.runner(); r != nil {
		r.RequestPause(true)
		r.WaitForPause(true)
	}
}

// Resume wakes a paused computation; a terminal one is left alone.
func (p *Present) Resume() {
	if r := p.runner(); r != nil {
		r.RequestResume(true)
	}
}

// Cancel stops the computation and waits for it to unwind. Idempotent.
func (p *Present) Cancel() {
	p.mgr.RequestAndWaitCancel(p.thinker)
}

// WaitForFinished blocks until the computation reaches a terminal state.
func (p *Present) WaitForFinished() {
	if r := p.runner(); r != nil {
		r.WaitForFinished()
	}
}

// IsPaused reports whether the computation is currently paused.
func (p *Present) IsPaused() bool {
	r := p.runner()
	return r != nil && r.IsPaused()
}

// IsCanceled reports whether the thinker ended canceled.
func (p *Present) IsCanceled() bool {
	return p.thinker.Base().State() == core.ThinkerCanceled
}

// IsFinished reports whether the thinker finished naturally.
func (p *Present) IsFinished() bool {
	return p.thinker.Base().State() == core.ThinkerFinished
}

// State returns the thinker's user-visible state.
func (p *Present) State() core.ThinkerState {
	return p.thinker.Base().State()
}

// Snapshot takes a read hold on the thinker's output and encodes it. The
// second result is false if the thinker does not implement
// snapshot.Snapshottable.
func (p *Present) Snapshot() (snapshot.Snapshot, bool, error) {
	s, ok := p.thinker.(snapshot.Snapshottable)
	if !ok {
		return snapshot.Snapshot{}, false, nil
	}

	b := p.thinker.Base()
	b.RLockOutput()
	defer b.RUnlockOutput()

	snap, err := snapshot.Marshal(s.SnapshotOutput())
	return snap, true, err
}

func (p *Present) runner() *engine.Runner {
	return p.mgr.RunnerForThinker(p.thinker)
}
