package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/cogito/core"
	"github.com/hupe1980/cogito/internal/invariant"
	"github.com/hupe1980/cogito/internal/util"
)

// State is the runner lifecycle state. The transition set is closed; any
// transition outside it is a programming error.
type State int32

const (
	// StateInitializing is the state from construction until the worker has
	// completed the affinity handshake.
	StateInitializing State = iota
	// StateThinking means the user body is executing.
	StateThinking
	// StatePausing means a pause was requested but the body has not reached
	// its next poll yet.
	StatePausing
	// StatePaused means the body is parked inside PollForStop with no user
	// frame making progress.
	StatePaused
	// StateResuming means a resume was requested and the worker has not
	// woken yet.
	StateResuming
	// StateCanceling means a cancel was requested and the body has not
	// observed it yet.
	StateCanceling
	// StateCanceled is terminal: the computation was stopped.
	StateCanceled
	// StateFinished is terminal: the computation completed naturally. It may
	// be relabeled StateCanceled exactly once by a later cancel request.
	StateFinished
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "Initializing"
	case StateThinking:
		return "Thinking"
	case StatePausing:
		return "Pausing"
	case StatePaused:
		return "Paused"
	case StateResuming:
		return "Resuming"
	case StateCanceling:
		return "Canceling"
	case StateCanceled:
		return "Canceled"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the state is Canceled or Finished.
func (s State) Terminal() bool {
	return s == StateCanceled || s == StateFinished
}

func validTransition(from, to State) bool {
	switch from {
	case StateInitializing:
		// Pausing and Canceling are reachable before the body starts when
		// the controller issues requests while the runner is still queued.
		return to == StateThinking || to == StatePausing || to == StateCanceling
	case StateThinking:
		return to == StatePausing || to == StateCanceling || to == StateFinished
	case StatePausing:
		// Finished is reachable when the body returns naturally after the
		// pause request but before its next poll.
		return to == StatePaused || to == StateCanceling || to == StateFinished
	case StatePaused:
		return to == StateResuming || to == StateCanceled
	case StateResuming:
		return to == StateThinking || to == StatePausing || to == StateCanceling
	case StateCanceling:
		return to == StateCanceled
	case StateFinished:
		return to == StateCanceled
	default:
		return false
	}
}

// Runner drives one thinker through its lifecycle on a pooled worker. Callers
// never construct a Runner directly; Manager.CreateRunnerFor does.
//
// All request/wait methods may be called from the controller or a handle
// goroutine, never from the runner's own worker.
type Runner struct {
	mgr     *Manager
	thinker core.Thinker

	// mu is the signal mutex guarding state; cond pulses on every
	// transition.
	mu       sync.Mutex
	cond     *sync.Cond
	state    State
	detached bool // set after the runner has left the manager's registries

	// worker is the bound pool worker id, written once in run before any
	// cross-goroutine publication.
	worker int

	// pushed is guarded by the manager's push mutex.
	pushed bool

	// workerGID is the goroutine id executing run, for wrong-goroutine
	// assertions.
	workerGID atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

func newRunner(mgr *Manager, th core.Thinker) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		mgr:     mgr,
		thinker: th,
		state:   StateInitializing,
		ctx:     ctx,
		cancel:  cancel,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Thinker returns the thinker this runner owns.
func (r *Runner) Thinker() core.Thinker { return r.thinker }

// State returns a snapshot of the runner state. Clients must not depend on
// the state staying stable after the call returns; use the wait operations
// for synchronization.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsPaused reports whether the runner is currently paused.
func (r *Runner) IsPaused() bool { return r.State() == StatePaused }

// IsCanceled reports whether the runner is canceled.
func (r *Runner) IsCanceled() bool { return r.State() == StateCanceled }

// IsFinished reports whether the runner finished naturally.
func (r *Runner) IsFinished() bool { return r.State() == StateFinished }

// toLocked performs a transition under the signal mutex and pulses the
// state-change condition. The edge must be in the closed transition set.
func (r *Runner) toLocked(next State) {
	invariant.That(validTransition(r.state, next), "illegal runner transition %s -> %s", r.state, next)
	r.state = next
	r.cond.Broadcast()
}

func (r *Runner) assertNotWorkerGoroutine(op string) {
	gid := r.workerGID.Load()
	invariant.That(gid == 0 || gid != util.GoroutineID(), "%s called from the runner's own worker", op)
}

// RequestPause asks the runner to park at its next poll. canceledOK accepts
// a runner that is already canceled (or finished) as success; without it,
// pausing a canceled runner is a programming error.
func (r *Runner) RequestPause(canceledOK bool) {
	r.assertNotWorkerGoroutine("RequestPause")
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateInitializing, StateThinking, StateResuming:
		r.toLocked(StatePausing)
	case StatePausing, StatePaused:
		// already heading there
	case StateCanceling:
		// the cancel supersedes the pause
	case StateCanceled, StateFinished:
		invariant.That(canceledOK, "pause requested on %s runner", r.state)
	}
}

// WaitForPause blocks until the runner is parked (or terminal). With
// canceledOK false, reaching Canceled instead of Paused is a programming
// error.
func (r *Runner) WaitForPause(canceledOK bool) {
	r.assertNotWorkerGoroutine("WaitForPause")
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.state != StatePaused && r.state != StateCanceled && r.state != StateFinished {
		r.cond.Wait()
	}
	if r.state == StateCanceled {
		invariant.That(canceledOK, "runner was canceled while waiting for pause")
	}
}

// RequestResume wakes a paused runner. On a non-paused runner it is a no-op
// when canceledOK is set; otherwise a programming error.
func (r *Runner) RequestResume(canceledOK bool) {
	r.assertNotWorkerGoroutine("RequestResume")
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StatePaused {
		r.toLocked(StateResuming)
		return
	}
	invariant.That(canceledOK, "resume requested in state %s", r.state)
}

// WaitForResume blocks until the runner has left Resuming (back to Thinking,
// or to a terminal state if it was canceled meanwhile).
func (r *Runner) WaitForResume() {
	r.assertNotWorkerGoroutine("WaitForResume")
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.state == StateResuming {
		r.cond.Wait()
	}
}

// RequestCancel asks the runner to stop. Valid from any non-terminal state;
// a paused runner is canceled directly (the worker wakes and unwinds), a
// finished runner is relabeled canceled. Canceling an already canceled
// runner requires alreadyCanceledOK.
func (r *Runner) RequestCancel(alreadyCanceledOK bool) {
	r.assertNotWorkerGoroutine("RequestCancel")

	relabel := r.requestCancelCore(alreadyCanceledOK)

	r.cancel()
	if relabel {
		r.mgr.relabelThinkerCanceled(r.thinker)
	}
}

func (r *Runner) requestCancelCore(alreadyCanceledOK bool) (relabel bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case StateInitializing, StateThinking, StatePausing, StateResuming:
		r.toLocked(StateCanceling)
	case StatePaused:
		r.toLocked(StateCanceled)
	case StateCanceling:
		// already on the way out
	case StateCanceled:
		invariant.That(alreadyCanceledOK, "cancel requested on canceled runner")
	case StateFinished:
		r.toLocked(StateCanceled)
		relabel = true
	}
	return relabel
}

// WaitForFinished blocks until the runner has reached a terminal state and
// left the manager's registries, so the thinker's terminal state is visible
// and the maps are coherent when it returns.
func (r *Runner) WaitForFinished() {
	r.assertNotWorkerGoroutine("WaitForFinished")
	r.mu.Lock()
	defer r.mu.Unlock()

	for !r.state.Terminal() || !r.detached {
		r.cond.Wait()
	}
}

// RequestFinishAndWait lets the runner run to natural completion (resuming
// it if paused) and waits for the terminal state.
func (r *Runner) RequestFinishAndWait() {
	r.assertNotWorkerGoroutine("RequestFinishAndWait")
	if r.IsPaused() {
		r.RequestResume(false)
		r.WaitForResume()
	}
	r.WaitForFinished()
}

// pollForStop is the worker-side suspension point, invoked through the
// ThinkContext. It blocks while paused and reports cancellation via
// ErrStopRequested.
func (r *Runner) pollForStop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		switch r.state {
		case StateThinking:
			return nil
		case StatePausing:
			r.toLocked(StatePaused)
			for r.state == StatePaused {
				r.cond.Wait()
			}
			// dispatch again on the post-pause state
		case StateResuming:
			r.toLocked(StateThinking)
			return nil
		case StateCanceling, StateCanceled:
			return core.ErrStopRequested
		default:
			invariant.Unreachable("poll in state %s", r.state)
		}
	}
}

// enterThinking moves the runner out of Initializing once the handshake is
// done, honoring pause/cancel requests that arrived while the runner was
// still queued. It returns ErrStopRequested if the runner was canceled
// before the body ever started.
func (r *Runner) enterThinking() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		switch r.state {
		case StateInitializing:
			r.toLocked(StateThinking)
			return nil
		case StatePausing:
			r.toLocked(StatePaused)
			for r.state == StatePaused {
				r.cond.Wait()
			}
		case StateResuming:
			r.toLocked(StateThinking)
			return nil
		case StateCanceling, StateCanceled:
			return core.ErrStopRequested
		default:
			invariant.Unreachable("start in state %s", r.state)
		}
	}
}

// settle writes the terminal state for the body's outcome and reports
// whether the computation counts as canceled.
func (r *Runner) settle(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case err == nil:
		switch r.state {
		case StateThinking:
			r.toLocked(StateFinished)
			return false
		case StatePausing:
			// the pause arrived after the body's last poll; it has already
			// left the stack, so the runner finishes instead of parking
			r.toLocked(StateFinished)
			return false
		case StateCanceling:
			r.toLocked(StateCanceled)
			return true
		case StateCanceled:
			return true
		default:
			invariant.Unreachable("natural return in state %s", r.state)
			return false
		}
	case errors.Is(err, core.ErrStopRequested):
		switch r.state {
		case StateCanceling:
			r.toLocked(StateCanceled)
		case StateCanceled:
			// canceled while paused; terminal state already written
		default:
			invariant.Unreachable("stop unwind in state %s", r.state)
		}
		return true
	default:
		// A body that fails on its own is treated as canceled, with the
		// error surfaced through the logger.
		r.mgr.logger.Error("thinker body failed",
			"thinker", r.thinker.Base().ID(), "error", err)
		switch r.state {
		case StateThinking, StateResuming:
			r.toLocked(StateCanceling)
			r.toLocked(StateCanceled)
		case StatePausing:
			r.toLocked(StatePaused)
			r.toLocked(StateCanceled)
		case StateCanceling:
			r.toLocked(StateCanceled)
		case StateCanceled:
		default:
			invariant.Unreachable("body error in state %s", r.state)
		}
		return true
	}
}

// markDetached records that the runner has left the manager's registries and
// wakes finish waiters.
func (r *Runner) markDetached() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detached = true
	r.cond.Broadcast()
}

// doThreadPush re-parents the thinker onto the runner's worker. Called by
// the controller while draining the push queue, under the push mutex.
func (r *Runner) doThreadPush() {
	r.thinker.Base().MoveTo(r.worker)
}

// run is the worker body, dispatched by the pool.
func (r *Runner) run(worker int) {
	r.worker = worker
	r.workerGID.Store(util.GoroutineID())
	defer r.workerGID.Store(0)

	// One-time handshake: the controller must re-parent the thinker onto
	// this worker before the body may run.
	r.mgr.waitForPushToThread(r)
	invariant.That(r.thinker.Base().Affinity() == worker, "thinker affinity did not follow the worker")

	r.mgr.addToThreadMap(r, worker)

	err := r.enterThinking()
	if err == nil {
		tc := core.NewThinkContext(r.ctx, r.pollForStop, r.mgr.logger)
		err = r.thinker.Think(tc)
	}
	wasCanceled := r.settle(err)

	r.cancel()

	r.mgr.removeFromThreadMap(worker)
	r.mgr.removeFromThinkerMap(r)

	// Emit before waking finish waiters so that once WaitForFinished
	// returns, the finished signal has been delivered.
	r.mgr.emitFinished(r.thinker, wasCanceled)

	r.markDetached()
}
