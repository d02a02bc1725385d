package core

import "errors"

// ErrStopRequested is returned by ThinkContext.PollForStop when the
// computation must stop. Bodies propagate it unchanged out of Think; the
// runner recovers it exactly once at its boundary and never calls user code
// again afterwards.
var ErrStopRequested = errors.New("cogito: stop requested")

// FinishedFunc is invoked once per runner when its thinker reaches a
// terminal state. wasCanceled reports whether the computation was stopped
// rather than running to natural completion. A later relabel of a finished
// thinker to canceled does not fire a second call.
type FinishedFunc func(th Thinker, wasCanceled bool)

// WatcherNotifier is the throttled notification capability a watcher
// attaches to a thinker. Pulse is invoked after every write window; the
// implementation coalesces bursts.
type WatcherNotifier interface {
	Pulse()
}

// WriteObserver receives the end of every write window on a thinker's
// observable output. The engine implements it to fan the signal out to
// watchers and the engine-wide write notifier.
type WriteObserver interface {
	UnlockThinker(b *ThinkerBase)
}
