package present

import (
	"sync/atomic"
	"time"

	"github.com/hupe1980/cogito/throttle"
)

// Watcher attaches to a Present and delivers throttled change notifications:
// at most one callback per interval, with at least one callback after the
// last write window. The callback runs on an engine goroutine and must not
// block; typically it schedules a snapshot read.
type Watcher struct {
	present   *Present
	throttler *throttle.Throttler
	detached  atomic.Bool
}

// NewWatcher attaches a watcher to the present's thinker. A non-positive
// interval uses the manager's configured notification window.
func NewWatcher(p *Present, interval time.Duration, notify func()) *Watcher {
	if interval <= 0 {
		interval = p.mgr.ThrottleInterval()
	}
	w := &Watcher{
		present:   p,
		throttler: throttle.New(interval, notify),
	}
	p.thinker.Base().AttachWatcher(w)
	return w
}

// Pulse implements core.WatcherNotifier; the engine invokes it after every
// write window.
func (w *Watcher) Pulse() { w.throttler.Emit() }

// Detach stops notifications and removes the watcher from the thinker.
// Idempotent.
func (w *Watcher) Detach() {
	if !w.detached.CompareAndSwap(false, true) {
		return
	}
	w.present.thinker.Base().DetachWatcher(w)
	w.throttler.Stop()
}
