package engine

// The push handshake. The pool only reveals the executing worker at dispatch
// time, so a runner must ask the controller to re-parent its thinker onto
// that worker before the body may run. Workers enqueue themselves and block;
// the controller (or its service goroutine) drains the queue, moves each
// thinker's affinity, and wakes everyone. This is the only direct
// synchronization between controller and worker outside the runner state
// machine.

// waitForPushToThread enqueues the runner for an affinity push and blocks
// until the controller has performed it. Called once per runner lifetime, on
// the worker.
func (m *Manager) waitForPushToThread(r *Runner) {
	m.assertNotManagerGoroutine("waitForPushToThread")

	m.pushMu.Lock()
	defer m.pushMu.Unlock()

	m.pushQueue = append(m.pushQueue, r)
	m.needsPush.Signal()

	// Queued notification for the service goroutine; coalesces if one is
	// already pending.
	select {
	case m.pushNotify <- struct{}{}:
	default:
	}

	for !r.pushed {
		m.werePushed.Wait()
	}
}

// ProcessPushesUntil drains the push queue, re-parenting every queued
// thinker onto its worker. With a nil target it returns after one drain;
// with a target it keeps draining until that specific runner has been
// pushed. Manager context only.
func (m *Manager) ProcessPushesUntil(target *Runner) {
	m.assertManagerGoroutine("ProcessPushesUntil")

	m.pushMu.Lock()
	defer m.pushMu.Unlock()

	for {
		// The service goroutine may already have pushed the target.
		found := target != nil && target.pushed
		for _, queued := range m.pushQueue {
			queued.doThreadPush()
			queued.pushed = true
			if queued == target {
				found = true
			}
		}
		m.pushQueue = m.pushQueue[:0]
		m.werePushed.Broadcast()

		if found || target == nil {
			return
		}
		m.needsPush.Wait()
	}
}
