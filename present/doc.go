// Package present implements the application-side handle surface for running
// thinkers. A Present refers to a live (or terminal) thinker and exposes
// pause, resume, cancel and await operations plus read-side snapshots of the
// thinker's output. Watchers attach to a Present to receive throttled change
// notifications after every write window.
//
// Releasing the last Present for a thinker that is still running cancels the
// computation and waits for it to unwind; the engine never leaves an
// unreferenced thinker running.
package present
