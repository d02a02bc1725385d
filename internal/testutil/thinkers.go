// Package testutil provides canned thinkers and observers shared by the
// engine, present and facade tests.
package testutil

import (
	"sync"
	"time"

	"github.com/hupe1980/cogito/core"
)

// CountingThinker increments a counter up to Target, opening a write window
// for every increment and polling after each step.
type CountingThinker struct {
	core.ThinkerBase

	Target int

	count int
}

// NewCountingThinker creates a counter that stops after target increments.
func NewCountingThinker(target int) *CountingThinker {
	return &CountingThinker{Target: target}
}

// Base exposes the embedded ThinkerBase.
func (t *CountingThinker) Base() *core.ThinkerBase { return &t.ThinkerBase }

// Think runs the counting loop.
func (t *CountingThinker) Think(tc *core.ThinkContext) error {
	for i := 0; i < t.Target; i++ {
		t.LockForWrite()
		t.count++
		t.Unlock()

		if err := tc.PollForStop(); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the counter under a read hold.
func (t *CountingThinker) Count() int {
	t.RLockOutput()
	defer t.RUnlockOutput()
	return t.count
}

// SpinThinker polls in a tight loop until it is canceled; it never finishes
// naturally.
type SpinThinker struct {
	core.ThinkerBase
}

// NewSpinThinker creates a spinner.
func NewSpinThinker() *SpinThinker { return &SpinThinker{} }

// Base exposes the embedded ThinkerBase.
func (t *SpinThinker) Base() *core.ThinkerBase { return &t.ThinkerBase }

// Think spins until stopped.
func (t *SpinThinker) Think(tc *core.ThinkContext) error {
	for {
		if err := tc.PollForStop(); err != nil {
			return err
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// GateThinker blocks on a gate before each poll so tests can control exactly
// when the body observes controller requests.
type GateThinker struct {
	core.ThinkerBase

	gate chan struct{}
}

// NewGateThinker creates a gated thinker.
func NewGateThinker() *GateThinker {
	return &GateThinker{gate: make(chan struct{})}
}

// Base exposes the embedded ThinkerBase.
func (t *GateThinker) Base() *core.ThinkerBase { return &t.ThinkerBase }

// Step lets the body proceed to its next poll.
func (t *GateThinker) Step() { t.gate <- struct{}{} }

// Think waits on the gate, polls, and repeats until stopped.
func (t *GateThinker) Think(tc *core.ThinkContext) error {
	for range t.gate {
		if err := tc.PollForStop(); err != nil {
			return err
		}
	}
	return nil
}

// FailingThinker returns its error from Think without polling.
type FailingThinker struct {
	core.ThinkerBase

	Err error
}

// Base exposes the embedded ThinkerBase.
func (t *FailingThinker) Base() *core.ThinkerBase { return &t.ThinkerBase }

// Think fails immediately.
func (t *FailingThinker) Think(tc *core.ThinkContext) error { return t.Err }

// FinishRecord is one finished notification.
type FinishRecord struct {
	Thinker     core.Thinker
	WasCanceled bool
}

// FinishRecorder collects finished notifications thread-safely.
type FinishRecorder struct {
	mu      sync.Mutex
	records []FinishRecord
}

// Record is the core.FinishedFunc to register with the manager.
func (r *FinishRecorder) Record(th core.Thinker, wasCanceled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, FinishRecord{Thinker: th, WasCanceled: wasCanceled})
}

// Records returns a copy of the collected notifications.
func (r *FinishRecorder) Records() []FinishRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FinishRecord, len(r.records))
	copy(out, r.records)
	return out
}
