package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cogito/core"
	"github.com/hupe1980/cogito/internal/testutil"
)

func TestPush_AffinityFollowsWorkerDuringRun(t *testing.T) {
	m := newTestManager(t)

	affinity := make(chan int, 1)
	th := &hookThinker{}
	th.think = func(tc *core.ThinkContext) error {
		affinity <- th.Base().Affinity()
		return nil
	}

	r := m.CreateRunnerFor(th)
	r.WaitForFinished()

	select {
	case got := <-affinity:
		assert.NotZero(t, got, "thinker must be parented to its worker while thinking")
	case <-time.After(time.Second):
		t.Fatal("body never ran")
	}

	// On exit the affinity returns to the controller.
	assert.Zero(t, th.Base().Affinity())

	m.Close()
}

func TestPush_ProcessPushesUntilTargetReturnsOncePushed(t *testing.T) {
	m := newTestManager(t)

	th := testutil.NewSpinThinker()
	r := m.CreateRunnerFor(th)

	// Direct drive from the controller; returns no later than the target's
	// handshake, regardless of what the service goroutine already did.
	m.ProcessPushesUntil(r)

	m.pushMu.Lock()
	assert.True(t, r.pushed)
	m.pushMu.Unlock()

	m.RequestAndWaitCancel(th)
	m.Close()
}

func TestPush_ProcessPushesRequiresManagerGoroutine(t *testing.T) {
	m := newTestManager(t)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.Panics(t, func() { m.ProcessPushesUntil(nil) })
	}()
	<-done

	m.Close()
}

func TestPush_ManyRunnersAllGetPushed(t *testing.T) {
	m := newTestManager(t)

	thinkers := make([]*testutil.CountingThinker, 8)
	runners := make([]*Runner, 8)
	for i := range thinkers {
		thinkers[i] = testutil.NewCountingThinker(1_000)
		runners[i] = m.CreateRunnerFor(thinkers[i])
	}

	for i, r := range runners {
		r.WaitForFinished()
		require.Equal(t, 1_000, thinkers[i].Count(), "thinker %d", i)
	}

	m.Close()
}
