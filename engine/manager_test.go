package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/cogito/core"
	"github.com/hupe1980/cogito/internal/testutil"
	"github.com/hupe1980/cogito/pool"
)

func newTestManager(t *testing.T, optFns ...func(o *Options)) *Manager {
	t.Helper()
	m := New(append([]func(o *Options){func(o *Options) {
		o.Config.MaxWorkers = 4
	}}, optFns...)...)
	return m
}

func TestManager_NaturalCompletion(t *testing.T) {
	rec := &testutil.FinishRecorder{}
	m := newTestManager(t, func(o *Options) { o.OnFinished = rec.Record })

	th := testutil.NewCountingThinker(10_000)
	r := m.CreateRunnerFor(th)

	r.WaitForFinished()

	require.Len(t, rec.Records(), 1)
	assert.False(t, rec.Records()[0].WasCanceled)
	assert.Equal(t, 10_000, th.Count())
	assert.Equal(t, core.ThinkerFinished, th.Base().State())

	m.mapsMu.Lock()
	assert.Empty(t, m.thinkerMap)
	assert.Empty(t, m.threadMap)
	m.mapsMu.Unlock()

	m.Close()
}

func TestManager_CancelInterruptsComputation(t *testing.T) {
	rec := &testutil.FinishRecorder{}
	m := newTestManager(t, func(o *Options) { o.OnFinished = rec.Record })

	th := testutil.NewCountingThinker(1 << 30)
	m.CreateRunnerFor(th)

	require.Eventually(t, func() bool { return th.Count() >= 10 }, 5*time.Second, time.Millisecond)

	m.RequestAndWaitCancel(th)

	require.Len(t, rec.Records(), 1)
	assert.True(t, rec.Records()[0].WasCanceled)
	assert.GreaterOrEqual(t, th.Count(), 10)
	assert.Equal(t, core.ThinkerCanceled, th.Base().State())

	m.Close()
}

func TestManager_EnsureAllPausedAndResumed(t *testing.T) {
	m := newTestManager(t)

	thinkers := []*testutil.SpinThinker{
		testutil.NewSpinThinker(),
		testutil.NewSpinThinker(),
		testutil.NewSpinThinker(),
	}
	runners := make([]*Runner, len(thinkers))
	for i, th := range thinkers {
		runners[i] = m.CreateRunnerFor(th)
	}

	m.EnsureAllPaused()
	for _, r := range runners {
		assert.Equal(t, StatePaused, r.State())
	}

	m.EnsureAllResumed()
	for _, r := range runners {
		r.WaitForResume()
	}

	for _, th := range thinkers {
		m.RequestAndWaitCancel(th)
		assert.Equal(t, core.ThinkerCanceled, th.Base().State())
	}

	m.Close()
}

func TestManager_EnsureFinishedResumesPausedRunner(t *testing.T) {
	m := newTestManager(t)

	th := testutil.NewCountingThinker(50_000)
	r := m.CreateRunnerFor(th)

	r.RequestPause(false)
	r.WaitForPause(false)
	require.Equal(t, StatePaused, r.State())

	m.EnsureFinished(th)
	assert.Equal(t, core.ThinkerFinished, th.Base().State())
	assert.Equal(t, 50_000, th.Count())

	m.Close()
}

func TestManager_EnsureFinishedWithoutRunnerAssertsTerminal(t *testing.T) {
	m := newTestManager(t)

	th := testutil.NewCountingThinker(10)
	r := m.CreateRunnerFor(th)
	r.WaitForFinished()

	// No runner anymore; the already finished thinker passes through.
	m.EnsureFinished(th)
	assert.Equal(t, core.ThinkerFinished, th.Base().State())

	m.Close()
}

func TestManager_CancelWithoutRunnerMarksCanceled(t *testing.T) {
	m := newTestManager(t)

	th := testutil.NewCountingThinker(10)
	r := m.CreateRunnerFor(th)
	r.WaitForFinished()

	m.RequestAndWaitCancel(th)
	assert.Equal(t, core.ThinkerCanceled, th.Base().State())

	m.Close()
}

func TestManager_PostFinishCancelRelabels(t *testing.T) {
	rec := &testutil.FinishRecorder{}
	m := newTestManager(t, func(o *Options) { o.OnFinished = rec.Record })

	th := testutil.NewCountingThinker(5)
	r := m.CreateRunnerFor(th)
	r.WaitForFinished()

	require.Equal(t, core.ThinkerFinished, th.Base().State())
	require.Len(t, rec.Records(), 1)
	require.False(t, rec.Records()[0].WasCanceled)

	m.RequestAndWaitCancel(th)

	assert.Equal(t, core.ThinkerCanceled, th.Base().State())
	// No second finished emission for the relabel.
	assert.Len(t, rec.Records(), 1)

	m.Close()
}

func TestManager_SecondRunnerForThinkerIsProgrammingError(t *testing.T) {
	m := newTestManager(t)

	th := testutil.NewSpinThinker()
	m.CreateRunnerFor(th)

	assert.Panics(t, func() { m.CreateRunnerFor(th) })

	m.RequestAndWaitCancel(th)
	m.Close()
}

func TestManager_ThreadRegistryDuringExecution(t *testing.T) {
	m := newTestManager(t)

	th := testutil.NewSpinThinker()
	r := m.CreateRunnerFor(th)

	r.RequestPause(false)
	r.WaitForPause(false)

	m.mapsMu.Lock()
	var worker int
	for w, reg := range m.threadMap {
		if reg == r {
			worker = w
		}
	}
	m.mapsMu.Unlock()
	require.NotZero(t, worker, "paused runner must be registered for its worker")

	// Registry membership and thinker state stay coherent: while registered
	// the thinker is owned by its runner.
	assert.Equal(t, core.ThinkerOwnedByRunner, th.Base().State())

	assert.Same(t, r, m.RunnerForThread(worker))
	assert.Equal(t, th, m.ThinkerForThread(worker))
	assert.Nil(t, m.RunnerForThread(worker+100))

	m.RequestAndWaitCancel(th)
	assert.Nil(t, m.RunnerForThread(worker))

	m.Close()
}

func TestManager_FailingBodyIsTreatedAsCanceled(t *testing.T) {
	rec := &testutil.FinishRecorder{}
	m := newTestManager(t, func(o *Options) { o.OnFinished = rec.Record })

	th := &testutil.FailingThinker{Err: errors.New("boom")}
	r := m.CreateRunnerFor(th)
	r.WaitForFinished()

	require.Len(t, rec.Records(), 1)
	assert.True(t, rec.Records()[0].WasCanceled)
	assert.Equal(t, core.ThinkerCanceled, th.Base().State())

	m.Close()
}

func TestManager_WriteWindowsPulseTheGlobalSignal(t *testing.T) {
	wrote := make(chan struct{}, 1)
	m := newTestManager(t, func(o *Options) {
		o.Config.ThrottleInterval = 10 * time.Millisecond
		o.OnAnyThinkerWrote = func() {
			select {
			case wrote <- struct{}{}:
			default:
			}
		}
	})

	th := testutil.NewCountingThinker(1_000)
	r := m.CreateRunnerFor(th)

	select {
	case <-wrote:
	case <-time.After(5 * time.Second):
		t.Fatal("no any-thinker-wrote signal observed")
	}

	r.WaitForFinished()
	m.Close()
}

func TestManager_IsManagerGoroutine(t *testing.T) {
	m := newTestManager(t)

	assert.True(t, m.IsManagerGoroutine())

	result := make(chan bool)
	go func() { result <- m.IsManagerGoroutine() }()
	assert.False(t, <-result)

	m.Close()
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m := newTestManager(t)
	m.Close()
	m.Close()
}

func TestManager_SharedPool(t *testing.T) {
	shared := pool.New(4)
	defer shared.Close()

	m1 := New(func(o *Options) { o.Pool = shared })
	m2 := New(func(o *Options) { o.Pool = shared })

	th1 := testutil.NewCountingThinker(1_000)
	th2 := testutil.NewCountingThinker(1_000)
	r1 := m1.CreateRunnerFor(th1)
	r2 := m2.CreateRunnerFor(th2)

	r1.WaitForFinished()
	r2.WaitForFinished()

	assert.Equal(t, 1_000, th1.Count())
	assert.Equal(t, 1_000, th2.Count())

	m1.Close()
	m2.Close()
}
