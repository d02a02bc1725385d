package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/cogito/core"
	"github.com/hupe1980/cogito/internal/invariant"
	"github.com/hupe1980/cogito/internal/util"
	"github.com/hupe1980/cogito/logging"
	"github.com/hupe1980/cogito/pool"
	"github.com/hupe1980/cogito/throttle"
)

// Options configures a Manager using the functional options pattern.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Pool lets multiple managers share one worker pool. When nil the
	// manager creates and owns a pool sized by Config.MaxWorkers.
	Pool *pool.Pool

	// OnFinished is invoked once per runner when its thinker reaches a
	// terminal state.
	OnFinished core.FinishedFunc

	// OnAnyThinkerWrote is the manager-wide throttled write signal, pulsed
	// at most once per Config.ThrottleInterval across all thinkers.
	OnAnyThinkerWrote func()
}

// Manager coordinates all runners: it owns the thinker and worker
// registries, dispatches runners to the pool, serializes the affinity
// handshake, and fans out write notifications.
//
// The goroutine that constructs the Manager is the controller; operations
// documented as controller-only assert that they run there. The Manager also
// runs one internal service goroutine that drains queued push requests and
// counts as manager context.
type Manager struct {
	cfg    Config
	logger logging.Logger

	pool     *pool.Pool
	ownsPool bool

	// mapsMu guards both registries; held for O(1) work only, never across
	// user-body calls.
	mapsMu     sync.Mutex
	thinkerMap map[*core.ThinkerBase]*Runner
	threadMap  map[int]*Runner

	// Push handshake state, disjoint from mapsMu and the runners' signal
	// mutexes.
	pushMu      sync.Mutex
	needsPush   *sync.Cond
	werePushed  *sync.Cond
	pushQueue   []*Runner
	pushNotify  chan struct{}
	serviceDone chan struct{}

	anyWrote   *throttle.Throttler
	onFinished core.FinishedFunc

	controllerGID uint64
	serviceGID    atomic.Uint64

	closed atomic.Bool
}

// New constructs a Manager on the calling goroutine, which becomes the
// controller.
func New(optFns ...func(o *Options)) *Manager {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	m := &Manager{
		cfg:           opts.Config,
		logger:        opts.Logger,
		thinkerMap:    make(map[*core.ThinkerBase]*Runner),
		threadMap:     make(map[int]*Runner),
		pushNotify:    make(chan struct{}, 1),
		serviceDone:   make(chan struct{}),
		onFinished:    opts.OnFinished,
		controllerGID: util.GoroutineID(),
	}
	m.needsPush = sync.NewCond(&m.pushMu)
	m.werePushed = sync.NewCond(&m.pushMu)

	if opts.Pool != nil {
		m.pool = opts.Pool
	} else {
		m.pool = pool.New(opts.Config.MaxWorkers)
		m.ownsPool = true
	}

	if opts.OnAnyThinkerWrote != nil {
		m.anyWrote = throttle.New(m.ThrottleInterval(), opts.OnAnyThinkerWrote)
	}

	go m.serve()

	return m
}

// ThrottleInterval returns the effective notification window.
func (m *Manager) ThrottleInterval() time.Duration {
	if m.cfg.ThrottleInterval > 0 {
		return m.cfg.ThrottleInterval
	}
	return DefaultConfig.ThrottleInterval
}

// serve drains queued push notifications; it is the surrogate for an event
// loop on the controller.
func (m *Manager) serve() {
	m.serviceGID.Store(util.GoroutineID())
	defer close(m.serviceDone)
	for range m.pushNotify {
		m.ProcessPushesUntil(nil)
	}
}

// IsManagerGoroutine reports whether the calling goroutine is manager
// context: the controller or the internal service goroutine.
func (m *Manager) IsManagerGoroutine() bool {
	gid := util.GoroutineID()
	return gid == m.controllerGID || gid == m.serviceGID.Load()
}

func (m *Manager) assertManagerGoroutine(op string) {
	invariant.That(m.IsManagerGoroutine(), "%s must run on the manager goroutine", op)
}

func (m *Manager) assertNotManagerGoroutine(op string) {
	invariant.That(!m.IsManagerGoroutine(), "%s must not run on the manager goroutine", op)
}

// CreateRunnerFor constructs a runner for the thinker, registers it and
// submits it to the worker pool. Controller-only. The worker binding is
// deferred until the pool picks the runner up.
func (m *Manager) CreateRunnerFor(th core.Thinker) *Runner {
	m.assertManagerGoroutine("CreateRunnerFor")
	invariant.That(!m.closed.Load(), "CreateRunnerFor on closed manager")
	invariant.That(th != nil, "CreateRunnerFor with nil thinker")

	th.Base().Bind(m)

	r := newRunner(m, th)
	m.addToThinkerMap(r)
	m.pool.Submit(r.run)

	return r
}

// EnsureAllPaused brings every registered runner to quiescence: first all
// pause requests go out, then all pauses are awaited, so runners park in
// parallel. Runners that got canceled (or finished) meanwhile count as
// success. Controller-only.
func (m *Manager) EnsureAllPaused() {
	m.assertManagerGoroutine("EnsureAllPaused")

	runners := m.snapshotRunners()
	for _, r := range runners {
		r.RequestPause(true)
	}
	for _, r := range runners {
		r.WaitForPause(true)
	}
}

// EnsureAllResumed resumes every currently paused runner; runners in other
// states are left alone. Controller-only.
func (m *Manager) EnsureAllResumed() {
	m.assertManagerGoroutine("EnsureAllResumed")

	for _, r := range m.snapshotRunners() {
		if r.IsPaused() {
			r.RequestResume(true)
		}
	}
}

// EnsureFinished lets the thinker's computation run to natural completion
// and waits for it. Calling it for a canceled computation is a programming
// error. Controller-only.
func (m *Manager) EnsureFinished(th core.Thinker) {
	m.assertManagerGoroutine("EnsureFinished")

	b := th.Base()
	if r := m.RunnerForThinker(th); r != nil {
		invariant.That(!r.IsCanceled(), "EnsureFinished on canceled runner")

		if r.IsPaused() {
			r.RequestResume(false)
			r.WaitForResume()
		}
		r.WaitForFinished()
		invariant.That(r.IsFinished(), "runner was canceled while ensuring finish")
	}

	invariant.That(b.State() == core.ThinkerFinished, "thinker %s did not finish", b.ID())
}

// RequestAndWaitCancel cancels the thinker's computation (idempotently) and
// waits until it is fully unwound. Unlike the controller-only operations it
// may be called from any goroutine, typically when the last handle drops.
// Postcondition: the thinker's state is Canceled.
func (m *Manager) RequestAndWaitCancel(th core.Thinker) {
	b := th.Base()

	if r := m.RunnerForThinker(th); r != nil {
		r.RequestCancel(true)
		r.WaitForFinished()
	} else {
		m.mapsMu.Lock()
		b.SetState(core.ThinkerCanceled)
		m.mapsMu.Unlock()
	}

	invariant.That(b.State() == core.ThinkerCanceled, "thinker %s not canceled after cancel", b.ID())
}

// RunnerForThinker returns the thinker's live runner, or nil. A nil result
// implies the thinker is already in a terminal state.
func (m *Manager) RunnerForThinker(th core.Thinker) *Runner {
	m.mapsMu.Lock()
	defer m.mapsMu.Unlock()

	r := m.thinkerMap[th.Base()]
	if r == nil {
		s := th.Base().State()
		invariant.That(s == core.ThinkerFinished || s == core.ThinkerCanceled,
			"thinker %s has no runner but is not terminal", th.Base().ID())
	}
	return r
}

// RunnerForThread returns the runner currently bound to the worker, or nil.
func (m *Manager) RunnerForThread(worker int) *Runner {
	m.mapsMu.Lock()
	defer m.mapsMu.Unlock()
	return m.threadMap[worker]
}

// ThinkerForThread returns the thinker executing on the worker, or nil.
func (m *Manager) ThinkerForThread(worker int) core.Thinker {
	r := m.RunnerForThread(worker)
	if r == nil {
		return nil
	}
	return r.Thinker()
}

// UnlockThinker implements core.WriteObserver: at the end of every write
// window it pulses all attached watcher throttlers and the manager-wide
// write signal.
func (m *Manager) UnlockThinker(b *core.ThinkerBase) {
	b.EachWatcher(func(n core.WatcherNotifier) { n.Pulse() })
	if m.anyWrote != nil {
		m.anyWrote.Emit()
	}
}

// relabelThinkerCanceled flips an already finished thinker to Canceled. A
// live registration is left alone; the runner's exit path writes the
// terminal state then.
func (m *Manager) relabelThinkerCanceled(th core.Thinker) {
	m.mapsMu.Lock()
	defer m.mapsMu.Unlock()
	if th.Base().State() == core.ThinkerFinished {
		th.Base().SetState(core.ThinkerCanceled)
	}
}

func (m *Manager) snapshotRunners() []*Runner {
	m.mapsMu.Lock()
	defer m.mapsMu.Unlock()

	runners := make([]*Runner, 0, len(m.thinkerMap))
	for _, r := range m.thinkerMap {
		runners = append(runners, r)
	}
	return runners
}

func (m *Manager) addToThinkerMap(r *Runner) {
	m.mapsMu.Lock()
	defer m.mapsMu.Unlock()

	b := r.thinker.Base()
	invariant.That(m.thinkerMap[b] == nil, "thinker %s already has a runner", b.ID())
	m.thinkerMap[b] = r
	b.SetState(core.ThinkerOwnedByRunner)
}

// removeFromThinkerMap unregisters the runner and atomically writes the
// thinker's terminal state.
func (m *Manager) removeFromThinkerMap(r *Runner) {
	wasCanceled := r.IsCanceled()

	m.mapsMu.Lock()
	b := r.thinker.Base()
	invariant.That(m.thinkerMap[b] == r, "runner not registered for thinker %s", b.ID())
	delete(m.thinkerMap, b)

	invariant.That(b.State() == core.ThinkerOwnedByRunner, "thinker %s left owned state early", b.ID())
	if wasCanceled {
		b.SetState(core.ThinkerCanceled)
	} else {
		b.SetState(core.ThinkerFinished)
	}
	b.ResetAffinity()
	m.mapsMu.Unlock()

	// A cancel that relabeled the runner after wasCanceled was read found the
	// thinker still registered and left it alone; relabel it now.
	if !wasCanceled && r.IsCanceled() {
		m.relabelThinkerCanceled(r.thinker)
	}

	b.ReleaseObserver()
}

func (m *Manager) addToThreadMap(r *Runner, worker int) {
	m.mapsMu.Lock()
	defer m.mapsMu.Unlock()
	invariant.That(m.threadMap[worker] == nil, "worker %d already has a runner", worker)
	m.threadMap[worker] = r
}

func (m *Manager) removeFromThreadMap(worker int) {
	m.mapsMu.Lock()
	defer m.mapsMu.Unlock()
	invariant.That(m.threadMap[worker] != nil, "worker %d has no runner to remove", worker)
	delete(m.threadMap, worker)
}

func (m *Manager) emitFinished(th core.Thinker, wasCanceled bool) {
	if m.onFinished != nil {
		m.onFinished(th, wasCanceled)
	}
}

// Close asserts that every registered runner is terminal, drains the worker
// pool, and stops the service goroutine and throttlers. Controller-only.
func (m *Manager) Close() {
	m.assertManagerGoroutine("Close")
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	for _, r := range m.snapshotRunners() {
		invariant.That(r.State().Terminal(), "thinker %s still running at close", r.thinker.Base().ID())
	}

	m.pool.Wait()

	close(m.pushNotify)
	<-m.serviceDone

	if m.anyWrote != nil {
		m.anyWrote.Stop()
	}
	if m.ownsPool {
		m.pool.Close()
	}
}
