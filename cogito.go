// Package cogito provides a high-level façade over the coordination engine
// for cooperative background computations ("thinkers"). Most applications
// interact with this package by:
//  1. Creating a Cogito via New() (optionally loading a TOML config file)
//  2. Implementing core.Thinker for each long-running computation
//  3. Spawning thinkers and steering them through the returned handles
//     (pause, resume, cancel, await, watch)
//
// The façade delegates coordination to engine.Manager while keeping setup
// and usage ergonomics concise. The goroutine that calls New becomes the
// controller: Spawn, PauseAll, ResumeAll, Finish and Close must be called
// there. Handles returned by Spawn are safe for use from any goroutine.
package cogito

import (
	"sync"

	"github.com/hupe1980/cogito/config"
	"github.com/hupe1980/cogito/core"
	"github.com/hupe1980/cogito/engine"
	"github.com/hupe1980/cogito/internal/invariant"
	"github.com/hupe1980/cogito/logging"
	"github.com/hupe1980/cogito/present"
)

// Options configures the Cogito instance.
type Options struct {
	// Engine configuration (pool size, notification window).
	EngineConfig engine.Config

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger

	// OnFinished is invoked once per computation when it reaches a terminal
	// state.
	OnFinished core.FinishedFunc

	// OnAnyThinkerWrote is the throttled engine-wide write signal.
	OnAnyThinkerWrote func()

	// GlobalManagerEnabled registers the created instance as the
	// process-wide singleton returned by Global(). At most one instance per
	// process may enable this.
	GlobalManagerEnabled bool
}

// WithConfigFile returns an option that applies a TOML config file on top of
// the defaults. An unreadable or invalid file panics during New; use
// config.Load directly for graceful handling.
func WithConfigFile(path string) func(o *Options) {
	return func(o *Options) {
		cfg, err := config.Load(path)
		if err != nil {
			panic(err)
		}
		o.EngineConfig.MaxWorkers = cfg.MaxWorkers
		o.EngineConfig.ThrottleInterval = cfg.ThrottleInterval()
		o.GlobalManagerEnabled = cfg.GlobalManager
	}
}

// Cogito is the high-level façade aggregating the underlying engine.
type Cogito struct {
	opts    Options
	manager *engine.Manager
}

// New creates a new Cogito instance with optional overrides. The calling
// goroutine becomes the controller.
func New(optFns ...func(o *Options)) *Cogito {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	m := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Logger = opts.Logger
		o.OnFinished = opts.OnFinished
		o.OnAnyThinkerWrote = opts.OnAnyThinkerWrote
	})

	c := &Cogito{opts: opts, manager: m}
	if opts.GlobalManagerEnabled {
		registerGlobal(c)
	}
	return c
}

// Manager exposes the underlying engine manager for advanced use.
func (c *Cogito) Manager() *engine.Manager { return c.manager }

// Spawn submits a thinker for execution and returns the first handle to it.
func (c *Cogito) Spawn(th core.Thinker) *present.Present {
	c.manager.CreateRunnerFor(th)
	return present.New(c.manager, th)
}

// Watch attaches a throttled change watcher to a handle, using the engine's
// configured notification window.
func (c *Cogito) Watch(p *present.Present, notify func()) *present.Watcher {
	return present.NewWatcher(p, 0, notify)
}

// PauseAll brings every running computation to quiescence.
func (c *Cogito) PauseAll() { c.manager.EnsureAllPaused() }

// ResumeAll wakes every paused computation.
func (c *Cogito) ResumeAll() { c.manager.EnsureAllResumed() }

// Finish lets the thinker's computation run to completion and waits for it.
func (c *Cogito) Finish(th core.Thinker) { c.manager.EnsureFinished(th) }

// CancelAndWait stops the thinker's computation and waits for it to unwind.
func (c *Cogito) CancelAndWait(th core.Thinker) { c.manager.RequestAndWaitCancel(th) }

// Close verifies every computation is terminal and shuts the engine down.
func (c *Cogito) Close() { c.manager.Close() }

var (
	globalMu   sync.Mutex
	globalInst *Cogito
)

func registerGlobal(c *Cogito) {
	globalMu.Lock()
	defer globalMu.Unlock()
	invariant.That(globalInst == nil, "a global manager is already registered")
	globalInst = c
}

// Global returns the process-wide singleton. An instance must have been
// created with GlobalManagerEnabled (or a config file setting
// global_manager); calling Global without one is a programming error. The
// primary API is an explicit value from New; the singleton exists for small
// programs and tools.
func Global() *Cogito {
	globalMu.Lock()
	defer globalMu.Unlock()
	invariant.That(globalInst != nil, "no global manager: create one with GlobalManagerEnabled")
	return globalInst
}
