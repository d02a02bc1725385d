package engine

import "time"

// Config defines tuning parameters for the Manager's operational behavior.
type Config struct {
	// MaxWorkers bounds the worker pool the manager creates when no shared
	// pool is supplied. Zero means GOMAXPROCS.
	MaxWorkers int

	// ThrottleInterval is the coalescing window for the manager-wide
	// any-thinker-wrote signal and the default window for watcher
	// notifications. Zero means DefaultConfig.ThrottleInterval.
	ThrottleInterval time.Duration
}

// DefaultConfig provides the default configuration values: a pool sized to
// GOMAXPROCS and a 400ms notification window.
var DefaultConfig = Config{
	MaxWorkers:       0,
	ThrottleInterval: 400 * time.Millisecond,
}
