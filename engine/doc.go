// Package engine implements the coordination core: the Manager that owns the
// registry of running thinkers and the per-thinker Runner state machine.
//
// A Runner drives exactly one thinker on a pooled worker goroutine through a
// closed lifecycle (Initializing, Thinking, Pausing, Paused, Resuming,
// Canceling, Canceled, Finished). The controller goroutine directs runners
// through request/wait primitives; the worker cooperates by polling at
// progress points. A paused body is parked inside its poll and makes no
// progress; once a cancel has unwound, no user code remains on the worker's
// stack.
//
// The Manager keeps two registries under one lock (thinker to runner, worker
// to runner), serializes the one-time affinity handshake by which a worker
// asks the controller to re-parent a thinker onto it, and fans out throttled
// write notifications to watchers.
//
// The synchronization surface is deliberately small: the registry lock, one
// signal mutex plus condition per runner, and the push lock with its two
// conditions. The three are never nested.
package engine
