package core

import (
	"context"

	"github.com/hupe1980/cogito/logging"
)

// ThinkContext is the narrow capability a runner hands to Think. It carries
// the cooperative stop hook, a context that is canceled once cancellation
// has been requested (so blocking I/O inside the body can abort early), and
// the engine's logger.
type ThinkContext struct {
	ctx    context.Context
	poll   func() error
	logger logging.Logger
}

// NewThinkContext is constructed by the engine; user code receives it as the
// argument to Think.
func NewThinkContext(ctx context.Context, poll func() error, logger logging.Logger) *ThinkContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ThinkContext{ctx: ctx, poll: poll, logger: logger}
}

// PollForStop is the cooperative suspension point. The body must call it at
// progress points and propagate a non-nil result unchanged out of Think.
//
// When a pause has been requested the call blocks until the computation is
// resumed or canceled; this is the only place a worker blocks on controller
// direction. When cancellation has been requested it returns
// ErrStopRequested.
func (tc *ThinkContext) PollForStop() error { return tc.poll() }

// Context returns a context that is canceled once cancellation of the
// computation has been requested. Bodies doing blocking I/O should pass it
// down; the cooperative poll remains the stop contract.
func (tc *ThinkContext) Context() context.Context { return tc.ctx }

// Logger returns the engine's logger for use inside the body.
func (tc *ThinkContext) Logger() logging.Logger { return tc.logger }
