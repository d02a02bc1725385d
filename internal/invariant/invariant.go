// Package invariant implements fatal runtime checks for conditions that can
// only fail through a programming error: illegal state transitions, operations
// executed on the wrong goroutine, double map insertions. Violations panic
// with the caller's source location; they are never recovered.
package invariant

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// That panics with the caller's file:line if cond is false.
func That(cond bool, format string, args ...any) {
	if cond {
		return
	}
	panic(fmt.Sprintf("invariant violated at %s: %s", callerLocation(2), fmt.Sprintf(format, args...)))
}

// Unreachable panics unconditionally; used for switch arms that a correct
// caller can never reach.
func Unreachable(format string, args ...any) {
	panic(fmt.Sprintf("unreachable code at %s: %s", callerLocation(2), fmt.Sprintf(format, args...)))
}

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
