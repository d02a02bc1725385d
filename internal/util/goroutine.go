package util

import (
	"bytes"
	"runtime"
	"strconv"
)

// GoroutineID returns the numeric id of the calling goroutine, parsed from the
// first line of its stack header ("goroutine N [running]:"). The id is used
// only for identity comparison in assertions; it carries no scheduling
// meaning.
//
// This lives in internal to avoid committing to public API stability
// prematurely.
func GoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
