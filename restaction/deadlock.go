package restaction

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// inFlight tracks which goroutines are currently running inside a
// RestAction's own Queue callback or Complete call. Go has no thread-local
// storage, so the guard parses the goroutine id out of runtime.Stack the
// way a handful of debugging libraries do; it's a few hundred nanoseconds,
// paid only by Complete and Queue, never by Map/FlatMap/Delay/Zip.
var inFlight sync.Map // map[int64]struct{}

func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// The header line looks like "goroutine 123 [running]:".
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return -1
	}
	id, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return -1
	}
	return id
}

// inDeadlockGuardedFrame reports whether the calling goroutine is already
// inside a guarded frame (set by withDeadlockGuard).
func inDeadlockGuardedFrame() bool {
	_, ok := inFlight.Load(goroutineID())
	return ok
}

// withDeadlockGuard marks the calling goroutine as inside a guarded frame
// for the duration of fn.
func withDeadlockGuard(fn func()) {
	id := goroutineID()
	inFlight.Store(id, struct{}{})
	defer inFlight.Delete(id)
	fn()
}
