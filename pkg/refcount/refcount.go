// Package refcount manipulates intrusive reference counts embedded in native
// structures and wraps foreign, reference-counted handles so they follow Go
// ownership rules.
package refcount

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrNullHandle is returned when a native call handed back a null pointer.
var ErrNullHandle = errors.New("a null handle was provided")

// TraceFunc receives a trace line for every increase/decrease of a native count.
type TraceFunc func(line string)

var trace atomic.Pointer[TraceFunc]

// SetTrace installs fn as the count tracer. A nil fn disables tracing.
func SetTrace(fn TraceFunc) {
	if fn == nil {
		trace.Store(nil)
		return
	}
	trace.Store(&fn)
}

// Increase atomically increments the count by one.
func Increase(count *int32) {
	n := atomic.AddInt32(count, 1)
	if fn := trace.Load(); fn != nil {
		(*fn)(traceLine("increase", count, n))
	}
}

// Decrease atomically decrements the count by one and reports whether it
// reached zero. The caller is responsible for invoking the free callback.
func Decrease(count *int32) bool {
	n := atomic.AddInt32(count, -1)
	if fn := trace.Load(); fn != nil {
		(*fn)(traceLine("decrease", count, n))
	}
	if n < 0 {
		panic("refcount: count dropped below zero")
	}
	return n == 0
}

// Load atomically reads the count.
func Load(count *int32) int32 {
	return atomic.LoadInt32(count)
}

func traceLine(op string, count *int32, n int32) string {
	return fmt.Sprintf("[go:%s] %p (%d)\n", op, count, n)
}
