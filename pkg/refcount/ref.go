package refcount

import (
	"sync/atomic"
	"unsafe"
)

// Ops are the native primitives that manage a foreign handle's count.
type Ops interface {
	Incref(p unsafe.Pointer)
	Decref(p unsafe.Pointer)
}

// Ref owns exactly one reference to a foreign handle.
type Ref struct {
	ptr      unsafe.Pointer
	ops      Ops
	released atomic.Bool
}

// Adopt wraps a handle whose reference the caller already owns, typically one
// fresh from a native constructor. The count is not touched.
func Adopt(p unsafe.Pointer, ops Ops) (*Ref, error) {
	if p == nil {
		return nil, ErrNullHandle
	}
	return &Ref{ptr: p, ops: ops}, nil
}

// Retain increments the count of an externally owned handle and wraps it.
func Retain(p unsafe.Pointer, ops Ops) (*Ref, error) {
	if p == nil {
		return nil, ErrNullHandle
	}
	ops.Incref(p)
	return &Ref{ptr: p, ops: ops}, nil
}

// Pointer returns the raw handle, or nil once the reference is released.
func (r *Ref) Pointer() unsafe.Pointer {
	if r == nil || r.released.Load() {
		return nil
	}
	return r.ptr
}

// Clone takes another reference to the same handle.
func (r *Ref) Clone() *Ref {
	r.mustLive("Clone")
	r.ops.Incref(r.ptr)
	return &Ref{ptr: r.ptr, ops: r.ops}
}

// IntoRaw takes a reference on behalf of a native call that steals one and
// returns the raw handle. r itself must still be released by its owner.
func (r *Ref) IntoRaw() unsafe.Pointer {
	r.mustLive("IntoRaw")
	r.ops.Incref(r.ptr)
	return r.ptr
}

// Release drops the reference. Only the first call has an effect.
func (r *Ref) Release() {
	if r == nil || !r.released.CompareAndSwap(false, true) {
		return
	}
	r.ops.Decref(r.ptr)
}

// Released reports whether Release has been called.
func (r *Ref) Released() bool {
	return r.released.Load()
}

func (r *Ref) mustLive(op string) {
	if r == nil || r.released.Load() {
		panic("refcount: " + op + " on a released reference")
	}
}
