// Package session attaches typed Go state to opaque native session handles.
//
// A session is governed by two independent counts. The host count tracks the
// Go references to the state container (the back-reference slot holds one of
// them). The native count is the intrusive count inside the native handle;
// the container holds one native reference for as long as it is alive. The
// native handle is only freed once both have reached zero, whichever order
// that happens in.
package session

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/arqut/janus-plugin-go/pkg/refcount"
)

var (
	// ErrNullHandle is returned for a null native handle.
	ErrNullHandle = refcount.ErrNullHandle
	// ErrAlreadyAssociated is returned when the handle's back-reference is already set.
	ErrAlreadyAssociated = errors.New("session handle is already associated")
	// ErrNotAssociated is returned when the handle carries no live host state.
	ErrNotAssociated = errors.New("session handle has no associated state")
	// ErrStateType is returned when the stored state has a different type.
	ErrStateType = errors.New("session state has a different type")
)

// Handle is a native session handle. Null reports a nil or empty handle,
// including a typed nil. BackRef and SetBackRef access the field reserved for
// the host; Retain and Release manipulate the native count.
type Handle interface {
	Null() bool
	BackRef() uintptr
	SetBackRef(id uintptr)
	Retain()
	Release()
}

// container is shared by every Ref to the same session.
type container[T any] struct {
	handle Handle
	id     uintptr
	state  T
	refs   atomic.Int32
	slot   atomic.Bool
}

// Ref is one strong host reference to a session's state.
type Ref[T any] struct {
	c        *container[T]
	released atomic.Bool
}

// Associate stores state for h and returns a reference to it. The
// back-reference slot keeps its own reference until Detach.
func Associate[T any](h Handle, state T) (*Ref[T], error) {
	if isNull(h) {
		return nil, ErrNullHandle
	}
	if h.BackRef() != 0 {
		return nil, ErrAlreadyAssociated
	}

	h.Retain()
	c := &container[T]{handle: h, state: state}
	c.refs.Store(2)
	c.slot.Store(true)
	c.id = slots.insert(c)
	h.SetBackRef(c.id)

	return &Ref[T]{c: c}, nil
}

// Retrieve returns a new reference to the state associated with h.
func Retrieve[T any](h Handle) (*Ref[T], error) {
	if isNull(h) {
		return nil, ErrNullHandle
	}
	e, ok := slots.lookup(h.BackRef())
	if !ok {
		return nil, ErrNotAssociated
	}
	c, ok := e.(*container[T])
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrStateType, e)
	}
	if !c.acquire() {
		return nil, ErrNotAssociated
	}
	return &Ref[T]{c: c}, nil
}

// Detach releases the reference held by h's back-reference slot. The state
// stays alive until every other Ref is released.
func Detach(h Handle) error {
	if isNull(h) {
		return ErrNullHandle
	}
	e, ok := slots.lookup(h.BackRef())
	if !ok {
		return ErrNotAssociated
	}
	e.releaseSlot()
	return nil
}

func isNull(h Handle) bool {
	return h == nil || h.Null()
}

// State returns the associated state.
func (r *Ref[T]) State() *T {
	return &r.c.state
}

// Handle returns the native handle the state is associated with.
func (r *Ref[T]) Handle() Handle {
	return r.c.handle
}

// Count returns the number of host references, including the slot's.
func (r *Ref[T]) Count() int {
	return int(r.c.refs.Load())
}

// Clone returns another reference to the same state.
func (r *Ref[T]) Clone() *Ref[T] {
	if r.released.Load() || !r.c.acquire() {
		panic("session: Clone on a released reference")
	}
	return &Ref[T]{c: r.c}
}

// Release drops this reference. Only the first call has an effect.
func (r *Ref[T]) Release() {
	if !r.released.CompareAndSwap(false, true) {
		return
	}
	r.c.release()
}

func (c *container[T]) acquire() bool {
	for {
		n := c.refs.Load()
		if n <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (c *container[T]) releaseSlot() {
	if c.slot.CompareAndSwap(true, false) {
		c.release()
	}
}

func (c *container[T]) release() {
	n := c.refs.Add(-1)
	switch {
	case n == 0:
		slots.remove(c.id)
		c.handle.Release()
	case n < 0:
		panic("session: host count dropped below zero")
	}
}
