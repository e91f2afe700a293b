package plugin

/*
#include "shim.h"
*/
import "C"

import (
	"sync/atomic"
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/refcount"
	"github.com/arqut/janus-plugin-go/pkg/session"
)

// Session is a gateway janus_plugin_session. It implements session.Handle,
// so plugin state is attached with session.Associate.
type Session struct {
	raw *C.janus_plugin_session
}

var _ session.Handle = (*Session)(nil)

// sessionFrom wraps a native handle; nil stays nil.
func sessionFrom(p *C.janus_plugin_session) *Session {
	if p == nil {
		return nil
	}
	return &Session{raw: p}
}

// SessionFromPointer wraps a janus_plugin_session pointer obtained elsewhere.
func SessionFromPointer(p unsafe.Pointer) *Session {
	return sessionFrom((*C.janus_plugin_session)(p))
}

// Pointer returns the native handle.
func (s *Session) Pointer() unsafe.Pointer {
	return unsafe.Pointer(s.raw)
}

// Stopped reports whether the gateway is tearing the session down.
func (s *Session) Stopped() bool {
	return atomic.LoadInt32((*int32)(unsafe.Pointer(&s.raw.stopped))) != 0
}

// Null implements session.Handle.
func (s *Session) Null() bool {
	return s == nil || s.raw == nil
}

// BackRef implements session.Handle.
func (s *Session) BackRef() uintptr {
	return uintptr(C.go_session_backref(s.raw))
}

// SetBackRef implements session.Handle.
func (s *Session) SetBackRef(id uintptr) {
	C.go_session_set_backref(s.raw, C.uintptr_t(id))
}

// Retain takes a native reference.
func (s *Session) Retain() {
	refcount.Increase(s.count())
}

// Release drops a native reference, freeing the handle at zero.
func (s *Session) Release() {
	if refcount.Decrease(s.count()) {
		C.go_session_free(s.raw)
	}
}

// RefCount returns the native count.
func (s *Session) RefCount() int {
	return int(refcount.Load(s.count()))
}

func (s *Session) count() *int32 {
	return (*int32)(unsafe.Pointer(&s.raw.ref.count))
}
