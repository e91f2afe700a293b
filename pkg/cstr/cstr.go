// Package cstr wraps NUL-terminated buffers allocated by native code. The
// allocator that must free a buffer is part of its type, so a GLib buffer can
// never be handed to libc free or the other way around.
package cstr

import (
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"
	"unsafe"
)

// Allocator frees buffers that came from one native allocator.
type Allocator interface {
	Free(p unsafe.Pointer)
}

// EncodingError reports a native buffer that is not valid UTF-8.
type EncodingError struct {
	Offset int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("native string is not valid UTF-8 (first invalid byte at offset %d)", e.Offset)
}

// String is a native buffer owned by the wrapper and freed with A.
type String[A Allocator] struct {
	ptr   unsafe.Pointer
	n     int
	freed atomic.Bool
}

// FromPtr takes ownership of a NUL-terminated buffer. It returns nil when p is nil.
func FromPtr[A Allocator](p unsafe.Pointer) *String[A] {
	if p == nil {
		return nil
	}
	return &String[A]{ptr: p, n: strlen(p)}
}

// FromPtrLen takes ownership of a buffer whose length the native side already
// reported, skipping the terminator scan.
func FromPtrLen[A Allocator](p unsafe.Pointer, n int) *String[A] {
	if p == nil {
		return nil
	}
	return &String[A]{ptr: p, n: n}
}

// Len returns the number of bytes before the terminator.
func (s *String[A]) Len() int {
	return s.n
}

// Bytes returns a read-only view of the buffer. The view is invalid after Free.
func (s *String[A]) Bytes() []byte {
	if s.freed.Load() {
		panic("cstr: use of a freed string")
	}
	if s.n == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(s.ptr), s.n)
}

// Text copies the buffer into a Go string, failing if it is not valid UTF-8.
func (s *String[A]) Text() (string, error) {
	b := s.Bytes()
	if !utf8.Valid(b) {
		return "", &EncodingError{Offset: firstInvalid(b)}
	}
	return string(b), nil
}

// Lossy copies the buffer into a Go string, replacing invalid sequences with U+FFFD.
func (s *String[A]) Lossy() string {
	return strings.ToValidUTF8(string(s.Bytes()), "�")
}

// String implements fmt.Stringer using Lossy.
func (s *String[A]) String() string {
	return s.Lossy()
}

// Free releases the buffer with its allocator. Only the first call has an effect.
func (s *String[A]) Free() {
	if s == nil || !s.freed.CompareAndSwap(false, true) {
		return
	}
	var a A
	a.Free(s.ptr)
}

// Pointer returns the raw buffer.
func (s *String[A]) Pointer() unsafe.Pointer {
	return s.ptr
}

func strlen(p unsafe.Pointer) int {
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return n
}

func firstInvalid(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}
