package cstr

/*
#cgo pkg-config: glib-2.0
#include <stdlib.h>
#include <glib.h>
*/
import "C"

import "unsafe"

// Libc frees with the C library's free.
type Libc struct{}

// Free implements Allocator.
func (Libc) Free(p unsafe.Pointer) { C.free(p) }

// GLib frees with g_free.
type GLib struct{}

// Free implements Allocator.
func (GLib) Free(p unsafe.Pointer) { C.g_free(C.gpointer(p)) }

type (
	// LibcString is a buffer from malloc.
	LibcString = String[Libc]
	// GLibString is a buffer from g_malloc.
	GLibString = String[GLib]
)

// CString copies s into a malloc'd buffer for native calls that read text.
func CString(s string) *LibcString {
	return FromPtrLen[Libc](unsafe.Pointer(C.CString(s)), len(s))
}

// GStrdup copies s into a g_malloc'd buffer for native calls that take
// ownership and later g_free it.
func GStrdup(s string) *GLibString {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))
	return FromPtrLen[GLib](unsafe.Pointer(C.g_strdup(cs)), len(s))
}

// Char returns the buffer as a C string pointer for packages with their own cgo preamble.
func (s *String[A]) Char() unsafe.Pointer {
	return s.ptr
}
