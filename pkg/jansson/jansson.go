// Package jansson binds the Jansson JSON library used by the Janus gateway.
//
// A Value owns exactly one reference to a native json_t. Values read out of a
// container are retained, values stored into one are handed over with an
// extra reference, so the caller always releases what it holds.
package jansson

/*
#cgo pkg-config: jansson
#include <stdlib.h>
#include <string.h>
#include <jansson.h>

static json_t *go_json_incref(json_t *j) { return json_incref(j); }
static void go_json_decref(json_t *j) { json_decref(j); }
static int go_json_typeof(const json_t *j) { return (int)json_typeof(j); }
static size_t go_json_refcount(const json_t *j) { return j->refcount; }

// Keys may hold NUL bytes from 2.14 on. Older releases refuse them.
static int go_json_keys_hold_nul(void) { return JANSSON_VERSION_HEX >= 0x020e00; }

static size_t go_json_iter_key_len(void *it) {
#if JANSSON_VERSION_HEX >= 0x020e00
	return json_object_iter_key_len(it);
#else
	return strlen(json_object_iter_key(it));
#endif
}

static json_t *go_json_object_getn(const json_t *o, const char *k, size_t n) {
#if JANSSON_VERSION_HEX >= 0x020e00
	return json_object_getn(o, k, n);
#else
	return memchr(k, 0, n) ? NULL : json_object_get(o, k);
#endif
}

static int go_json_object_setn_new(json_t *o, const char *k, size_t n, json_t *v) {
#if JANSSON_VERSION_HEX >= 0x020e00
	return json_object_setn_new(o, k, n, v);
#else
	if (memchr(k, 0, n)) {
		json_decref(v);
		return -1;
	}
	return json_object_set_new(o, k, v);
#endif
}

static int go_json_object_deln(json_t *o, const char *k, size_t n) {
#if JANSSON_VERSION_HEX >= 0x020e00
	return json_object_deln(o, k, n);
#else
	return memchr(k, 0, n) ? -1 : json_object_del(o, k);
#endif
}

static void go_json_free(void *p) {
	json_malloc_t m;
	json_free_t f;
	json_get_alloc_funcs(&m, &f);
	f(p);
}

static void go_json_alloc_funcs(void **m, void **f) {
	json_malloc_t jm;
	json_free_t jf;
	json_get_alloc_funcs(&jm, &jf);
	*m = (void *)jm;
	*f = (void *)jf;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/cstr"
	"github.com/arqut/janus-plugin-go/pkg/refcount"
)

var (
	// ErrOperation is returned when a native container operation reports failure.
	ErrOperation = errors.New("jansson operation failed")
	// ErrEncode is returned when json_dumps produces no output.
	ErrEncode = errors.New("jansson could not encode value")
)

// DecodeError carries the position information of json_error_t.
type DecodeError struct {
	Line     int
	Column   int
	Position int
	Source   string
	Text     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s (line %d, column %d, position %d)", e.Text, e.Line, e.Column, e.Position)
}

type ops struct{}

func (ops) Incref(p unsafe.Pointer) { C.go_json_incref((*C.json_t)(p)) }
func (ops) Decref(p unsafe.Pointer) { C.go_json_decref((*C.json_t)(p)) }

// Alloc frees buffers with the allocator Jansson is configured with.
type Alloc struct{}

// Free implements cstr.Allocator.
func (Alloc) Free(p unsafe.Pointer) { C.go_json_free(p) }

// AllocFuncs returns the malloc and free functions Jansson currently uses.
func AllocFuncs() (malloc, free unsafe.Pointer) {
	C.go_json_alloc_funcs(&malloc, &free)
	return malloc, free
}

// Value is one reference to a native JSON value.
type Value struct {
	ref *refcount.Ref
}

// Adopt wraps p without incrementing its count; the Value takes the caller's reference.
func Adopt(p unsafe.Pointer) (*Value, error) {
	r, err := refcount.Adopt(p, ops{})
	if err != nil {
		return nil, err
	}
	return &Value{ref: r}, nil
}

// Retain wraps a borrowed p, taking a reference of its own.
func Retain(p unsafe.Pointer) (*Value, error) {
	r, err := refcount.Retain(p, ops{})
	if err != nil {
		return nil, err
	}
	return &Value{ref: r}, nil
}

func adoptNew(p *C.json_t) *Value {
	v, err := Adopt(unsafe.Pointer(p))
	if err != nil {
		panic("jansson: allocation failed")
	}
	return v
}

func retainBorrowed(p *C.json_t) (*Value, bool) {
	if p == nil {
		return nil, false
	}
	v, _ := Retain(unsafe.Pointer(p))
	return v, true
}

// Object returns an empty object.
func Object() *Value { return adoptNew(C.json_object()) }

// Array returns an empty array.
func Array() *Value { return adoptNew(C.json_array()) }

// String returns a string value. s may contain NUL bytes.
func String(s string) *Value {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))
	return adoptNew(C.json_stringn(cs, C.size_t(len(s))))
}

// Integer returns an integer value.
func Integer(n int64) *Value { return adoptNew(C.json_integer(C.json_int_t(n))) }

// Real returns a real value.
func Real(f float64) *Value { return adoptNew(C.json_real(C.double(f))) }

// Bool returns true or false.
func Bool(b bool) *Value {
	if b {
		return adoptNew(C.json_true())
	}
	return adoptNew(C.json_false())
}

// Null returns null.
func Null() *Value { return adoptNew(C.json_null()) }

func (v *Value) ptr() *C.json_t {
	return (*C.json_t)(v.ref.Pointer())
}

// Pointer returns the native handle, still owned by v.
func (v *Value) Pointer() unsafe.Pointer {
	return v.ref.Pointer()
}

// IntoRaw returns the handle with an extra reference for a native call that
// takes ownership. v must still be released by its owner.
func (v *Value) IntoRaw() unsafe.Pointer {
	return v.ref.IntoRaw()
}

// Clone returns another reference to the same value.
func (v *Value) Clone() *Value {
	return &Value{ref: v.ref.Clone()}
}

// Release drops v's reference. Only the first call has an effect.
func (v *Value) Release() {
	if v != nil {
		v.ref.Release()
	}
}

// RefCount returns the native reference count.
func (v *Value) RefCount() int {
	return int(C.go_json_refcount(v.ptr()))
}

// Type returns the value's kind.
func (v *Value) Type() Type {
	return Type(C.go_json_typeof(v.ptr()))
}

// Get returns the member stored under key.
func (v *Value) Get(key string) (*Value, bool) {
	ck := C.CString(key)
	defer C.free(unsafe.Pointer(ck))
	return retainBorrowed(C.go_json_object_getn(v.ptr(), ck, C.size_t(len(key))))
}

// Set stores val under key. The object takes its own reference.
func (v *Value) Set(key string, val *Value) error {
	ck := C.CString(key)
	defer C.free(unsafe.Pointer(ck))
	if C.go_json_object_setn_new(v.ptr(), ck, C.size_t(len(key)), (*C.json_t)(val.IntoRaw())) != 0 {
		return fmt.Errorf("%w: set %q", ErrOperation, key)
	}
	return nil
}

// Del removes key.
func (v *Value) Del(key string) error {
	ck := C.CString(key)
	defer C.free(unsafe.Pointer(ck))
	if C.go_json_object_deln(v.ptr(), ck, C.size_t(len(key))) != 0 {
		return fmt.Errorf("%w: del %q", ErrOperation, key)
	}
	return nil
}

// Keys returns an object's keys in iteration order.
func (v *Value) Keys() []string {
	var keys []string
	for it := C.json_object_iter(v.ptr()); it != nil; it = C.json_object_iter_next(v.ptr(), it) {
		keys = append(keys, iterKey(it))
	}
	return keys
}

// Range calls fn for every member of an object until fn returns false. The
// member Value is released when fn returns; Clone it to keep it.
func (v *Value) Range(fn func(key string, member *Value) bool) {
	for it := C.json_object_iter(v.ptr()); it != nil; it = C.json_object_iter_next(v.ptr(), it) {
		member, _ := retainBorrowed(C.json_object_iter_value(it))
		cont := fn(iterKey(it), member)
		member.Release()
		if !cont {
			return
		}
	}
}

// iterKey reads the key at it, including any NUL bytes.
func iterKey(it unsafe.Pointer) string {
	return C.GoStringN(C.json_object_iter_key(it), C.int(C.go_json_iter_key_len(it)))
}

func keysHoldNUL() bool {
	return C.go_json_keys_hold_nul() != 0
}

// Len returns the member count of an object or array, the byte length of a
// string, and zero otherwise.
func (v *Value) Len() int {
	switch v.Type() {
	case TypeObject:
		return int(C.json_object_size(v.ptr()))
	case TypeArray:
		return int(C.json_array_size(v.ptr()))
	case TypeString:
		return int(C.json_string_length(v.ptr()))
	}
	return 0
}

// At returns the array element at i.
func (v *Value) At(i int) (*Value, bool) {
	if i < 0 {
		return nil, false
	}
	return retainBorrowed(C.json_array_get(v.ptr(), C.size_t(i)))
}

// Append adds val to the end of an array.
func (v *Value) Append(val *Value) error {
	if C.json_array_append_new(v.ptr(), (*C.json_t)(val.IntoRaw())) != 0 {
		return fmt.Errorf("%w: append", ErrOperation)
	}
	return nil
}

// Insert places val at index i, shifting later elements.
func (v *Value) Insert(i int, val *Value) error {
	if i < 0 {
		return fmt.Errorf("%w: insert at %d", ErrOperation, i)
	}
	if C.json_array_insert_new(v.ptr(), C.size_t(i), (*C.json_t)(val.IntoRaw())) != 0 {
		return fmt.Errorf("%w: insert at %d", ErrOperation, i)
	}
	return nil
}

// Remove deletes the element at index i.
func (v *Value) Remove(i int) error {
	if i < 0 || C.json_array_remove(v.ptr(), C.size_t(i)) != 0 {
		return fmt.Errorf("%w: remove at %d", ErrOperation, i)
	}
	return nil
}

// StringValue returns the text of a string value.
func (v *Value) StringValue() (string, bool) {
	if v.Type() != TypeString {
		return "", false
	}
	return C.GoStringN(C.json_string_value(v.ptr()), C.int(C.json_string_length(v.ptr()))), true
}

// IntValue returns the number of an integer value.
func (v *Value) IntValue() (int64, bool) {
	if v.Type() != TypeInteger {
		return 0, false
	}
	return int64(C.json_integer_value(v.ptr())), true
}

// RealValue returns the number of a real value.
func (v *Value) RealValue() (float64, bool) {
	if v.Type() != TypeReal {
		return 0, false
	}
	return float64(C.json_real_value(v.ptr())), true
}

// NumberValue returns an integer or real as a float.
func (v *Value) NumberValue() (float64, bool) {
	switch v.Type() {
	case TypeInteger, TypeReal:
		return float64(C.json_number_value(v.ptr())), true
	}
	return 0, false
}

// BoolValue returns the value of true or false.
func (v *Value) BoolValue() (bool, bool) {
	switch v.Type() {
	case TypeTrue:
		return true, true
	case TypeFalse:
		return false, true
	}
	return false, false
}

// Equal reports whether v and o are structurally equal.
func (v *Value) Equal(o *Value) bool {
	if v == nil || o == nil {
		return v == o
	}
	return C.json_equal(v.ptr(), o.ptr()) == 1
}

// Copy returns a shallow copy.
func (v *Value) Copy() *Value { return adoptNew(C.json_copy(v.ptr())) }

// DeepCopy returns a recursive copy.
func (v *Value) DeepCopy() *Value { return adoptNew(C.json_deep_copy(v.ptr())) }

// Loads parses text.
func Loads(text string, flags DecodingFlags) (*Value, error) {
	return LoadBytes([]byte(text), flags)
}

// LoadBytes parses b. The buffer's length is passed explicitly so AllowNUL works.
func LoadBytes(b []byte, flags DecodingFlags) (*Value, error) {
	var buf *C.char
	if len(b) > 0 {
		buf = (*C.char)(C.CBytes(b))
		defer C.free(unsafe.Pointer(buf))
	}
	var jerr C.json_error_t
	p := C.json_loadb(buf, C.size_t(len(b)), C.size_t(flags), &jerr)
	if p == nil {
		return nil, &DecodeError{
			Line:     int(jerr.line),
			Column:   int(jerr.column),
			Position: int(jerr.position),
			Source:   C.GoString(&jerr.source[0]),
			Text:     C.GoString(&jerr.text[0]),
		}
	}
	return adoptNew(p), nil
}

// DumpString encodes v into a buffer owned by Jansson's allocator.
func (v *Value) DumpString(flags EncodingFlags) (*cstr.String[Alloc], error) {
	s := cstr.FromPtr[Alloc](unsafe.Pointer(C.json_dumps(v.ptr(), C.size_t(flags))))
	if s == nil {
		return nil, ErrEncode
	}
	return s, nil
}

// Dumps encodes v as text.
func (v *Value) Dumps(flags EncodingFlags) (string, error) {
	s, err := v.DumpString(flags)
	if err != nil {
		return "", err
	}
	defer s.Free()
	return s.Text()
}

// String returns the compact encoding of v.
func (v *Value) String() string {
	s, err := v.Dumps(Compact | EncodeAny)
	if err != nil {
		return fmt.Sprintf("<%s>", v.Type())
	}
	return s
}
