// Package sdp wraps the gateway's SDP utilities: parsing, writing, payload
// type lookups and offer/answer generation.
package sdp

/*
#cgo CFLAGS: -I${SRCDIR}/../include
#cgo pkg-config: glib-2.0
#include <stdlib.h>
#include "shim.h"
*/
import "C"

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/cstr"
)

// errorBufferSize matches the buffer the gateway's own plugins pass to janus_sdp_parse.
const errorBufferSize = 512

var (
	// ErrWrite is returned when the gateway fails to serialize an SDP.
	ErrWrite = errors.New("sdp: write failed")
	// ErrGenerate is returned when offer or answer generation fails.
	ErrGenerate = errors.New("sdp: generation failed")
	// ErrRemovePayloadType is returned when a payload type cannot be removed.
	ErrRemovePayloadType = errors.New("sdp: payload type not removed")
)

// ParseError carries the parser's message.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	if e.Message == "" {
		return "sdp: parse failed"
	}
	return "sdp: " + e.Message
}

// MediaType is the kind of an m-line.
type MediaType int

const (
	Audio MediaType = iota
	Video
	Application
	Other
)

func (t MediaType) String() string {
	switch t {
	case Audio:
		return "audio"
	case Video:
		return "video"
	case Application:
		return "application"
	}
	return "other"
}

// Direction is the media direction of an m-line or attribute.
type Direction int

const (
	DirectionDefault Direction = iota
	SendRecv
	SendOnly
	RecvOnly
	Inactive
	DirectionInvalid
)

func (d Direction) String() string {
	switch d {
	case SendRecv:
		return "sendrecv"
	case SendOnly:
		return "sendonly"
	case RecvOnly:
		return "recvonly"
	case Inactive:
		return "inactive"
	case DirectionDefault:
		return "default"
	}
	return "invalid"
}

// ParseDirection reads a direction attribute name.
func ParseDirection(s string) Direction {
	switch strings.ToLower(s) {
	case "sendrecv":
		return SendRecv
	case "sendonly":
		return SendOnly
	case "recvonly":
		return RecvOnly
	case "inactive":
		return Inactive
	}
	return DirectionInvalid
}

// Reverse returns the direction the other side of a negotiation sees.
func (d Direction) Reverse() Direction {
	switch d {
	case SendOnly:
		return RecvOnly
	case RecvOnly:
		return SendOnly
	}
	return d
}

// AudioCodec names an audio codec the gateway knows.
type AudioCodec string

const (
	Opus   AudioCodec = "opus"
	PCMU   AudioCodec = "pcmu"
	PCMA   AudioCodec = "pcma"
	G722   AudioCodec = "g722"
	ISAC16 AudioCodec = "isac16"
	ISAC32 AudioCodec = "isac32"
)

// VideoCodec names a video codec the gateway knows.
type VideoCodec string

const (
	VP8  VideoCodec = "vp8"
	VP9  VideoCodec = "vp9"
	H264 VideoCodec = "h264"
	AV1  VideoCodec = "av1"
	H265 VideoCodec = "h265"
)

// payloadAttributes are the attributes whose value starts with a payload type.
var payloadAttributes = []string{"rtpmap", "fmtp", "rtcp-fb"}

// Sdp is a session description owned by the caller until Destroy.
type Sdp struct {
	raw       *C.janus_sdp
	destroyed atomic.Bool
}

func wrap(raw *C.janus_sdp) *Sdp {
	if raw == nil {
		return nil
	}
	return &Sdp{raw: raw}
}

// FromPointer takes ownership of a native janus_sdp.
func FromPointer(p unsafe.Pointer) *Sdp {
	return wrap((*C.janus_sdp)(p))
}

// Pointer returns the native description, still owned by s.
func (s *Sdp) Pointer() unsafe.Pointer {
	return unsafe.Pointer(s.ptr())
}

func (s *Sdp) ptr() *C.janus_sdp {
	if s.destroyed.Load() || s.raw == nil {
		panic("sdp: use of a destroyed session description")
	}
	return s.raw
}

// Parse parses SDP text.
func Parse(text string) (*Sdp, error) {
	ct := C.CString(text)
	defer C.free(unsafe.Pointer(ct))
	errbuf := (*C.char)(C.calloc(errorBufferSize, 1))
	defer C.free(unsafe.Pointer(errbuf))

	raw := C.janus_sdp_parse(ct, errbuf, errorBufferSize)
	if raw == nil {
		return nil, &ParseError{Message: C.GoString(errbuf)}
	}
	return wrap(raw), nil
}

// Write serializes s. The caller frees the returned string.
func (s *Sdp) Write() (*cstr.GLibString, error) {
	text := cstr.FromPtr[cstr.GLib](unsafe.Pointer(C.janus_sdp_write(s.ptr())))
	if text == nil {
		return nil, ErrWrite
	}
	return text, nil
}

// String returns the SDP text, or "" if it cannot be written.
func (s *Sdp) String() string {
	text, err := s.Write()
	if err != nil {
		return ""
	}
	defer text.Free()
	return text.Lossy()
}

// SessionName returns the s= line.
func (s *Sdp) SessionName() string {
	return goString(s.ptr().s_name)
}

// Attributes returns the session level attributes.
func (s *Sdp) Attributes() []Attribute {
	return attributes(s.ptr().attributes)
}

// PayloadType returns the payload type negotiated for codec.
func (s *Sdp) PayloadType(codec string) (int, bool) {
	cc := C.CString(codec)
	defer C.free(unsafe.Pointer(cc))
	pt := int(C.janus_sdp_get_codec_pt(s.ptr(), cc))
	if pt < 0 {
		return 0, false
	}
	return pt, true
}

// CodecName returns the name of the codec bound to pt.
func (s *Sdp) CodecName(pt int) (string, bool) {
	name := C.janus_sdp_get_codec_name(s.ptr(), C.int(pt))
	if name == nil {
		return "", false
	}
	return C.GoString(name), true
}

// RemovePayloadType drops pt and its attributes from every m-line.
func (s *Sdp) RemovePayloadType(pt int) error {
	if C.janus_sdp_remove_payload_type(s.ptr(), C.int(pt)) != 0 {
		return ErrRemovePayloadType
	}
	return nil
}

// AddAttribute adds "a=name:value" to every m-line offering pt.
func (s *Sdp) AddAttribute(pt int, name, value string) {
	cn := C.CString(name)
	defer C.free(unsafe.Pointer(cn))
	cv := C.CString(value)
	defer C.free(unsafe.Pointer(cv))

	for _, m := range s.mlines() {
		if C.go_sdp_list_has_int(m.raw.ptypes, C.int(pt)) != 0 {
			C.janus_sdp_attribute_add_to_mline(m.raw, C.go_sdp_attribute_new(cn, cv))
		}
	}
}

// RewritePayloadType renumbers the dynamic payload type from to to in every
// m-line's payload list and in the rtpmap, fmtp and rtcp-fb attributes that
// refer to it.
func (s *Sdp) RewritePayloadType(from, to int) {
	fromStr, toStr := strconv.Itoa(from), strconv.Itoa(to)
	for _, m := range s.mlines() {
		m.raw.ptypes = C.go_sdp_list_replace_int(m.raw.ptypes, C.int(from), C.int(to))

		for link := m.raw.attributes; link != nil; {
			next := link.next
			attr := (*C.janus_sdp_attribute)(link.data)
			if rewritesPayload(goString(attr.name)) {
				value := goString(attr.value)
				if pt, rest, found := strings.Cut(value, " "); pt == fromStr {
					rewritten := toStr
					if found {
						rewritten += " " + rest
					}
					cv := C.CString(rewritten)
					C.go_sdp_replace_attribute(m.raw, link, cv)
					C.free(unsafe.Pointer(cv))
				}
			}
			link = next
		}
	}
}

func rewritesPayload(name string) bool {
	for _, n := range payloadAttributes {
		if n == name {
			return true
		}
	}
	return false
}

func (s *Sdp) mlines() []*MLine {
	var out []*MLine
	for l := s.ptr().m_lines; l != nil; l = l.next {
		out = append(out, &MLine{raw: (*C.janus_sdp_mline)(l.data)})
	}
	return out
}

// MLines returns the m-lines grouped by media type, each group in document order.
func (s *Sdp) MLines() map[MediaType][]*MLine {
	out := make(map[MediaType][]*MLine)
	for _, m := range s.mlines() {
		out[m.Type()] = append(out[m.Type()], m)
	}
	return out
}

// Destroy frees s. Only the first call has an effect.
func (s *Sdp) Destroy() {
	if s == nil || s.raw == nil || !s.destroyed.CompareAndSwap(false, true) {
		return
	}
	C.janus_sdp_destroy(s.raw)
}

// MarshalJSON encodes s as its SDP text.
func (s *Sdp) MarshalJSON() ([]byte, error) {
	text, err := s.Write()
	if err != nil {
		return nil, err
	}
	defer text.Free()
	body, err := text.Text()
	if err != nil {
		return nil, err
	}
	return json.Marshal(body)
}

// UnmarshalJSON parses an SDP string into s, destroying what s held before.
func (s *Sdp) UnmarshalJSON(b []byte) error {
	var text string
	if err := json.Unmarshal(b, &text); err != nil {
		return err
	}
	parsed, err := Parse(text)
	if err != nil {
		return err
	}
	s.Destroy()
	s.raw = parsed.raw
	s.destroyed.Store(false)
	return nil
}

// MLine is a view of one m-line, valid while its Sdp is.
type MLine struct {
	raw *C.janus_sdp_mline
}

// Attribute is one a= line.
type Attribute struct {
	Name      string
	Value     string
	Direction Direction
}

func (m *MLine) Type() MediaType { return MediaType(m.raw._type) }
func (m *MLine) Port() int { return int(m.raw.port) }
func (m *MLine) Proto() string { return goString(m.raw.proto) }
func (m *MLine) Direction() Direction { return Direction(m.raw.direction) }

// SetDirection overrides the m-line direction.
func (m *MLine) SetDirection(d Direction) {
	m.raw.direction = C.janus_sdp_mdirection(d)
}

// PayloadTypes returns the payload types in list order.
func (m *MLine) PayloadTypes() []int {
	var out []int
	for l := m.raw.ptypes; l != nil; l = l.next {
		out = append(out, int(uintptr(l.data)))
	}
	return out
}

// Formats returns the raw format strings of the m= line.
func (m *MLine) Formats() []string {
	var out []string
	for l := m.raw.fmts; l != nil; l = l.next {
		out = append(out, goString((*C.char)(l.data)))
	}
	return out
}

// Attributes returns the m-line attributes in list order.
func (m *MLine) Attributes() []Attribute {
	return attributes(m.raw.attributes)
}

// Attribute returns the first value of the named attribute.
func (m *MLine) Attribute(name string) (string, bool) {
	for _, a := range m.Attributes() {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

func attributes(l *C.GList) []Attribute {
	var out []Attribute
	for ; l != nil; l = l.next {
		a := (*C.janus_sdp_attribute)(l.data)
		out = append(out, Attribute{Name: goString(a.name), Value: goString(a.value), Direction: Direction(a.direction)})
	}
	return out
}

func goString(p *C.char) string {
	if p == nil {
		return ""
	}
	return C.GoString(p)
}
