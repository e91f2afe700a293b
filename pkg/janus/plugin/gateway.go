package plugin

/*
#include <stdlib.h>
#include "shim.h"
*/
import "C"

import (
	"errors"
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus"
)

// ErrNullSession is returned when a gateway call is made without a session.
var ErrNullSession = errors.New("a null session handle was provided")

// Gateway wraps the callbacks the gateway hands the plugin at init.
type Gateway struct {
	cb *C.janus_callbacks
}

// PushEvent sends an asynchronous event, optionally with a JSEP, to the
// session's peer. The gateway does not take the references; the caller still
// releases message and jsep.
func (g *Gateway) PushEvent(s *Session, transaction string, message, jsep *jansson.Value) error {
	if s == nil {
		return ErrNullSession
	}
	var txn *C.char
	if transaction != "" {
		txn = C.CString(transaction)
		defer C.free(unsafe.Pointer(txn))
	}
	code := C.go_cb_push_event(g.cb, s.raw, txn, jsonPtr(message), jsonPtr(jsep))
	return janus.Result(int(code))
}

// RelayRTP sends a media packet to the session's peer.
func (g *Gateway) RelayRTP(s *Session, p *RTPPacket) {
	buf, n := cbytes(p.Buffer)
	ext := p.Extensions.native()
	C.go_cb_relay_rtp(g.cb, s.raw, cint(p.Video), buf, n, &ext)
}

// RelayRTCP sends a control packet to the session's peer.
func (g *Gateway) RelayRTCP(s *Session, p *RTCPPacket) {
	buf, n := cbytes(p.Buffer)
	C.go_cb_relay_rtcp(g.cb, s.raw, cint(p.Video), buf, n)
}

// RelayData sends a data channel message to the session's peer.
func (g *Gateway) RelayData(s *Session, p *DataPacket) {
	var label, protocol *C.char
	if p.Label != "" {
		label = C.CString(p.Label)
		defer C.free(unsafe.Pointer(label))
	}
	if p.Protocol != "" {
		protocol = C.CString(p.Protocol)
		defer C.free(unsafe.Pointer(protocol))
	}
	buf, n := cbytes(p.Buffer)
	C.go_cb_relay_data(g.cb, s.raw, label, protocol, cint(p.Binary), buf, n)
}

// SendPLI asks the peer for a keyframe.
func (g *Gateway) SendPLI(s *Session) {
	C.go_cb_send_pli(g.cb, s.raw)
}

// SendREMB sends a bitrate estimate to the peer.
func (g *Gateway) SendREMB(s *Session, bitrate uint32) {
	C.go_cb_send_remb(g.cb, s.raw, C.guint32(bitrate))
}

// ClosePC closes the session's peer connection.
func (g *Gateway) ClosePC(s *Session) {
	C.go_cb_close_pc(g.cb, s.raw)
}

// EndSession detaches the session's handle from the plugin.
func (g *Gateway) EndSession(s *Session) {
	C.go_cb_end_session(g.cb, s.raw)
}

// EventsEnabled reports whether any event handler is loaded.
func (g *Gateway) EventsEnabled() bool {
	return C.go_cb_events_is_enabled(g.cb) != 0
}

// NotifyEvent hands event to the event handlers. s may be nil for plugin-wide
// events. The caller still releases event.
func (g *Gateway) NotifyEvent(s *Session, event *jansson.Value) {
	var raw *C.janus_plugin_session
	if s != nil {
		raw = s.raw
	}
	C.go_cb_notify_event(g.cb, raw, (*C.json_t)(event.IntoRaw()))
}

// AuthIsSigned reports whether the gateway uses signed tokens.
func (g *Gateway) AuthIsSigned() bool {
	return C.go_cb_auth_is_signed(g.cb) != 0
}

// AuthIsSignatureValid checks a signed token against this plugin.
func (g *Gateway) AuthIsSignatureValid(token string) bool {
	ct := C.CString(token)
	defer C.free(unsafe.Pointer(ct))
	return C.go_cb_auth_is_signature_valid(g.cb, ct) != 0
}

// AuthSignatureContains checks whether a signed token carries descriptor.
func (g *Gateway) AuthSignatureContains(token, descriptor string) bool {
	ct := C.CString(token)
	defer C.free(unsafe.Pointer(ct))
	cd := C.CString(descriptor)
	defer C.free(unsafe.Pointer(cd))
	return C.go_cb_auth_signature_contains(g.cb, ct, cd) != 0
}

func jsonPtr(v *jansson.Value) *C.json_t {
	if v == nil {
		return nil
	}
	return (*C.json_t)(v.Pointer())
}

func cint(b bool) C.int {
	if b {
		return 1
	}
	return 0
}
