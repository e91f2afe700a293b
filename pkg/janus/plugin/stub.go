//go:build janus_testgateway

package plugin

/*
#include <stdlib.h>
#include "stub.h"
*/
import "C"

import (
	"strings"
	"sync"
	"unsafe"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
)

// StubCall is one gateway callback recorded by the test gateway.
type StubCall struct {
	Name        string
	Session     unsafe.Pointer
	Transaction string
	Message     string
	JSEP        string
	// video flag for RTP/RTCP, binary flag for data
	Flag    bool
	Buffer  []byte
	Bitrate uint32
}

// StubResult is a handle_message result read back from the gateway side.
type StubResult struct {
	Type    ResultType
	Text    string
	Content *jansson.Value
}

var stub = struct {
	sync.Mutex
	calls         []StubCall
	eventsEnabled bool
	pushResult    int
	freed         int
}{}

func record(c StubCall) {
	stub.Lock()
	defer stub.Unlock()
	stub.calls = append(stub.calls, c)
}

func dumpBorrowed(p *C.json_t) string {
	v, err := jansson.Retain(unsafe.Pointer(p))
	if err != nil {
		return ""
	}
	defer v.Release()
	return v.String()
}

//export goStubPushEvent
func goStubPushEvent(handle *C.janus_plugin_session, transaction *C.char, message, jsep *C.json_t) C.int {
	c := StubCall{Name: "push_event", Session: unsafe.Pointer(handle), Message: dumpBorrowed(message), JSEP: dumpBorrowed(jsep)}
	if transaction != nil {
		c.Transaction = C.GoString(transaction)
	}
	record(c)
	stub.Lock()
	defer stub.Unlock()
	return C.int(stub.pushResult)
}

var relayNames = [...]string{"relay_rtp", "relay_rtcp", "relay_data"}

//export goStubRelay
func goStubRelay(handle *C.janus_plugin_session, kind, flag C.int, buf *C.char, n C.int) {
	record(StubCall{
		Name:    relayNames[kind],
		Session: unsafe.Pointer(handle),
		Flag:    flag != 0,
		Buffer:  C.GoBytes(unsafe.Pointer(buf), n),
	})
}

var signalNames = [...]string{"send_pli", "send_remb", "close_pc", "end_session"}

//export goStubSignal
func goStubSignal(handle *C.janus_plugin_session, kind C.int, value C.guint32) {
	record(StubCall{Name: signalNames[kind], Session: unsafe.Pointer(handle), Bitrate: uint32(value)})
}

//export goStubEventsEnabled
func goStubEventsEnabled() C.int {
	stub.Lock()
	defer stub.Unlock()
	return cint(stub.eventsEnabled)
}

//export goStubNotifyEvent
func goStubNotifyEvent(handle *C.janus_plugin_session, event *C.json_t) {
	// notify_event steals the reference
	v, err := jansson.Adopt(unsafe.Pointer(event))
	var text string
	if err == nil {
		text = v.String()
		v.Release()
	}
	record(StubCall{Name: "notify_event", Session: unsafe.Pointer(handle), Message: text})
}

//export goStubAuth
func goStubAuth(token, descriptor *C.char) C.int {
	t := C.GoString(token)
	if !strings.HasPrefix(t, "valid") {
		return 0
	}
	if descriptor != nil && !strings.Contains(t, C.GoString(descriptor)) {
		return 0
	}
	return 1
}

//export goStubSessionFreed
func goStubSessionFreed(*C.janus_plugin_session) {
	stub.Lock()
	defer stub.Unlock()
	stub.freed++
}

// Harness drives the registered plugin through its C vtable the way the
// gateway does, using an in-process test gateway for the callbacks.
type Harness struct{}

// Gateway returns the test gateway's callbacks.
func (Harness) Gateway() *Gateway {
	return &Gateway{cb: C.go_stub_callbacks()}
}

// NewSession allocates a native session holding one gateway reference.
func (Harness) NewSession() *Session {
	return sessionFrom(C.go_stub_session_new())
}

// Stop marks s as being torn down.
func (Harness) Stop(s *Session) {
	C.go_stub_session_stop(s.raw)
}

// SessionsFreed returns how many native sessions have been freed so far.
func (Harness) SessionsFreed() int {
	stub.Lock()
	defer stub.Unlock()
	return stub.freed
}

// Calls returns and clears the recorded gateway callbacks.
func (Harness) Calls() []StubCall {
	stub.Lock()
	defer stub.Unlock()
	calls := stub.calls
	stub.calls = nil
	return calls
}

// SetEventsEnabled controls events_is_enabled.
func (Harness) SetEventsEnabled(enabled bool) {
	stub.Lock()
	defer stub.Unlock()
	stub.eventsEnabled = enabled
}

// SetPushEventResult sets the code push_event returns.
func (Harness) SetPushEventResult(code int) {
	stub.Lock()
	defer stub.Unlock()
	stub.pushResult = code
}

// Init calls init with the test gateway callbacks.
func (Harness) Init(configPath string) int {
	cp := C.CString(configPath)
	defer C.free(unsafe.Pointer(cp))
	return int(C.go_stub_call_init(cp))
}

// Destroy calls destroy.
func (Harness) Destroy() {
	C.go_stub_call_destroy()
}

// Describe reads the capability getters.
func (Harness) Describe() (api int, md Metadata) {
	md.Version = int(C.go_stub_call_version())
	strs := make([]string, 5)
	for i := range strs {
		if p := C.go_stub_call_string(C.int(i)); p != nil {
			strs[i] = C.GoString(p)
		}
	}
	md.VersionString, md.Description, md.Name, md.Author, md.Package = strs[0], strs[1], strs[2], strs[3], strs[4]
	return int(C.go_stub_call_api()), md
}

// CreateSession calls create_session and returns the error code it set.
func (Harness) CreateSession(s *Session) int {
	return int(C.go_stub_call_create_session(rawOf(s)))
}

// HandleMessage calls handle_message. message and jsep are still released by the caller.
func (Harness) HandleMessage(s *Session, transaction string, message, jsep *jansson.Value) StubResult {
	var txn *C.char
	if transaction != "" {
		txn = C.CString(transaction)
		defer C.free(unsafe.Pointer(txn))
	}
	res := C.go_stub_call_handle_message(rawOf(s), txn, giveRef(message), giveRef(jsep))
	defer C.janus_plugin_result_destroy(res)

	out := StubResult{Type: ResultType(res._type)}
	if res.text != nil {
		out.Text = C.GoString(res.text)
	}
	if res.content != nil {
		out.Content, _ = jansson.Retain(unsafe.Pointer(res.content))
	}
	return out
}

// HandleAdminMessage calls handle_admin_message. The reply belongs to the caller.
func (Harness) HandleAdminMessage(message *jansson.Value) *jansson.Value {
	reply, _ := jansson.Adopt(unsafe.Pointer(C.go_stub_call_handle_admin_message(jsonPtr(message))))
	return reply
}

// SetupMedia calls setup_media.
func (Harness) SetupMedia(s *Session) { C.go_stub_call_setup_media(rawOf(s)) }

// IncomingRTP calls incoming_rtp.
func (Harness) IncomingRTP(s *Session, video bool, buf []byte) {
	p, n := cbytes(buf)
	C.go_stub_call_incoming_rtp(rawOf(s), cint(video), p, n)
}

// IncomingRTCP calls incoming_rtcp.
func (Harness) IncomingRTCP(s *Session, video bool, buf []byte) {
	p, n := cbytes(buf)
	C.go_stub_call_incoming_rtcp(rawOf(s), cint(video), p, n)
}

// IncomingData calls incoming_data.
func (Harness) IncomingData(s *Session, label string, binary bool, buf []byte) {
	cl := C.CString(label)
	defer C.free(unsafe.Pointer(cl))
	p, n := cbytes(buf)
	C.go_stub_call_incoming_data(rawOf(s), cl, cint(binary), p, n)
}

// DataReady calls data_ready.
func (Harness) DataReady(s *Session) { C.go_stub_call_data_ready(rawOf(s)) }

// SlowLink calls slow_link.
func (Harness) SlowLink(s *Session, uplink, video bool) {
	C.go_stub_call_slow_link(rawOf(s), cint(uplink), cint(video))
}

// HangupMedia calls hangup_media.
func (Harness) HangupMedia(s *Session) { C.go_stub_call_hangup_media(rawOf(s)) }

// DestroySession calls destroy_session and returns the error code it set.
func (Harness) DestroySession(s *Session) int {
	return int(C.go_stub_call_destroy_session(rawOf(s)))
}

// QuerySession calls query_session. The reply belongs to the caller.
func (Harness) QuerySession(s *Session) *jansson.Value {
	reply, _ := jansson.Adopt(unsafe.Pointer(C.go_stub_call_query_session(rawOf(s))))
	return reply
}

func rawOf(s *Session) *C.janus_plugin_session {
	if s == nil {
		return nil
	}
	return s.raw
}

// giveRef hands an extra reference to a callee that steals one.
func giveRef(v *jansson.Value) *C.json_t {
	if v == nil {
		return nil
	}
	return (*C.json_t)(v.IntoRaw())
}
