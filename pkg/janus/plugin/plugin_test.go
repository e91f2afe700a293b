//go:build janus_testgateway

package plugin

import (
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pion/webrtc/v4"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus"
	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/session"
)

type counterState struct {
	messages atomic.Int32
}

type testPlugin struct {
	Base
	gw         *Gateway
	configPath string
	createErr  error
	destroyed  int
}

func (p *testPlugin) Init(gw *Gateway, configPath string) error {
	p.gw = gw
	p.configPath = configPath
	if configPath == "/fail" {
		return errors.New("bad config")
	}
	return nil
}

func (p *testPlugin) CreateSession(s *Session) error {
	if p.createErr != nil {
		return p.createErr
	}
	ref, err := session.Associate(s, &counterState{})
	if err != nil {
		return err
	}
	ref.Release()
	return nil
}

func (p *testPlugin) HandleMessage(s *Session, transaction string, message, jsep *jansson.Value) *Result {
	ref, err := session.Retrieve[*counterState](s)
	if err != nil {
		return Error(err.Error())
	}
	defer ref.Release()
	n := (*ref.State()).messages.Add(1)

	var name string
	if req, ok := message.Get("request"); ok {
		name, _ = req.StringValue()
		req.Release()
	}
	switch name {
	case "panic":
		panic("boom")
	case "wait":
		return OKWait("working")
	}

	reply, err := jansson.NewBuilder().
		Str("transaction", transaction).
		Int("count", int64(n)).
		Bool("jsep", jsep != nil).
		Build()
	if err != nil {
		return Error(err.Error())
	}
	return OK(reply)
}

func (p *testPlugin) IncomingRTP(s *Session, packet *RTPPacket) {
	p.gw.RelayRTP(s, packet)
}

func (p *testPlugin) QuerySession(s *Session) *jansson.Value {
	ref, err := session.Retrieve[*counterState](s)
	if err != nil {
		return nil
	}
	defer ref.Release()
	v, _ := jansson.NewBuilder().Int("messages", int64((*ref.State()).messages.Load())).Build()
	return v
}

func (p *testPlugin) HandleAdminMessage(message *jansson.Value) *jansson.Value {
	v, _ := jansson.NewBuilder().Int("sessions", int64(session.Live())).Build()
	return v
}

func (p *testPlugin) Destroy() { p.destroyed++ }

var testMetadata = Metadata{
	Version:       3,
	VersionString: "0.0.3",
	Description:   "Test plugin.",
	Name:          "Test",
	Author:        "Arqut",
	Package:       "janus.plugin.gotest",
}

func setupPlugin(t *testing.T) (*testPlugin, Harness) {
	t.Helper()
	p := &testPlugin{}
	Register(p, testMetadata)
	h := Harness{}
	if code := h.Init("/etc/janus"); code != 0 {
		t.Fatalf("init returned %d", code)
	}
	h.Calls()
	janus.StubLogLines()
	return p, h
}

func mustJSON(t *testing.T, text string) *jansson.Value {
	t.Helper()
	v, err := jansson.Loads(text, 0)
	if err != nil {
		t.Fatalf("Loads(%q) failed: %v", text, err)
	}
	t.Cleanup(v.Release)
	return v
}

func TestDescribe(t *testing.T) {
	_, h := setupPlugin(t)

	api, md := h.Describe()
	if api != janus.PluginAPIVersion {
		t.Errorf("Expected API %d, got %d", janus.PluginAPIVersion, api)
	}
	if diff := cmp.Diff(testMetadata, md); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}
}

func TestInit(t *testing.T) {
	p, h := setupPlugin(t)
	if p.configPath != "/etc/janus" || p.gw == nil {
		t.Fatalf("Init did not receive its arguments: %q %v", p.configPath, p.gw)
	}
	if code := h.Init("/fail"); code != -1 {
		t.Errorf("Expected -1 for a failing init, got %d", code)
	}
	h.Destroy()
	if p.destroyed != 1 {
		t.Errorf("Expected Destroy once, got %d", p.destroyed)
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, h := setupPlugin(t)
	live := session.Live()
	freed := h.SessionsFreed()

	s := h.NewSession()
	if code := h.CreateSession(s); code != 0 {
		t.Fatalf("create_session returned %d", code)
	}
	if s.RefCount() != 2 {
		t.Fatalf("Expected the plugin to hold a native reference, count is %d", s.RefCount())
	}

	msg := mustJSON(t, `{"request": "ping"}`)
	res := h.HandleMessage(s, "t1", msg, nil)
	defer res.Content.Release()
	if res.Type != ResultOK {
		t.Fatalf("Expected ok, got %s (%s)", res.Type, res.Text)
	}
	if got := res.Content.String(); got != `{"transaction":"t1","count":1,"jsep":false}` {
		t.Errorf("Unexpected reply %s", got)
	}
	if msg.RefCount() != 1 {
		t.Errorf("Expected the message reference returned after the call, count is %d", msg.RefCount())
	}

	q := h.QuerySession(s)
	if q == nil || q.String() != `{"messages":1}` {
		t.Errorf("Unexpected query reply %v", q)
	}
	q.Release()

	if code := h.DestroySession(s); code != 0 {
		t.Fatalf("destroy_session returned %d", code)
	}
	if session.Live() != live {
		t.Errorf("Expected the association torn down, %d live", session.Live())
	}
	if s.RefCount() != 1 || h.SessionsFreed() != freed {
		t.Fatalf("Expected only the gateway reference left, count %d", s.RefCount())
	}

	s.Release()
	if h.SessionsFreed() != freed+1 {
		t.Errorf("Expected the native session freed once")
	}
}

func TestHandleMessageResults(t *testing.T) {
	_, h := setupPlugin(t)
	s := h.NewSession()
	h.CreateSession(s)
	defer func() {
		h.DestroySession(s)
		s.Release()
	}()

	wait := h.HandleMessage(s, "t2", mustJSON(t, `{"request": "wait"}`), nil)
	if wait.Type != ResultOKWait || wait.Text != "working" {
		t.Errorf("Expected ok_wait with a hint, got %s %q", wait.Type, wait.Text)
	}

	jsep := mustJSON(t, `{"type": "offer", "sdp": "v=0"}`)
	res := h.HandleMessage(s, "t3", mustJSON(t, `{"request": "ping"}`), jsep)
	defer res.Content.Release()
	if !strings.Contains(res.Content.String(), `"jsep":true`) {
		t.Errorf("Expected the jsep to reach the plugin, got %s", res.Content)
	}
	if jsep.RefCount() != 1 {
		t.Errorf("Expected the jsep reference returned after the call, count is %d", jsep.RefCount())
	}
}

func TestPanicIsRecovered(t *testing.T) {
	_, h := setupPlugin(t)
	janus.SetStubLogParams(logger.Err, false, false)
	defer janus.SetStubLogParams(logger.Info, false, false)

	s := h.NewSession()
	h.CreateSession(s)
	defer func() {
		h.DestroySession(s)
		s.Release()
	}()

	res := h.HandleMessage(s, "t4", mustJSON(t, `{"request": "panic"}`), nil)
	if res.Type != ResultError || res.Text != "internal plugin error" {
		t.Errorf("Expected an error result, got %s %q", res.Type, res.Text)
	}
	lines := janus.StubLogLines()
	if len(lines) == 0 || !strings.Contains(lines[len(lines)-1], "panic in handle_message: boom") {
		t.Errorf("Expected the panic to be logged, got %q", lines)
	}
}

func TestCreateSessionErrors(t *testing.T) {
	p, h := setupPlugin(t)
	s := h.NewSession()
	defer s.Release()

	p.createErr = &janus.APIError{Code: janus.ErrorSessionConflict, Message: "taken"}
	if code := h.CreateSession(s); code != janus.ErrorSessionConflict {
		t.Errorf("Expected code %d, got %d", janus.ErrorSessionConflict, code)
	}
	p.createErr = errors.New("plain")
	if code := h.CreateSession(s); code != -1 {
		t.Errorf("Expected -1 for an uncoded error, got %d", code)
	}
}

func TestNullSession(t *testing.T) {
	_, h := setupPlugin(t)
	if code := h.CreateSession(nil); code != -1 {
		t.Errorf("Expected -1 for a null session, got %d", code)
	}
	res := h.HandleMessage(nil, "t5", mustJSON(t, `{}`), nil)
	if res.Type != ResultError {
		t.Errorf("Expected an error result for a null session, got %s", res.Type)
	}
	if q := h.QuerySession(nil); q != nil {
		t.Errorf("Expected no query reply, got %s", q)
	}
}

func TestAssociateNullPointer(t *testing.T) {
	s := SessionFromPointer(nil)
	if !s.Null() {
		t.Fatal("Expected a null session")
	}
	if _, err := session.Associate(s, &counterState{}); !errors.Is(err, session.ErrNullHandle) {
		t.Errorf("Associate returned %v, want ErrNullHandle", err)
	}
	if _, err := session.Retrieve[*counterState](s); !errors.Is(err, session.ErrNullHandle) {
		t.Errorf("Retrieve returned %v, want ErrNullHandle", err)
	}
	if err := session.Detach(s); !errors.Is(err, session.ErrNullHandle) {
		t.Errorf("Detach returned %v, want ErrNullHandle", err)
	}
}

func TestAdminMessage(t *testing.T) {
	_, h := setupPlugin(t)
	msg := mustJSON(t, `{"request": "list"}`)
	reply := h.HandleAdminMessage(msg)
	if reply == nil {
		t.Fatal("Expected an admin reply")
	}
	defer reply.Release()
	if !strings.HasPrefix(reply.String(), `{"sessions":`) {
		t.Errorf("Unexpected admin reply %s", reply)
	}
	if msg.RefCount() != 1 {
		t.Errorf("Admin messages are borrowed, count is %d", msg.RefCount())
	}
}

func TestIncomingRTPIsDispatched(t *testing.T) {
	_, h := setupPlugin(t)
	s := h.NewSession()
	defer s.Release()

	h.IncomingRTP(s, true, []byte{0x80, 0x60, 0x00, 0x01})
	calls := h.Calls()
	if len(calls) != 1 || calls[0].Name != "relay_rtp" {
		t.Fatalf("Expected one relay_rtp, got %+v", calls)
	}
	if !calls[0].Flag || !cmp.Equal(calls[0].Buffer, []byte{0x80, 0x60, 0x00, 0x01}) {
		t.Errorf("Unexpected relayed packet %+v", calls[0])
	}
}

func TestGatewayCallbacks(t *testing.T) {
	_, h := setupPlugin(t)
	gw := h.Gateway()
	s := h.NewSession()
	defer s.Release()

	event := mustJSON(t, `{"echotest": "event"}`)
	if err := gw.PushEvent(s, "t6", event, nil); err != nil {
		t.Fatalf("PushEvent failed: %v", err)
	}
	h.SetPushEventResult(janus.ErrorHandleNotFound)
	err := gw.PushEvent(s, "t7", event, nil)
	h.SetPushEventResult(0)
	if !errors.Is(err, &janus.APIError{Code: janus.ErrorHandleNotFound}) {
		t.Errorf("Expected a handle-not-found error, got %v", err)
	}
	if event.RefCount() != 1 {
		t.Errorf("push_event borrows, count is %d", event.RefCount())
	}

	gw.SendPLI(s)
	gw.SendREMB(s, 128000)
	gw.RelayData(s, &DataPacket{Label: "chat", Buffer: []byte("hi")})
	gw.NotifyEvent(s, event)
	if event.RefCount() != 1 {
		t.Errorf("notify_event must get its own reference, count is %d", event.RefCount())
	}

	calls := h.Calls()
	var names []string
	for _, c := range calls {
		names = append(names, c.Name)
	}
	want := []string{"push_event", "push_event", "send_pli", "send_remb", "relay_data", "notify_event"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("Callback mismatch (-want +got):\n%s", diff)
	}
	if calls[0].Transaction != "t6" || calls[0].Message != `{"echotest":"event"}` || calls[0].JSEP != "" {
		t.Errorf("Unexpected push_event %+v", calls[0])
	}
	if calls[3].Bitrate != 128000 {
		t.Errorf("Expected bitrate 128000, got %d", calls[3].Bitrate)
	}
	if string(calls[4].Buffer) != "hi" {
		t.Errorf("Unexpected data %q", calls[4].Buffer)
	}

	h.SetEventsEnabled(true)
	if !gw.EventsEnabled() {
		t.Error("Expected events enabled")
	}
	h.SetEventsEnabled(false)
	if !gw.AuthIsSigned() || !gw.AuthIsSignatureValid("valid:room") || gw.AuthSignatureContains("valid:room", "lobby") {
		t.Error("Unexpected token checks")
	}
	if err := gw.PushEvent(nil, "", event, nil); !errors.Is(err, ErrNullSession) {
		t.Errorf("Expected ErrNullSession, got %v", err)
	}
}

func TestJSEP(t *testing.T) {
	desc, err := ParseJSEP(mustJSON(t, `{"type": "offer", "sdp": "v=0\r\n"}`))
	if err != nil {
		t.Fatalf("ParseJSEP failed: %v", err)
	}
	if desc.Type != webrtc.SDPTypeOffer || desc.SDP != "v=0\r\n" {
		t.Errorf("Unexpected description %+v", desc)
	}

	_, err = ParseJSEP(mustJSON(t, `{"type": "bogus", "sdp": ""}`))
	if !errors.Is(err, ErrJSEPType) || ErrorCode(err) != janus.ErrorJSEPUnknownType {
		t.Errorf("Expected an unknown JSEP type error, got %v", err)
	}
	_, err = ParseJSEP(mustJSON(t, `{"type": "answer"}`))
	if ErrorCode(err) != janus.ErrorJSEPInvalidSDP {
		t.Errorf("Expected an invalid SDP error, got %v", err)
	}
	if _, err := ParseJSEP(nil); !errors.Is(err, ErrNoJSEP) {
		t.Errorf("Expected ErrNoJSEP, got %v", err)
	}

	v, err := JSEP(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"})
	if err != nil {
		t.Fatalf("JSEP failed: %v", err)
	}
	defer v.Release()
	if v.String() != `{"type":"answer","sdp":"v=0\r\n"}` {
		t.Errorf("Unexpected jsep %s", v)
	}
}
