package forward

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/arqut/janus-plugin-go/pkg/config"
	"github.com/arqut/janus-plugin-go/pkg/janus/eventhandler"
	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/models"
	"github.com/arqut/janus-plugin-go/pkg/providers"
	"github.com/arqut/janus-plugin-go/pkg/uplink"
)

func setupCollector(t *testing.T) (string, chan uplink.Message, chan *websocket.Conn) {
	t.Helper()
	frames := make(chan uplink.Message, 16)
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer collector-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
		for {
			var msg uplink.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			frames <- msg
		}
	}))
	t.Cleanup(srv.Close)
	return srv.URL, frames, conns
}

func nextFrame(t *testing.T, frames chan uplink.Message) uplink.Message {
	t.Helper()
	select {
	case msg := <-frames:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a frame")
	}
	return uplink.Message{}
}

func TestForwardToCollector(t *testing.T) {
	url, frames, conns := setupCollector(t)
	log := logger.New(io.Discard, "TEST", logger.Dbg)
	cfg := &config.Config{InstanceID: "edge01", Journal: config.JournalConfig{ForwardKey: "collector-key"}}
	client := uplink.NewClient(url, "test", 8, log)
	registry := providers.NewRegistry(nil, log, cfg, client)

	fwd := NewService()
	registry.MustRegister(fwd)
	ctx := context.Background()
	if err := registry.InitializeAll(ctx); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	eventhandler.SetMask(eventhandler.Session | eventhandler.Handle)
	if err := fwd.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer registry.Shutdown(ctx)

	conn := <-conns
	if hello := nextFrame(t, frames); hello.Type != uplink.TypeHello {
		t.Fatalf("Expected hello, got %s", hello.Type)
	}
	mask := nextFrame(t, frames)
	if mask.Type != uplink.TypeMask || string(mask.Data) != `"sessions,handles"` {
		t.Errorf("Expected the current mask announced, got %s %s", mask.Type, mask.Data)
	}
	if !fwd.Connected() {
		t.Error("Expected the uplink connected")
	}

	emitted := time.UnixMicro(1700000000123456).UTC()
	ev := &models.Event{Instance: "edge01", Type: 1, TypeName: "sessions", SessionID: 42, EmittedAt: emitted, Body: json.RawMessage(`{"name":"created"}`)}
	if err := registry.Dispatch(ctx, ev); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	frame := nextFrame(t, frames)
	if frame.Type != uplink.TypeEvent {
		t.Fatalf("Expected an event frame, got %s", frame.Type)
	}
	var got Frame
	if err := json.Unmarshal(frame.Data, &got); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if got.Instance != "edge01" || got.Type != eventhandler.Session || got.SessionID != 42 || got.Timestamp != 1700000000123456 {
		t.Errorf("Unexpected frame %+v", got)
	}
	if string(got.Body) != `{"name":"created"}` {
		t.Errorf("Unexpected body %s", got.Body)
	}
	if fwd.Forwarded() != 1 {
		t.Errorf("Forwarded = %d", fwd.Forwarded())
	}

	if err := conn.WriteJSON(uplink.Message{Type: uplink.TypeMask, Data: json.RawMessage(`"media,core"`)}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for eventhandler.CurrentMask() != eventhandler.Media|eventhandler.Core {
		if time.Now().After(deadline) {
			t.Fatalf("Mask is still %s", eventhandler.CurrentMask())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestForwardRequiresUplink(t *testing.T) {
	registry := providers.NewRegistry(nil, logger.New(io.Discard, "TEST", logger.Dbg), &config.Config{}, nil)
	registry.MustRegister(NewService())
	if err := registry.InitializeAll(context.Background()); err == nil {
		t.Error("Expected the forward service to require an uplink")
	}
}

func TestBadMaskIsRejected(t *testing.T) {
	s := &Service{logger: logger.New(io.Discard, "TEST", logger.Dbg)}
	eventhandler.SetMask(eventhandler.Session)
	if err := s.handleMask(context.Background(), &uplink.Message{Data: json.RawMessage(`"bogus"`)}); err == nil {
		t.Error("Expected an unknown type error")
	}
	if err := s.handleMask(context.Background(), &uplink.Message{Data: json.RawMessage(`3`)}); err == nil {
		t.Error("Expected a payload error")
	}
	if eventhandler.CurrentMask() != eventhandler.Session {
		t.Errorf("Mask changed to %s", eventhandler.CurrentMask())
	}
}
