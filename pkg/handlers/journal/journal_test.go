//go:build janus_testgateway

package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus/eventhandler"
	"github.com/arqut/janus-plugin-go/pkg/models"
)

const memoryConfig = `instance_id: edge01
journal:
  events: sessions,handles,media
  db_path: ":memory:"
`

func writeConfig(t *testing.T, dir, yaml string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, Package+".yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func setupJournal(t *testing.T, yaml string) (string, eventhandler.Harness) {
	t.Helper()
	dir := t.TempDir()
	writeConfig(t, dir, yaml)

	eventhandler.Register(New(), Metadata, eventhandler.All)
	h := eventhandler.Harness{}
	if code := h.Init(dir); code != 0 {
		t.Fatalf("init returned %d", code)
	}
	t.Cleanup(h.Destroy)
	return dir, h
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

func send(t *testing.T, h eventhandler.Harness, typ eventhandler.Mask, session uint64, ts int64) {
	t.Helper()
	h.IncomingEvent(mustJSON(t, fmt.Sprintf(
		`{"emitter": "MyJanus", "type": %d, "timestamp": %d, "session_id": %d, "handle_id": 5, "event": {"name": "test"}}`,
		typ, ts, session)))
}

func ask[T any](t *testing.T, h eventhandler.Harness, text string) T {
	t.Helper()
	reply := h.HandleRequest(mustJSON(t, text))
	if reply == nil {
		t.Fatalf("No reply to %s", text)
	}
	defer reply.Release()
	var out T
	if err := reply.Decode(&out); err != nil {
		t.Fatalf("Decode %s: %v", reply, err)
	}
	return out
}

func waitProcessed(t *testing.T, h eventhandler.Harness, n uint64) statsReply {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		stats := ask[statsReply](t, h, `{"request": "stats"}`)
		if stats.Processed >= n {
			return stats
		}
		if time.Now().After(deadline) {
			t.Fatalf("Only %d of %d events processed", stats.Processed, n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInitAppliesMask(t *testing.T) {
	dir, h := setupJournal(t, memoryConfig)

	_, md, events := h.Describe()
	if md.Package != Package {
		t.Errorf("Unexpected package %q", md.Package)
	}
	if events != eventhandler.Session|eventhandler.Handle|eventhandler.Media {
		t.Errorf("Unexpected mask %s", events)
	}
	data, err := os.ReadFile(filepath.Join(dir, Package+".yaml"))
	if err != nil || len(data) == 0 {
		t.Errorf("Expected the configuration saved with defaults: %v", err)
	}
}

func TestEventsAreJournaled(t *testing.T) {
	_, h := setupJournal(t, memoryConfig)

	base := int64(1700000000000000)
	send(t, h, eventhandler.Session, 7, base)
	send(t, h, eventhandler.Handle, 7, base+1000)
	send(t, h, eventhandler.Media, 8, base+2000)

	stats := waitProcessed(t, h, 3)
	if diff := cmp.Diff(map[string]uint64{"sessions": 1, "handles": 1, "media": 1}, stats.Counts); diff != "" {
		t.Errorf("counts (-want +got):\n%s", diff)
	}
	if stats.Stored == nil || *stats.Stored != 3 || stats.Received != 3 || stats.Failed != 0 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if diff := cmp.Diff([]string{"analytics", "store"}, stats.Services); diff != "" {
		t.Errorf("services (-want +got):\n%s", diff)
	}
	if stats.Instance != "edge01" || stats.Collector != nil {
		t.Errorf("Unexpected stats %+v", stats)
	}

	recent := ask[recentReply](t, h, `{"request": "recent"}`)
	var types []string
	for _, ev := range recent.Events {
		types = append(types, ev.TypeName)
	}
	if diff := cmp.Diff([]string{"media", "handles", "sessions"}, types); diff != "" {
		t.Errorf("recent (-want +got):\n%s", diff)
	}

	first := recent.Events[2]
	want := models.Event{
		Instance:  "edge01",
		Emitter:   "MyJanus",
		Type:      1,
		TypeName:  "sessions",
		SessionID: 7,
		HandleID:  5,
	}
	got := models.Event{
		Instance:  first.Instance,
		Emitter:   first.Emitter,
		Type:      first.Type,
		TypeName:  first.TypeName,
		SessionID: first.SessionID,
		HandleID:  first.HandleID,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event (-want +got):\n%s", diff)
	}
	if !first.EmittedAt.Equal(time.UnixMicro(base)) || string(first.Body) != `{"name":"test"}` {
		t.Errorf("Unexpected event %v %s", first.EmittedAt, first.Body)
	}

	filtered := ask[recentReply](t, h, `{"request": "recent", "type": "handles"}`)
	if len(filtered.Events) != 1 || filtered.Events[0].Type != 2 {
		t.Errorf("Unexpected type filter %+v", filtered.Events)
	}
	limited := ask[recentReply](t, h, `{"request": "recent", "limit": 1, "session_id": 7}`)
	if len(limited.Events) != 1 || limited.Events[0].TypeName != "handles" {
		t.Errorf("Unexpected limited listing %+v", limited.Events)
	}
}

func TestFilteredAndInvalidEvents(t *testing.T) {
	_, h := setupJournal(t, memoryConfig)

	send(t, h, eventhandler.Plugin, 1, 1)
	h.IncomingEvent(mustJSON(t, `[1, 2]`))
	h.IncomingEvent(mustJSON(t, `{"type": "sessions"}`))
	send(t, h, eventhandler.Session, 1, 2)

	stats := waitProcessed(t, h, 1)
	if stats.Received != 4 || stats.Filtered != 1 || stats.Invalid != 2 || stats.Processed != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestMaskRequest(t *testing.T) {
	_, h := setupJournal(t, memoryConfig)

	reply := ask[maskReply](t, h, `{"request": "mask", "events": "plugins, core"}`)
	if reply.Result != "ok" || reply.Events != "plugins,core" {
		t.Errorf("Unexpected reply %+v", reply)
	}
	if eventhandler.CurrentMask() != eventhandler.Plugin|eventhandler.Core {
		t.Errorf("Mask is %s", eventhandler.CurrentMask())
	}

	send(t, h, eventhandler.Session, 1, 1)
	send(t, h, eventhandler.Core, 0, 2)
	stats := waitProcessed(t, h, 1)
	if stats.Filtered != 1 || stats.Counts["core"] != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	bad := ask[errorReply](t, h, `{"request": "mask", "events": "bogus"}`)
	if bad.ErrorCode != ErrorInvalidElement {
		t.Errorf("Unexpected reply %+v", bad)
	}
}

func TestInvalidRequests(t *testing.T) {
	_, h := setupJournal(t, memoryConfig)

	tests := []struct {
		req  string
		code int
	}{
		{`{"request": "bogus"}`, ErrorUnknownRequest},
		{`{}`, ErrorInvalidElement},
		{`{"request": 5}`, ErrorInvalidJSON},
		{`{"request": "recent", "type": "all"}`, ErrorInvalidElement},
	}
	for _, tt := range tests {
		reply := ask[errorReply](t, h, tt.req)
		if reply.ErrorCode != tt.code || reply.Error == "" {
			t.Errorf("%s: got %+v, want code %d", tt.req, reply, tt.code)
		}
	}
}

func TestWithoutStorage(t *testing.T) {
	_, h := setupJournal(t, "journal:\n  db_path: none\n")

	send(t, h, eventhandler.Session, 1, 1)
	stats := waitProcessed(t, h, 1)
	if stats.Stored != nil || stats.Counts["sessions"] != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}
	if diff := cmp.Diff([]string{"analytics"}, stats.Services); diff != "" {
		t.Errorf("services (-want +got):\n%s", diff)
	}

	reply := ask[errorReply](t, h, `{"request": "recent"}`)
	if reply.ErrorCode != ErrorUnavailable {
		t.Errorf("Unexpected reply %+v", reply)
	}
}

func TestDestroyDrainsQueue(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "journal:\n  db_path: "+filepath.Join(dir, "journal.db")+"\n")
	eventhandler.Register(New(), Metadata, eventhandler.All)
	h := eventhandler.Harness{}
	if code := h.Init(dir); code != 0 {
		t.Fatalf("init returned %d", code)
	}
	for i := range 20 {
		send(t, h, eventhandler.Session, uint64(i+1), int64(i+1))
	}
	h.Destroy()

	if code := h.Init(dir); code != 0 {
		t.Fatalf("second init returned %d", code)
	}
	t.Cleanup(h.Destroy)
	recent := ask[recentReply](t, h, `{"request": "recent", "limit": 100}`)
	if len(recent.Events) != 20 {
		t.Errorf("Expected every queued event stored, got %d", len(recent.Events))
	}
}

func TestInitFailures(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "journal:\n  events: sessions,bogus\n  db_path: none\n")
	eventhandler.Register(New(), Metadata, eventhandler.All)
	h := eventhandler.Harness{}
	if code := h.Init(dir); code != -1 {
		t.Errorf("Expected an invalid mask to fail init, got %d", code)
	}

	_, h = setupJournal(t, memoryConfig)
	if code := h.Init(t.TempDir()); code != -1 {
		t.Errorf("Expected a second init to fail, got %d", code)
	}
}

func TestFailedInitKeepsMask(t *testing.T) {
	eventhandler.SetMask(eventhandler.Core)
	dir := t.TempDir()
	writeConfig(t, dir, "journal:\n  events: sessions\n  db_path: "+filepath.Join(dir, "missing", "journal.db")+"\n")
	eventhandler.Register(New(), Metadata, eventhandler.Core)
	h := eventhandler.Harness{}
	if code := h.Init(dir); code != -1 {
		h.Destroy()
		t.Fatalf("Expected an unusable database to fail init, got %d", code)
	}
	if got := eventhandler.CurrentMask(); got != eventhandler.Core {
		t.Errorf("Expected the mask left at core, got %s", got)
	}
}

func TestDestroyWhileEventsArrive(t *testing.T) {
	handler := New()
	eventhandler.Register(handler, Metadata, eventhandler.All)
	h := eventhandler.Harness{}
	dir := t.TempDir()
	writeConfig(t, dir, memoryConfig)
	if code := h.Init(dir); code != 0 {
		t.Fatalf("init returned %d", code)
	}
	j := handler.current.Load()

	events := make([]*jansson.Value, 4)
	for i := range events {
		events[i] = mustJSON(t, fmt.Sprintf(`{"type": 1, "timestamp": %d, "session_id": %d}`, i+1, i+1))
	}
	var wg sync.WaitGroup
	var stop atomic.Bool
	for _, ev := range events {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				h.IncomingEvent(ev)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	h.Destroy()
	stop.Store(true)
	wg.Wait()

	accounted := j.processed.Load() + j.dropped.Load() + j.filtered.Load() + j.invalid.Load()
	if received := j.received.Load(); received == 0 || received != accounted {
		t.Errorf("Received %d events but accounted for %d", received, accounted)
	}
}

func TestRequestsBeforeInit(t *testing.T) {
	eventhandler.Register(New(), Metadata, eventhandler.All)
	h := eventhandler.Harness{}

	reply := ask[errorReply](t, h, `{"request": "stats"}`)
	if reply.ErrorCode != ErrorUnknown {
		t.Errorf("Unexpected reply %+v", reply)
	}
	h.IncomingEvent(mustJSON(t, `{"type": 1, "timestamp": 1}`))
}
