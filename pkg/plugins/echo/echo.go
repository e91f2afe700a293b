// Package echo implements janus.plugin.goecho, which sends a peer's audio,
// video and data channel traffic straight back to it.
package echo

import (
	"cmp"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"

	"github.com/arqut/janus-plugin-go/pkg/config"
	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus"
	"github.com/arqut/janus-plugin-go/pkg/janus/plugin"
	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/session"
)

// Package is the plugin's package name.
const Package = "janus.plugin.goecho"

// Metadata is what the plugin reports to the gateway.
var Metadata = plugin.Metadata{
	Version:       1,
	VersionString: "0.1.0",
	Description:   "Echoes RTP, RTCP and data channel traffic back to the sender.",
	Name:          "Go EchoTest plugin",
	Author:        "Arqut",
	Package:       Package,
}

// Plugin-specific error codes, sent as error_code in events.
const (
	ErrorNoMessage      = 411
	ErrorInvalidJSON    = 412
	ErrorInvalidElement = 413
	ErrorInvalidSDP     = 414
	ErrorUnknown        = 499
)

// slow_link never caps below this
const minBitrate = 64 * 1024

var errNotRunning = errors.New("plugin is not running")

// Plugin is the echo plugin. Create it with New and hand it to plugin.Register.
type Plugin struct {
	plugin.Base

	gw  *plugin.Gateway
	cfg config.EchoConfig
	log *logger.Logger

	mu       sync.Mutex
	sessions map[unsafe.Pointer]*echoSession

	// lifecycle is held for writing while the worker starts or stops, and for
	// reading while a message is queued
	lifecycle sync.RWMutex
	queue     chan *job
	quit      chan struct{}
	done      chan struct{}
	running   atomic.Bool
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates a plugin that is not yet initialized.
func New() *Plugin {
	return &Plugin{
		log:      janus.NewLogger("[goecho]"),
		sessions: make(map[unsafe.Pointer]*echoSession),
	}
}

// Init loads the configuration and starts the message worker.
func (p *Plugin) Init(gw *plugin.Gateway, configPath string) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.running.Load() {
		return errors.New("already initialized")
	}
	cfg, err := config.Load(configPath, Package)
	if err != nil {
		return err
	}
	if level, ok := cfg.Level(); ok {
		p.log.SetLevel(level)
	}

	p.gw = gw
	p.cfg = cfg.Echo
	p.queue = make(chan *job, p.cfg.QueueSize)
	p.quit = make(chan struct{})
	p.done = make(chan struct{})
	p.running.Store(true)
	go p.run()

	p.log.Info("Echo plugin ready (instance %s, queue %d, max bitrate %d)", cfg.InstanceID, p.cfg.QueueSize, p.cfg.MaxBitrate)
	return nil
}

// Destroy stops the worker. Queued messages are dropped.
func (p *Plugin) Destroy() {
	p.lifecycle.Lock()
	stopped := p.running.CompareAndSwap(true, false)
	p.lifecycle.Unlock()
	if !stopped {
		return
	}
	close(p.quit)
	<-p.done

	p.mu.Lock()
	clear(p.sessions)
	p.mu.Unlock()
}

func (p *Plugin) CreateSession(s *plugin.Session) error {
	st := newEchoSession(uuid.NewString(), p.cfg.MaxBitrate)
	ref, err := session.Associate(s, st)
	if err != nil {
		return err
	}
	ref.Release()

	p.mu.Lock()
	p.sessions[s.Pointer()] = st
	p.mu.Unlock()

	p.log.Verb("Session %s created", st.id)
	p.notify(s, map[string]any{"event": "created", "id": st.id})
	return nil
}

func (p *Plugin) DestroySession(s *plugin.Session) error {
	ref, err := session.Retrieve[*echoSession](s)
	if err != nil {
		return &janus.APIError{Code: janus.ErrorHandleNotFound, Message: "No session associated with this handle"}
	}
	defer ref.Release()
	st := *ref.State()
	st.destroyed.Store(true)

	p.mu.Lock()
	delete(p.sessions, s.Pointer())
	p.mu.Unlock()

	p.log.Verb("Session %s destroyed", st.id)
	p.notify(s, map[string]any{"event": "destroyed", "id": st.id})
	return nil
}

func (p *Plugin) QuerySession(s *plugin.Session) *jansson.Value {
	ref, err := session.Retrieve[*echoSession](s)
	if err != nil {
		return nil
	}
	defer ref.Release()
	v, err := jansson.FromGo((*ref.State()).snapshot())
	if err != nil {
		p.log.Err("query_session: %v", err)
		return nil
	}
	return v
}

type adminRequest struct {
	Request string `json:"request"`
}

// HandleAdminMessage answers "list" with the session ids and "stats" with
// every session's snapshot.
func (p *Plugin) HandleAdminMessage(message *jansson.Value) *jansson.Value {
	var req adminRequest
	if err := message.Decode(&req); err != nil {
		return p.adminReply(map[string]any{"error": err.Error()})
	}

	p.mu.Lock()
	snaps := make([]snapshot, 0, len(p.sessions))
	for _, st := range p.sessions {
		snaps = append(snaps, st.snapshot())
	}
	p.mu.Unlock()
	slices.SortFunc(snaps, func(a, b snapshot) int { return cmp.Compare(a.ID, b.ID) })

	switch req.Request {
	case "list":
		ids := make([]string, len(snaps))
		for i, snap := range snaps {
			ids[i] = snap.ID
		}
		return p.adminReply(map[string]any{"sessions": ids})
	case "stats":
		return p.adminReply(map[string]any{"sessions": snaps})
	}
	return p.adminReply(map[string]any{"error": "unknown request " + req.Request})
}

func (p *Plugin) adminReply(reply map[string]any) *jansson.Value {
	v, err := jansson.FromGo(reply)
	if err != nil {
		p.log.Err("handle_admin_message: %v", err)
		return nil
	}
	return v
}

// notify forwards a plugin event to the event handlers when enabled.
func (p *Plugin) notify(s *plugin.Session, event map[string]any) {
	if !p.cfg.Notify || !p.gw.EventsEnabled() {
		return
	}
	v, err := jansson.FromGo(event)
	if err != nil {
		p.log.Warn("notify: %v", err)
		return
	}
	defer v.Release()
	p.gw.NotifyEvent(s, v)
}

// state returns the session's state, or nil if it is gone.
func (p *Plugin) state(s *plugin.Session) (*echoSession, func()) {
	ref, err := session.Retrieve[*echoSession](s)
	if err != nil {
		return nil, nil
	}
	return *ref.State(), ref.Release
}
