// Package journal implements janus.eventhandler.gojournal, which records
// gateway events to SQLite, forwards them to a collector and serves them over
// an HTTP query API.
package journal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	apiserver "github.com/arqut/janus-plugin-go/api"
	"github.com/arqut/janus-plugin-go/pkg/config"
	"github.com/arqut/janus-plugin-go/pkg/jansson"
	"github.com/arqut/janus-plugin-go/pkg/janus"
	"github.com/arqut/janus-plugin-go/pkg/janus/eventhandler"
	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/models"
	"github.com/arqut/janus-plugin-go/pkg/providers"
	"github.com/arqut/janus-plugin-go/pkg/providers/analytics"
	"github.com/arqut/janus-plugin-go/pkg/providers/auth"
	"github.com/arqut/janus-plugin-go/pkg/providers/forward"
	"github.com/arqut/janus-plugin-go/pkg/providers/store"
	"github.com/arqut/janus-plugin-go/pkg/storage"
	"github.com/arqut/janus-plugin-go/pkg/uplink"
)

// Package is the event handler's package name.
const Package = "janus.eventhandler.gojournal"

// Metadata is what the handler reports to the gateway.
var Metadata = eventhandler.Metadata{
	Version:       1,
	VersionString: "0.1.0",
	Description:   "Journals gateway events to SQLite and forwards them to a collector.",
	Name:          "Go event journal",
	Author:        "Arqut",
	Package:       Package,
}

const shutdownTimeout = 5 * time.Second

// Handler is the journal. Create it with New and hand it to eventhandler.Register.
type Handler struct {
	eventhandler.Base

	log     *logger.Logger
	current atomic.Pointer[journal]
}

var _ eventhandler.Handler = (*Handler)(nil)

// New creates a handler that is not yet initialized.
func New() *Handler {
	return &Handler{log: janus.NewLogger("[gojournal]")}
}

// journal is the state of one init/destroy cycle
type journal struct {
	cfg      *config.Config
	registry *providers.Registry
	db       storage.Storage
	server   *apiserver.ApiServer
	log      *logger.Logger

	// mu is held for reading while an event is queued and for writing when
	// the journal stops accepting events
	mu      sync.RWMutex
	stopped bool
	events  chan *models.Event
	cancel  context.CancelFunc
	quit    chan struct{}
	done    chan struct{}

	received  atomic.Uint64
	filtered  atomic.Uint64
	invalid   atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// Init loads the configuration, opens the sinks and starts the dispatcher.
func (h *Handler) Init(configPath string) error {
	if h.current.Load() != nil {
		return errors.New("already initialized")
	}
	cfg, err := config.Load(configPath, Package)
	if err != nil {
		return err
	}
	if level, ok := cfg.Level(); ok {
		h.log.SetLevel(level)
	}

	mask, err := eventhandler.ParseMask(cfg.Journal.Events)
	if err != nil {
		return fmt.Errorf("invalid events mask: %w", err)
	}

	j, err := open(cfg, mask, h.log)
	if err != nil {
		return err
	}
	h.current.Store(j)

	h.log.Info("Journal ready (instance %s, services %v, events %s)", cfg.InstanceID, j.registry.Names(), mask)
	return nil
}

// open starts the sinks. The mask is applied only once nothing can fail.
func open(cfg *config.Config, mask eventhandler.Mask, log *logger.Logger) (*journal, error) {
	j := &journal{
		cfg:    cfg,
		log:    log,
		events: make(chan *models.Event, cfg.Journal.QueueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	if path := cfg.Journal.DBPath; path != "" && path != "none" {
		db, err := storage.NewSQLiteStorage(path, log)
		if err != nil {
			return nil, err
		}
		j.db = db
	}

	var up *uplink.Client
	if cfg.Journal.ForwardURL != "" {
		up = uplink.NewClient(cfg.Journal.ForwardURL, Metadata.VersionString, cfg.Journal.QueueSize, log)
	}

	j.registry = providers.NewRegistry(j.db, log, cfg, up)
	j.registry.MustRegister(analytics.NewService())
	if j.db != nil {
		j.registry.MustRegister(store.NewService(0))
	}
	if up != nil {
		j.registry.MustRegister(forward.NewService())
	}
	if cfg.Journal.APIKey != "" {
		j.registry.MustRegister(auth.NewService())
	}

	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	if err := j.registry.InitializeAll(ctx); err != nil {
		j.close()
		return nil, err
	}

	if cfg.Journal.APIAddr != "" {
		var accessLog io.Writer
		if log.Enabled(logger.Huge) {
			accessLog = janus.Sink{}
		}
		server, err := apiserver.New(j.registry, accessLog)
		if err != nil {
			j.close()
			return nil, err
		}
		j.server = server
		go func() {
			if err := server.Start(cfg.Journal.APIAddr); err != nil {
				log.Err("Query API stopped: %v", err)
			}
		}()
	}

	eventhandler.SetMask(mask)
	j.registry.StartRunnable(ctx)
	go j.run()
	return j, nil
}

// Destroy drains queued events into the sinks and closes them.
func (h *Handler) Destroy() {
	j := h.current.Swap(nil)
	if j == nil {
		return
	}
	j.mu.Lock()
	j.stopped = true
	j.mu.Unlock()
	close(j.quit)
	<-j.done

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if j.server != nil {
		if err := j.server.Shutdown(ctx); err != nil {
			h.log.Warn("Query API shutdown: %v", err)
		}
	}
	j.registry.Shutdown(ctx)
	j.close()
}

func (j *journal) close() {
	j.cancel()
	if j.db != nil {
		if err := j.db.Close(); err != nil {
			j.log.Warn("Closing the journal database: %v", err)
		}
	}
}

// IncomingEvent queues the event for the dispatcher. A full queue drops it.
func (h *Handler) IncomingEvent(v *jansson.Value) {
	j := h.current.Load()
	if j == nil {
		return
	}
	j.received.Add(1)

	ev, err := eventhandler.DecodeEvent(v)
	if err != nil {
		j.invalid.Add(1)
		h.log.Warn("Ignoring malformed event: %v", err)
		return
	}
	if !eventhandler.CurrentMask().Has(ev.Type) {
		j.filtered.Add(1)
		return
	}

	rec := &models.Event{
		Instance:  j.cfg.InstanceID,
		Emitter:   ev.Emitter,
		Type:      uint32(ev.Type),
		TypeName:  ev.TypeName(),
		Subtype:   ev.Subtype,
		SessionID: ev.SessionID,
		HandleID:  ev.HandleID,
		OpaqueID:  ev.OpaqueID,
		Body:      ev.Body,
		EmittedAt: ev.Time().UTC(),
	}
	if !j.enqueue(rec) {
		if j.dropped.Add(1)%100 == 1 {
			h.log.Warn("Event queue is full, %d events dropped so far", j.dropped.Load())
		}
	}
}

// enqueue hands rec to the dispatcher without blocking. It fails when the
// queue is full or the journal has stopped.
func (j *journal) enqueue(rec *models.Event) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.stopped {
		return false
	}
	select {
	case j.events <- rec:
		return true
	default:
		return false
	}
}

// run hands queued events to the sinks until quit, then drains the queue
func (j *journal) run() {
	defer close(j.done)
	for {
		select {
		case ev := <-j.events:
			j.dispatch(ev)
		case <-j.quit:
			for {
				select {
				case ev := <-j.events:
					j.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (j *journal) dispatch(ev *models.Event) {
	defer j.processed.Add(1)
	defer func() {
		if v := recover(); v != nil {
			j.failed.Add(1)
			j.log.Err("panic while dispatching an event: %v", v)
		}
	}()
	if err := j.registry.Dispatch(context.Background(), ev); err != nil {
		j.failed.Add(1)
		j.log.Warn("Dispatching a %s event: %v", ev.TypeName, err)
	}
}
