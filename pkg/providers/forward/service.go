package forward

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"github.com/arqut/janus-plugin-go/pkg/janus/eventhandler"
	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/models"
	"github.com/arqut/janus-plugin-go/pkg/providers"
	"github.com/arqut/janus-plugin-go/pkg/uplink"
)

// Frame is the payload of an event frame: the gateway's envelope plus the
// journal instance
type Frame struct {
	Instance string `json:"instance"`
	eventhandler.Event
}

// Service forwards events to the collector over the uplink
type Service struct {
	client     *uplink.Client
	logger     *logger.Logger
	apiKey     string
	instanceID string

	forwarded atomic.Uint64
}

// NewService creates a new forwarding service
func NewService() *Service {
	return &Service{}
}

// Name returns the service name
func (s *Service) Name() string {
	return "forward"
}

// Initialize takes the uplink client and installs the collector's handlers
func (s *Service) Initialize(ctx context.Context, registry *providers.Registry) error {
	s.client = registry.Uplink()
	if s.client == nil {
		return errors.New("no collector configured")
	}
	s.logger = registry.Logger()
	if cfg := registry.Config(); cfg != nil {
		s.apiKey = cfg.Journal.ForwardKey
		s.instanceID = cfg.InstanceID
	}

	s.client.SetMessageHandler(uplink.TypeMask, s.handleMask)
	s.client.AddOnConnectHandler(func(ctx context.Context) error {
		return s.client.Send(uplink.TypeMask, eventhandler.CurrentMask().String())
	})
	return nil
}

// handleMask applies an events mask pushed by the collector. The payload is
// a string in ParseMask format.
func (s *Service) handleMask(ctx context.Context, msg *uplink.Message) error {
	var names string
	if err := json.Unmarshal(msg.Data, &names); err != nil {
		return fmt.Errorf("invalid mask payload: %w", err)
	}
	mask, err := eventhandler.ParseMask(names)
	if err != nil {
		return err
	}
	eventhandler.SetMask(mask)
	s.logger.Info("Collector changed the events mask to %s", mask)
	return nil
}

// IsRunnable returns true, the uplink connects in the background
func (s *Service) IsRunnable() bool {
	return true
}

// Start connects to the collector
func (s *Service) Start(ctx context.Context) error {
	s.client.Connect(ctx, s.apiKey, s.instanceID)
	return nil
}

// Stop closes the uplink
func (s *Service) Stop(ctx context.Context) error {
	s.client.Close()
	return nil
}

// RegisterAPIRoutes registers nothing
func (s *Service) RegisterAPIRoutes(router fiber.Router) error {
	return nil
}

// Consume queues ev for the collector. A full queue drops the event.
func (s *Service) Consume(ctx context.Context, ev *models.Event) error {
	frame, err := json.Marshal(Frame{
		Instance: ev.Instance,
		Event: eventhandler.Event{
			Emitter:   ev.Emitter,
			Type:      eventhandler.Mask(ev.Type),
			Subtype:   ev.Subtype,
			Timestamp: ev.EmittedAt.UnixMicro(),
			SessionID: ev.SessionID,
			HandleID:  ev.HandleID,
			OpaqueID:  ev.OpaqueID,
			Body:      ev.Body,
		},
	})
	if err != nil {
		return err
	}
	if s.client.Enqueue(uplink.TypeEvent, frame) {
		s.forwarded.Add(1)
	}
	return nil
}

// Connected reports whether the uplink is up
func (s *Service) Connected() bool {
	return s.client.IsConnected()
}

// Forwarded returns how many events were queued for the collector
func (s *Service) Forwarded() uint64 {
	return s.forwarded.Load()
}

// Dropped returns how many frames the uplink discarded
func (s *Service) Dropped() uint64 {
	return s.client.Dropped()
}

var _ providers.Service = (*Service)(nil)
var _ providers.EventConsumer = (*Service)(nil)
var _ providers.IntegrationProvider = (*Service)(nil)
