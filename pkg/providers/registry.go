package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/arqut/janus-plugin-go/pkg/config"
	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/models"
	"github.com/arqut/janus-plugin-go/pkg/storage"
	"github.com/arqut/janus-plugin-go/pkg/uplink"
)

// Service is the base interface that all providers must implement
type Service interface {
	// Name returns unique service identifier (constant)
	Name() string

	// Initialize sets up the service with dependencies from registry
	Initialize(ctx context.Context, registry *Registry) error

	// IsRunnable indicates if service needs to run in background
	IsRunnable() bool

	// Start starts the service (only called if IsRunnable returns true)
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service
	Stop(ctx context.Context) error

	// RegisterAPIRoutes registers HTTP routes for this service under router
	RegisterAPIRoutes(router fiber.Router) error
}

// Registry manages service lifecycle and dependencies
type Registry struct {
	services  map[string]Service
	order     []Service
	runnable  []Service
	consumers []Service
	db        storage.Storage
	logger    *logger.Logger
	config    *config.Config
	uplink    *uplink.Client // nil unless forwarding is configured
}

// NewRegistry creates a new service registry. db and up may be nil.
func NewRegistry(db storage.Storage, log *logger.Logger, cfg *config.Config, up *uplink.Client) *Registry {
	return &Registry{
		services: make(map[string]Service),
		db:       db,
		logger:   log,
		config:   cfg,
		uplink:   up,
	}
}

// MustRegister registers a service and panics on error
func (r *Registry) MustRegister(service Service) {
	if err := r.Register(service); err != nil {
		panic(fmt.Sprintf("Failed to register service %s: %v", service.Name(), err))
	}
}

// DB returns the database storage, nil when the journal runs without one
func (r *Registry) DB() storage.Storage {
	return r.db
}

// Logger returns the logger
func (r *Registry) Logger() *logger.Logger {
	return r.logger
}

func (r *Registry) Config() *config.Config {
	return r.config
}

// Uplink returns the collector client (can be nil if not configured)
func (r *Registry) Uplink() *uplink.Client {
	return r.uplink
}

// Register adds a service to the registry (before initialization)
func (r *Registry) Register(service Service) error {
	name := service.Name()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}

	r.services[name] = service
	r.order = append(r.order, service)

	if service.IsRunnable() {
		r.runnable = append(r.runnable, service)
	}
	if _, ok := service.(EventConsumer); ok {
		r.consumers = append(r.consumers, service)
	}

	return nil
}

// Names returns the registered service names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, service := range r.order {
		names[i] = service.Name()
	}
	return names
}

// InitializeAll initializes all services in registration order
func (r *Registry) InitializeAll(ctx context.Context) error {
	for _, service := range r.order {
		r.logger.Verb("Initializing service: %s", service.Name())
		if err := service.Initialize(ctx, r); err != nil {
			return fmt.Errorf("failed to initialize service %s: %w", service.Name(), err)
		}
	}

	r.logger.Info("All %d services initialized successfully", len(r.order))
	return nil
}

// StartRunnable starts all background services
func (r *Registry) StartRunnable(ctx context.Context) {
	for _, service := range r.runnable {
		r.logger.Verb("Starting service: %s", service.Name())

		go func(s Service) {
			if err := s.Start(ctx); err != nil {
				r.logger.Err("Service %s stopped with error: %v", s.Name(), err)
			}
		}(service)
	}
}

// Dispatch hands ev to every consumer in registration order. A failing
// consumer does not stop the others.
func (r *Registry) Dispatch(ctx context.Context, ev *models.Event) error {
	var errs []error
	for _, service := range r.consumers {
		if err := service.(EventConsumer).Consume(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", service.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown gracefully stops all services in reverse registration order
func (r *Registry) Shutdown(ctx context.Context) {
	for i := len(r.order) - 1; i >= 0; i-- {
		service := r.order[i]
		r.logger.Verb("Stopping service: %s", service.Name())
		if err := service.Stop(ctx); err != nil {
			r.logger.Err("Error stopping service %s: %v", service.Name(), err)
		}
	}
	r.logger.Info("All services stopped")
}

// Get retrieves a service by name
func (r *Registry) Get(name string) (Service, error) {
	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("service %s not found", name)
	}
	return service, nil
}

// RegisterAllRoutes registers API routes for all services
func (r *Registry) RegisterAllRoutes(router fiber.Router) error {
	for _, service := range r.order {
		if err := service.RegisterAPIRoutes(router); err != nil {
			return fmt.Errorf("failed to register routes for service %s: %w", service.Name(), err)
		}
	}
	return nil
}

func lookup[T any](r *Registry, name string) (T, error) {
	var zero T
	service, err := r.Get(name)
	if err != nil {
		return zero, err
	}
	provider, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("service %s is a %T", name, service)
	}
	return provider, nil
}

// GetAuth returns the auth service with type assertion
func (r *Registry) GetAuth() (AuthProvider, error) {
	return lookup[AuthProvider](r, "auth")
}

// GetQuerier returns the store service with type assertion
func (r *Registry) GetQuerier() (EventQuerier, error) {
	return lookup[EventQuerier](r, "store")
}

// GetAnalytics returns the analytics service with type assertion
func (r *Registry) GetAnalytics() (AnalyticsProvider, error) {
	return lookup[AnalyticsProvider](r, "analytics")
}

// GetIntegration returns the forwarding service with type assertion
func (r *Registry) GetIntegration() (IntegrationProvider, error) {
	return lookup[IntegrationProvider](r, "forward")
}
