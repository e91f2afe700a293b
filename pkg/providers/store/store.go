package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/models"
	"github.com/arqut/janus-plugin-go/pkg/providers"
	"github.com/arqut/janus-plugin-go/pkg/storage/repositories"
)

// DefaultPruneInterval is how often the retention limit is enforced
const DefaultPruneInterval = time.Minute

// Service journals events to the database and prunes them
type Service struct {
	events    *repositories.EventRepository
	logger    *logger.Logger
	retention int
	interval  time.Duration

	stored   atomic.Uint64
	quit     chan struct{}
	stopOnce sync.Once
}

// NewService creates a store service. interval <= 0 uses DefaultPruneInterval.
func NewService(interval time.Duration) *Service {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	return &Service{interval: interval, quit: make(chan struct{})}
}

// Name returns the service name
func (s *Service) Name() string {
	return "store"
}

// Initialize takes the event repository from the registry's database
func (s *Service) Initialize(ctx context.Context, registry *providers.Registry) error {
	db := registry.DB()
	if db == nil {
		return errors.New("no database configured")
	}
	s.events = db.Events()
	s.logger = registry.Logger()
	if cfg := registry.Config(); cfg != nil {
		s.retention = cfg.Journal.Retention
	}
	return nil
}

// IsRunnable returns true, the service prunes in the background
func (s *Service) IsRunnable() bool {
	return true
}

// Start prunes every interval until stopped. Without a retention limit it
// only waits.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.quit:
			return nil
		case <-ticker.C:
			if _, err := s.Prune(ctx); err != nil {
				s.logger.Warn("Pruning the journal failed: %v", err)
			}
		}
	}
}

// Stop ends the pruning loop
func (s *Service) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.quit) })
	return nil
}

// Consume stores ev
func (s *Service) Consume(ctx context.Context, ev *models.Event) error {
	if err := s.events.Add(ctx, ev); err != nil {
		return err
	}
	s.stored.Add(1)
	return nil
}

// Prune applies the retention limit now
func (s *Service) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	removed, err := s.events.Prune(ctx, s.retention)
	if err == nil && removed > 0 {
		s.logger.Verb("Pruned %d journal events", removed)
	}
	return removed, err
}

// Stored returns how many events were written since start
func (s *Service) Stored() uint64 {
	return s.stored.Load()
}

func (s *Service) List(ctx context.Context, filter models.EventFilter) ([]*models.Event, error) {
	return s.events.List(ctx, filter)
}

func (s *Service) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	return s.events.Count(ctx, filter)
}

func (s *Service) CountByType(ctx context.Context) (map[string]int64, error) {
	return s.events.CountByType(ctx)
}

var _ providers.Service = (*Service)(nil)
var _ providers.EventConsumer = (*Service)(nil)
var _ providers.EventQuerier = (*Service)(nil)
