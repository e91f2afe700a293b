package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arqut/janus-plugin-go/pkg/api"
	"github.com/arqut/janus-plugin-go/pkg/models"
	"github.com/arqut/janus-plugin-go/pkg/providers"
)

// Service counts consumed events per type in memory
type Service struct {
	counts    map[string]uint64
	total     uint64
	firstSeen time.Time
	lastSeen  time.Time
	mu        sync.RWMutex
}

// NewService creates a new analytics service
func NewService() *Service {
	return &Service{
		counts: make(map[string]uint64),
	}
}

// Name returns the service name
func (s *Service) Name() string {
	return "analytics"
}

// Initialize sets up the service
func (s *Service) Initialize(ctx context.Context, registry *providers.Registry) error {
	return nil
}

// IsRunnable returns false, counting happens in Consume
func (s *Service) IsRunnable() bool {
	return false
}

func (s *Service) Start(ctx context.Context) error {
	return nil
}

// Stop resets the counters
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts = make(map[string]uint64)
	s.total = 0
	s.firstSeen, s.lastSeen = time.Time{}, time.Time{}
	return nil
}

// RegisterAPIRoutes registers GET /stats
func (s *Service) RegisterAPIRoutes(router fiber.Router) error {
	router.Get("/stats", s.handleGetStats)
	return nil
}

func (s *Service) handleGetStats(c *fiber.Ctx) error {
	var query providers.MetricsQuery
	if err := c.QueryParser(&query); err != nil {
		return api.ErrorBadRequestResp(c, "Invalid query")
	}
	result, err := s.GetMetrics(c.Context(), query)
	if err != nil {
		return api.ErrorInternalServerErrorResp(c, err.Error())
	}
	return api.SuccessResp(c, result)
}

// Consume counts ev under its type name
func (s *Service) Consume(ctx context.Context, ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts[ev.TypeName]++
	s.total++
	if s.firstSeen.IsZero() || ev.EmittedAt.Before(s.firstSeen) {
		s.firstSeen = ev.EmittedAt
	}
	if ev.EmittedAt.After(s.lastSeen) {
		s.lastSeen = ev.EmittedAt
	}
	return nil
}

// GetMetrics returns the counters, restricted to query.EventTypes when set
func (s *Service) GetMetrics(ctx context.Context, query providers.MetricsQuery) (*providers.MetricsResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := &providers.MetricsResult{Data: make(map[string]uint64)}
	if len(query.EventTypes) == 0 {
		for name, count := range s.counts {
			result.Data[name] = count
		}
		result.Count = s.total
	} else {
		for _, name := range query.EventTypes {
			count := s.counts[name]
			result.Data[name] = count
			result.Count += count
		}
	}

	if s.total > 0 {
		first, last := s.firstSeen, s.lastSeen
		result.FirstSeen, result.LastSeen = &first, &last
	}
	return result, nil
}

var _ providers.Service = (*Service)(nil)
var _ providers.EventConsumer = (*Service)(nil)
var _ providers.AnalyticsProvider = (*Service)(nil)
