package providers

import (
	"context"
	"time"

	"github.com/arqut/janus-plugin-go/pkg/models"
)

// EventConsumer receives every event the journal accepts
type EventConsumer interface {
	// Consume handles one event. It is called from the dispatcher goroutine only.
	Consume(ctx context.Context, ev *models.Event) error
}

// EventQuerier reads back stored events
type EventQuerier interface {
	List(ctx context.Context, filter models.EventFilter) ([]*models.Event, error)
	Count(ctx context.Context, filter models.EventFilter) (int64, error)
	CountByType(ctx context.Context) (map[string]int64, error)
}

// AuthProvider validates API tokens
type AuthProvider interface {
	// ValidateToken returns an error unless token is accepted
	ValidateToken(ctx context.Context, token string) error
}

// AnalyticsProvider keeps live counters of consumed events
type AnalyticsProvider interface {
	// GetMetrics retrieves metrics for a given query
	GetMetrics(ctx context.Context, query MetricsQuery) (*MetricsResult, error)
}

// MetricsQuery defines parameters for metrics retrieval
type MetricsQuery struct {
	EventTypes []string `json:"event_types" query:"type"`
}

// MetricsResult contains aggregated metrics
type MetricsResult struct {
	Data      map[string]uint64 `json:"data"`
	Count     uint64            `json:"count"`
	FirstSeen *time.Time        `json:"first_seen,omitempty"`
	LastSeen  *time.Time        `json:"last_seen,omitempty"`
}

// IntegrationProvider forwards events to an external collector
type IntegrationProvider interface {
	Connected() bool
	Forwarded() uint64
	Dropped() uint64
}
