package repositories

import (
	"context"
	"fmt"

	"github.com/arqut/janus-plugin-go/pkg/models"
	"gorm.io/gorm"
)

// MaxListLimit bounds a single listing
const MaxListLimit = 500

type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) (*EventRepository, error) {
	if err := db.AutoMigrate(&models.Event{}); err != nil {
		return nil, fmt.Errorf("failed to migrate events: %w", err)
	}
	return &EventRepository{db: db}, nil
}

// Add stores a batch of events
func (r *EventRepository) Add(ctx context.Context, events ...*models.Event) error {
	if len(events) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(events).Error
}

// List returns matching events, newest first
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]*models.Event, error) {
	limit := filter.Limit
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	var events []*models.Event
	err := r.filtered(ctx, filter).
		Order("emitted_at desc, id desc").
		Limit(limit).
		Offset(filter.Offset).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns how many events match filter, ignoring its limit and offset
func (r *EventRepository) Count(ctx context.Context, filter models.EventFilter) (int64, error) {
	var count int64
	if err := r.filtered(ctx, filter).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountByType returns the number of stored events per type name
func (r *EventRepository) CountByType(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		TypeName string
		Total    int64
	}
	err := r.db.WithContext(ctx).Model(&models.Event{}).
		Select("type_name, count(*) as total").
		Group("type_name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.TypeName] = row.Total
	}
	return counts, nil
}

// Prune keeps the newest keep events and deletes the rest
func (r *EventRepository) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	newest := r.db.Model(&models.Event{}).Select("id").Order("id desc").Limit(keep)
	res := r.db.WithContext(ctx).Where("id NOT IN (?)", newest).Delete(&models.Event{})
	return res.RowsAffected, res.Error
}

// Clear removes all events
func (r *EventRepository) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Where("1 = 1").Delete(&models.Event{}).Error
}

func (r *EventRepository) filtered(ctx context.Context, filter models.EventFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&models.Event{})
	if filter.Type != 0 {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.SessionID != 0 {
		q = q.Where("session_id = ?", filter.SessionID)
	}
	if !filter.Since.IsZero() {
		q = q.Where("emitted_at >= ?", filter.Since)
	}
	return q
}
