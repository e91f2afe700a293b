package store

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arqut/janus-plugin-go/pkg/api"
	"github.com/arqut/janus-plugin-go/pkg/janus/eventhandler"
	"github.com/arqut/janus-plugin-go/pkg/models"
	"github.com/arqut/janus-plugin-go/pkg/storage/repositories"
)

// DefaultPerPage is the page size when none is requested
const DefaultPerPage = 50

// RegisterAPIRoutes registers the journal routes under router
func (s *Service) RegisterAPIRoutes(router fiber.Router) error {
	events := router.Group("/events")

	events.Get("/", s.handleListEvents)
	events.Get("/types", s.handleCountByType)
	events.Delete("/", s.handleClearEvents)
	return nil
}

// parseFilter reads type, session_id, since, page and per_page
func parseFilter(c *fiber.Ctx) (models.EventFilter, int, int, error) {
	var filter models.EventFilter

	if t := c.Query("type"); t != "" {
		m, err := eventhandler.ParseType(t)
		if err != nil {
			return filter, 0, 0, err
		}
		filter.Type = uint32(m)
	}
	if id := c.Query("session_id"); id != "" {
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return filter, 0, 0, err
		}
		filter.SessionID = n
	}
	if since := c.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return filter, 0, 0, err
		}
		filter.Since = ts.UTC()
	}

	page := max(c.QueryInt("page", 1), 1)
	perPage := c.QueryInt("per_page", DefaultPerPage)
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	perPage = min(perPage, repositories.MaxListLimit)
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage
	return filter, page, perPage, nil
}

// handleListEvents handles GET /api/events - returns a page of events, newest first
func (s *Service) handleListEvents(c *fiber.Ctx) error {
	filter, page, perPage, err := parseFilter(c)
	if err != nil {
		return api.ErrorBadRequestResp(c, err.Error())
	}

	events, err := s.List(c.Context(), filter)
	if err != nil {
		s.logger.Err("Error listing events: %v", err)
		return api.ErrorInternalServerErrorResp(c, "Failed to list events")
	}
	total, err := s.Count(c.Context(), filter)
	if err != nil {
		s.logger.Err("Error counting events: %v", err)
		return api.ErrorInternalServerErrorResp(c, "Failed to count events")
	}

	return api.SuccessResp(c, events, api.ApiResponseMeta{
		Pagination: api.NewPagination(page, perPage, total),
	})
}

// handleCountByType handles GET /api/events/types - returns stored counts per type
func (s *Service) handleCountByType(c *fiber.Ctx) error {
	counts, err := s.CountByType(c.Context())
	if err != nil {
		s.logger.Err("Error counting events: %v", err)
		return api.ErrorInternalServerErrorResp(c, "Failed to count events")
	}
	return api.SuccessResp(c, counts)
}

// handleClearEvents handles DELETE /api/events - empties the journal
func (s *Service) handleClearEvents(c *fiber.Ctx) error {
	if err := s.events.Clear(c.Context()); err != nil {
		s.logger.Err("Error clearing events: %v", err)
		return api.ErrorInternalServerErrorResp(c, "Failed to clear events")
	}
	return api.SuccessResp(c, nil)
}
