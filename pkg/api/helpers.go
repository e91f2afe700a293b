package api

import (
	"github.com/gofiber/fiber/v2"
)

// SuccessResp sends data with status 200 and optional meta
func SuccessResp(c *fiber.Ctx, data any, meta ...ApiResponseMeta) error {
	resp := ApiResponse{
		Success: true,
		Data:    data,
	}
	if len(meta) > 0 {
		resp.Meta = &meta[0]
	}
	return c.Status(fiber.StatusOK).JSON(&resp)
}

// ErrorCodeResp sends an error envelope with status
func ErrorCodeResp(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(&ApiResponse{
		Error: &ApiError{Status: status, Message: message},
	})
}

// ErrorUnauthorizedResp sends a 401 Unauthorized error response
func ErrorUnauthorizedResp(c *fiber.Ctx, message string) error {
	return ErrorCodeResp(c, fiber.StatusUnauthorized, message)
}

// ErrorBadRequestResp sends a 400 Bad Request error response
func ErrorBadRequestResp(c *fiber.Ctx, message string) error {
	return ErrorCodeResp(c, fiber.StatusBadRequest, message)
}

// ErrorInternalServerErrorResp sends a 500 Internal Server Error response
func ErrorInternalServerErrorResp(c *fiber.Ctx, message string) error {
	return ErrorCodeResp(c, fiber.StatusInternalServerError, message)
}

// NewPagination computes the page count for total items
func NewPagination(page, perPage int, total int64) *Pagination {
	p := &Pagination{Page: page, PerPage: perPage, Total: total}
	if perPage > 0 {
		p.TotalPages = (total + int64(perPage) - 1) / int64(perPage)
	}
	return p
}
