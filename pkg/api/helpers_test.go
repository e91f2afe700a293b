package api

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/go-cmp/cmp"
)

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, perPage int
		total         int64
		pages         int64
	}{
		{1, 50, 0, 0},
		{1, 50, 50, 1},
		{2, 50, 51, 2},
		{1, 0, 10, 0},
	}
	for _, tt := range tests {
		got := NewPagination(tt.page, tt.perPage, tt.total)
		want := &Pagination{Page: tt.page, PerPage: tt.perPage, Total: tt.total, TotalPages: tt.pages}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("NewPagination(%d, %d, %d) (-want +got):\n%s", tt.page, tt.perPage, tt.total, diff)
		}
	}
}

func TestErrorCodeResp(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return ErrorCodeResp(c, fiber.StatusServiceUnavailable, "journal is closed")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Failed to parse %s: %v", body, err)
	}
	want := map[string]any{
		"success": false,
		"error":   map[string]any{"status": float64(503), "message": "journal is closed"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("response (-want +got):\n%s", diff)
	}
}
