package api

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/arqut/janus-plugin-go/pkg/api"
	"github.com/arqut/janus-plugin-go/pkg/providers"
)

// ApiServer is the journal's HTTP query API
type ApiServer struct {
	app       *fiber.App
	api       fiber.Router
	providers *providers.Registry
	started   time.Time
}

// New creates the server and registers every service's routes under /api.
// Requests are logged to accessLog when it is not nil.
func New(p *providers.Registry, accessLog io.Writer) (*ApiServer, error) {
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	s := &ApiServer{
		app:       app,
		providers: p,
		started:   time.Now(),
	}

	s.setupMiddleware(accessLog)
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ApiServer) setupMiddleware(accessLog io.Writer) {
	s.app.Use(recover.New())
	if accessLog != nil {
		s.app.Use(fiberlogger.New(fiberlogger.Config{Output: accessLog}))
	}
}

func (s *ApiServer) setupRoutes() error {
	s.app.Get("/health", s.handleHealth)

	s.api = s.app.Group("/api", s.authMiddleware)
	return s.providers.RegisterAllRoutes(s.api)
}

// App returns the underlying Fiber app
func (s *ApiServer) App() *fiber.App {
	return s.app
}

// Start listens on addr until Shutdown
func (s *ApiServer) Start(addr string) error {
	s.providers.Logger().Info("Query API listening on %s", addr)
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *ApiServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// authMiddleware checks the bearer token when an auth service is registered
func (s *ApiServer) authMiddleware(c *fiber.Ctx) error {
	auth, err := s.providers.GetAuth()
	if err != nil {
		return c.Next()
	}

	token := extractToken(c)
	if token == "" {
		return api.ErrorUnauthorizedResp(c, "Missing authorization token")
	}
	if err := auth.ValidateToken(c.Context(), token); err != nil {
		return api.ErrorUnauthorizedResp(c, err.Error())
	}
	return c.Next()
}

// handleHealth handles health checks
func (s *ApiServer) handleHealth(c *fiber.Ctx) error {
	health := api.Map{
		"status":   "healthy",
		"services": s.providers.Names(),
		"uptime":   int64(time.Since(s.started).Seconds()),
	}
	if fwd, err := s.providers.GetIntegration(); err == nil {
		health["collector_connected"] = fwd.Connected()
	}

	meta := api.ApiResponseMeta{}
	if cfg := s.providers.Config(); cfg != nil {
		meta.Instance = cfg.InstanceID
	}
	return api.SuccessResp(c, health, meta)
}

// extractToken extracts the bearer token from the Authorization header
func extractToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}

// customErrorHandler turns routing and handler errors into the error envelope
func customErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		status = e.Code
	}
	return api.ErrorCodeResp(c, status, err.Error())
}
