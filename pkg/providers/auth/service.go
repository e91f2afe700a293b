package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/arqut/janus-plugin-go/pkg/providers"
	"github.com/arqut/janus-plugin-go/pkg/utils"
)

// ErrInvalidToken is returned for a missing or wrong token
var ErrInvalidToken = errors.New("invalid token")

// Service checks bearer tokens against the configured API key
type Service struct {
	keyHash string
}

// NewService creates a new auth service
func NewService() *Service {
	return &Service{}
}

// Name returns the service name
func (s *Service) Name() string {
	return "auth"
}

// Initialize reads the API key from the journal configuration
func (s *Service) Initialize(ctx context.Context, registry *providers.Registry) error {
	cfg := registry.Config()
	if cfg == nil || cfg.Journal.APIKey == "" {
		return errors.New("api key is not configured")
	}
	s.keyHash = utils.HashKey(cfg.Journal.APIKey)
	return nil
}

// IsRunnable returns false as auth service doesn't need background processing
func (s *Service) IsRunnable() bool {
	return false
}

func (s *Service) Start(ctx context.Context) error {
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	return nil
}

// RegisterAPIRoutes registers nothing, the API server applies ValidateToken
func (s *Service) RegisterAPIRoutes(router fiber.Router) error {
	return nil
}

// ValidateToken compares the hashes of token and the API key
func (s *Service) ValidateToken(ctx context.Context, token string) error {
	if token == "" || s.keyHash == "" {
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(utils.HashKey(token)), []byte(s.keyHash)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

var _ providers.Service = (*Service)(nil)
var _ providers.AuthProvider = (*Service)(nil)
