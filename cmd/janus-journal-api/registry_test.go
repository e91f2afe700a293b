package main

import (
	"context"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arqut/janus-plugin-go/pkg/config"
	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/storage"
)

func TestServiceRegistryIntegration(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	testLogger := logger.New(io.Discard, "TEST", logger.Info)
	cfg := &config.Config{InstanceID: "edge01", Journal: config.JournalConfig{APIKey: "secret-key-123", Retention: 10}}

	registry := createServiceRegistry(db, testLogger, cfg)
	if err := registry.InitializeAll(context.Background()); err != nil {
		t.Fatalf("Failed to initialize services: %v", err)
	}
	if diff := cmp.Diff([]string{"store", "auth"}, registry.Names()); diff != "" {
		t.Errorf("services (-want +got):\n%s", diff)
	}
	if registry.Config().Journal.Retention != 0 || cfg.Journal.Retention != 10 {
		t.Error("Expected retention disabled for the registry only")
	}

	if _, err := registry.GetQuerier(); err != nil {
		t.Errorf("Failed to get querier: %v", err)
	}
	authProvider, err := registry.GetAuth()
	if err != nil {
		t.Fatalf("Failed to get auth provider: %v", err)
	}
	if err := authProvider.ValidateToken(context.Background(), "secret-key-123"); err != nil {
		t.Errorf("Expected the configured key accepted: %v", err)
	}

	open := createServiceRegistry(db, testLogger, &config.Config{})
	if diff := cmp.Diff([]string{"store"}, open.Names()); diff != "" {
		t.Errorf("services (-want +got):\n%s", diff)
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("short"); got != "***" {
		t.Errorf("Unexpected %q", got)
	}
	if got := maskAPIKey("0123456789abcdef"); got != "01234567***" {
		t.Errorf("Unexpected %q", got)
	}
}
