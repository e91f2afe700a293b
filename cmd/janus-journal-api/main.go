// Command janus-journal-api serves the query API over a journal database
// written by the gojournal event handler, for gateways that run the handler
// with api_addr unset.
//
//	janus-journal-api -config /etc/janus -addr 127.0.0.1:7088
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	apiserver "github.com/arqut/janus-plugin-go/api"
	"github.com/arqut/janus-plugin-go/pkg/config"
	"github.com/arqut/janus-plugin-go/pkg/handlers/journal"
	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/providers"
	"github.com/arqut/janus-plugin-go/pkg/providers/auth"
	"github.com/arqut/janus-plugin-go/pkg/providers/store"
	"github.com/arqut/janus-plugin-go/pkg/storage"
)

func main() {
	var configDir, addr, logLevel string
	flag.StringVar(&configDir, "config", "/etc/janus", "Janus configuration directory")
	flag.StringVar(&addr, "addr", "", "Listen address, defaults to the configured api_addr")
	flag.StringVar(&logLevel, "loglevel", "info", "Set the log level")
	flag.Parse()

	appLogger := logger.NewDefault("[journal-api]")
	if level, ok := logger.ParseLevel(logLevel); ok {
		appLogger.SetLevel(level)
	}

	cfg, err := config.Load(configDir, journal.Package)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if addr == "" {
		addr = cfg.Journal.APIAddr
	}
	if addr == "" {
		addr = "127.0.0.1:7088"
	}
	if cfg.Journal.APIKey != "" {
		appLogger.Info("API Key: %s", maskAPIKey(cfg.Journal.APIKey))
	} else {
		appLogger.Warn("No api_key configured, the API is open")
	}

	if cfg.Journal.DBPath == "none" {
		log.Fatalf("The journal is configured without a database")
	}
	db, err := storage.NewSQLiteStorage(cfg.Journal.DBPath, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer db.Close()

	registry := createServiceRegistry(db, appLogger, cfg)

	ctx := context.Background()
	if err := registry.InitializeAll(ctx); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	srv, err := apiserver.New(registry, os.Stdout)
	if err != nil {
		log.Fatalf("Failed to register service routes: %v", err)
	}

	go func() {
		if err := srv.Start(addr); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Err("Server shutdown error: %v", err)
	}
	registry.Shutdown(shutdownCtx)

	appLogger.Info("Server exited")
}

// createServiceRegistry registers the read side of the journal. Retention is
// left to the event handler.
func createServiceRegistry(db storage.Storage, log *logger.Logger, cfg *config.Config) *providers.Registry {
	readOnly := &config.Config{InstanceID: cfg.InstanceID, Journal: cfg.Journal}
	readOnly.Journal.Retention = 0
	registry := providers.NewRegistry(db, log, readOnly, nil)

	registry.MustRegister(store.NewService(0))
	if cfg.Journal.APIKey != "" {
		registry.MustRegister(auth.NewService())
	}
	return registry
}

// maskAPIKey masks the API key for logging (shows first 8 chars)
func maskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return "***"
	}
	return apiKey[:8] + "***"
}
