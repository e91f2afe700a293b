package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/arqut/janus-plugin-go/pkg/logger"
	"github.com/arqut/janus-plugin-go/pkg/storage/repositories"
)

// SQLiteStorage implements Storage using the pure Go SQLite driver
type SQLiteStorage struct {
	db     *gorm.DB
	logger *logger.Logger

	events *repositories.EventRepository
}

// NewSQLiteStorage opens dbPath, which may be ":memory:"
func NewSQLiteStorage(dbPath string, log *logger.Logger) (*SQLiteStorage, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection keeps an in-memory database alive and serializes writers
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	events, err := repositories.NewEventRepository(db)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	if log != nil {
		log.Info("SQLite database opened: %s", dbPath)
	}
	return &SQLiteStorage{db: db, logger: log, events: events}, nil
}

// DB returns the underlying GORM database instance
func (s *SQLiteStorage) DB() *gorm.DB {
	return s.db
}

// Events returns the event repository
func (s *SQLiteStorage) Events() *repositories.EventRepository {
	return s.events
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("SQLite database closed")
	}
	return nil
}
