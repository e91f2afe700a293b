package storage

import (
	"github.com/arqut/janus-plugin-go/pkg/storage/repositories"
	"gorm.io/gorm"
)

// Storage is the journal's database
type Storage interface {
	// DB returns the underlying GORM database instance
	DB() *gorm.DB
	Events() *repositories.EventRepository

	Close() error
}
