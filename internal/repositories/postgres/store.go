// Package postgres implements the durable store on gorm. The same code runs
// against MySQL when the database layer opens a MySQL dialector.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"engagement-service/internal/models"
	"engagement-service/internal/repositories"

	"gorm.io/gorm"
)

// Store is the gorm-backed durable store.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ repositories.Store = (*Store)(nil)

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates or updates the tables the store needs.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Session{},
		&models.User{},
		&models.ActivityEvent{},
		&models.Alert{},
	)
}

func (s *Store) withContext(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// notFound converts gorm's missing-record error into the store sentinel.
func notFound(kind string, id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", kind, id, repositories.ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %d: %w", kind, id, err)
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return repositories.DefaultListLimit
	}
	return limit
}
