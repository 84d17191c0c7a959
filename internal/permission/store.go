// Package permission stores per-actor import permissions with gorm and
// resolves the policy that applies to a request.
package permission

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/JonMunkholm/dataimport/internal/core"
)

// Store resolves permissions from the import_permissions table.
type Store struct {
	db       *gorm.DB
	fallback core.Permission
}

// Open connects to the permission database. driver is "postgres" or
// "sqlite"; fallback is returned for actors without a grant.
func Open(driver, dsn string, fallback core.Permission) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported permission driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open permission store: %w", err)
	}
	return New(db, fallback)
}

// New wraps an open gorm connection and migrates the grants table.
func New(db *gorm.DB, fallback core.Permission) (*Store, error) {
	if err := db.AutoMigrate(&Grant{}); err != nil {
		return nil, fmt.Errorf("migrate permission store: %w", err)
	}
	return &Store{db: db, fallback: fallback}, nil
}

// Lookup returns the permission for actor on table. A table-specific grant
// wins over the actor's catch-all grant; with neither, the fallback applies.
func (s *Store) Lookup(ctx context.Context, actor, table string) (core.Permission, error) {
	if actor == "" {
		return s.fallback, nil
	}

	var g Grant
	err := s.db.WithContext(ctx).
		Where("actor = ? AND table_key IN ?", actor, []string{table, ""}).
		Order("table_key DESC").
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.fallback, nil
	}
	if err != nil {
		return core.Permission{}, fmt.Errorf("lookup permission for %s: %w", actor, err)
	}
	return g.Permission(), nil
}

// Upsert creates or replaces the grant for (actor, table).
func (s *Store) Upsert(ctx context.Context, g Grant) error {
	if g.Actor == "" {
		return errors.New("permission grant requires an actor")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "actor"}, {Name: "table_key"}},
		UpdateAll: true,
	}).Create(&g).Error
	if err != nil {
		return fmt.Errorf("save permission for %s: %w", g.Actor, err)
	}
	return nil
}

// List returns every grant for actor, or all grants when actor is empty.
func (s *Store) List(ctx context.Context, actor string) ([]Grant, error) {
	q := s.db.WithContext(ctx).Order("actor, table_key")
	if actor != "" {
		q = q.Where("actor = ?", actor)
	}
	var grants []Grant
	if err := q.Find(&grants).Error; err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return grants, nil
}

// Delete removes the grant for (actor, table).
func (s *Store) Delete(ctx context.Context, actor, table string) error {
	res := s.db.WithContext(ctx).Where("actor = ? AND table_key = ?", actor, table).Delete(&Grant{})
	if res.Error != nil {
		return fmt.Errorf("delete permission for %s: %w", actor, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
