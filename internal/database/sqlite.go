package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zapiskibot/zapiski/internal/cooldown"
	"github.com/zapiskibot/zapiski/internal/events"
	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/referrals"
	"github.com/zapiskibot/zapiski/internal/users"
)

// OpenSQLite establishes a SQLite connection and performs schema migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&notes.Note{},
		&users.Role{},
		&users.Profile{},
		&users.Status{},
		&cooldown.Record{},
		&referrals.Referral{},
		&referrals.Stats{},
		&events.Event{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path))
	}

	return db, nil
}

// SeedOwner registers the configured owner on first start. Failures are
// reported but not fatal; the owner row is recreated on the next contact.
func SeedOwner(db *gorm.DB, resolver *users.Resolver, logger *zap.Logger) {
	if err := resolver.EnsureExists(resolver.OwnerID()); err != nil && logger != nil {
		logger.Warn("owner seed failed", zap.Int64("owner_id", resolver.OwnerID()), zap.Error(err))
	}
}
