// Package cooldown throttles note mutations with a fixed per-user,
// per-operation minimum interval.
package cooldown

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Operation enumerates the throttled note mutations. Each maps to its own
// timestamp column so the window of one operation never affects another.
type Operation int

const (
	OpAdd Operation = iota
	OpDelete
	OpUpdate
)

func (op Operation) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpDelete:
		return "delete"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Record keeps the last successful mutation time per operation for one user.
type Record struct {
	UserID         int64      `gorm:"column:user_id;primaryKey"`
	LastAddTime    *time.Time `gorm:"column:last_add_time"`
	LastDeleteTime *time.Time `gorm:"column:last_delete_time"`
	LastUpdateTime *time.Time `gorm:"column:last_update_time"`
}

// TableName provides the explicit table binding for GORM.
func (Record) TableName() string {
	return "user_cooldowns"
}

var errMissingDatabase = errors.New("cooldown: database handle is required")

// GuardConfig describes the dependencies of a Guard.
type GuardConfig struct {
	Database *gorm.DB
	Window   time.Duration
	Clock    func() time.Time
}

// Guard answers whether a throttled operation may proceed and records the
// moment it did.
type Guard struct {
	db     *gorm.DB
	window time.Duration
	clock  func() time.Time
}

// NewGuard constructs a Guard. A zero window disables throttling.
func NewGuard(cfg GuardConfig) (*Guard, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Guard{db: cfg.Database, window: cfg.Window, clock: clock}, nil
}

// Check reports whether the user may perform the operation now. When the
// window is still active it returns the remaining wait. A store failure
// permits the operation rather than blocking the user.
func (g *Guard) Check(userID int64, op Operation) (bool, time.Duration) {
	if g.window <= 0 {
		return true, 0
	}

	var record Record
	err := g.db.Where("user_id = ?", userID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, 0
	}
	if err != nil {
		return true, 0
	}

	last := record.lastFor(op)
	if last == nil {
		return true, 0
	}

	elapsed := g.clock().UTC().Sub(last.UTC())
	if elapsed >= g.window {
		return true, 0
	}
	return false, g.window - elapsed
}

// Touch records the current time as the last occurrence of the operation.
// Timestamps only move forward.
func (g *Guard) Touch(userID int64, op Operation) error {
	now := g.clock().UTC()
	column, err := op.column()
	if err != nil {
		return err
	}

	return g.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{column: now}),
	}).Create(recordFor(userID, op, now)).Error
}

func (op Operation) column() (string, error) {
	switch op {
	case OpAdd:
		return "last_add_time", nil
	case OpDelete:
		return "last_delete_time", nil
	case OpUpdate:
		return "last_update_time", nil
	default:
		return "", fmt.Errorf("cooldown: unknown operation %d", op)
	}
}

func (r Record) lastFor(op Operation) *time.Time {
	switch op {
	case OpAdd:
		return r.LastAddTime
	case OpDelete:
		return r.LastDeleteTime
	case OpUpdate:
		return r.LastUpdateTime
	default:
		return nil
	}
}

func recordFor(userID int64, op Operation, at time.Time) *Record {
	record := Record{UserID: userID}
	switch op {
	case OpAdd:
		record.LastAddTime = &at
	case OpDelete:
		record.LastDeleteTime = &at
	case OpUpdate:
		record.LastUpdateTime = &at
	}
	return &record
}
