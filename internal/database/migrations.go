package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zapiskibot/zapiski/internal/referrals"
)

const (
	migrationAlignReferralActiveCounts = "2025-09-15_align_referral_active_counts"
	migrationStripUsernamePrefix       = "2025-10-02_strip_username_at_prefix"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationAlignReferralActiveCounts, apply: alignReferralActiveCounts},
		{name: migrationStripUsernamePrefix, apply: stripUsernameAtPrefix},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Earlier builds decremented active_referrals when a referred user got
// blocked. Counters are derived from the edges now, so realign old rows.
func alignReferralActiveCounts(db *gorm.DB) error {
	return db.Model(&referrals.Stats{}).
		Where("active_referrals <> total_referrals").
		Update("active_referrals", gorm.Expr("total_referrals")).Error
}

func stripUsernameAtPrefix(db *gorm.DB) error {
	return db.Exec(
		"UPDATE user_usernames SET username = substr(username, 2) WHERE username LIKE '@%';",
	).Error
}
