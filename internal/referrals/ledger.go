package referrals

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("referrals: database handle is required")

	// ErrSelfReferral rejects a user following their own invite link.
	ErrSelfReferral = errors.New("referrals: self referral")
	// ErrAlreadyReferred rejects a second attribution for the same user.
	ErrAlreadyReferred = errors.New("referrals: user already referred")

	noOpLogger = zap.NewNop()
)

// LedgerConfig describes the dependencies of a Ledger.
type LedgerConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Ledger owns referral attribution and the leaderboard. The edge insert and
// the counter recompute happen in one transaction so the stats row can never
// drift from the edges.
type Ledger struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewLedger constructs the ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Ledger{db: cfg.Database, clock: clock, logger: logger}, nil
}

// AddReferral attributes referred to referrer. Attribution is first-wins
// and permanent; self referrals never count.
func (l *Ledger) AddReferral(referrerID, referredID int64, referrerUsername string) error {
	if referrerID == referredID {
		return ErrSelfReferral
	}
	if referrerID <= 0 || referredID <= 0 {
		return errors.New("referrals: invalid user id")
	}

	return l.db.Transaction(func(tx *gorm.DB) error {
		var existing int64
		err := tx.Model(&Referral{}).
			Where("referred_id = ?", referredID).
			Count(&existing).Error
		if err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyReferred
		}

		edge := Referral{
			ReferrerID:       referrerID,
			ReferredID:       referredID,
			ReferrerUsername: strings.TrimPrefix(referrerUsername, "@"),
			JoinedAt:         l.clock().UTC(),
		}
		if err := tx.Create(&edge).Error; err != nil {
			return err
		}
		return l.recompute(tx, referrerID)
	})
}

// recompute rebuilds the counter row from the edges. Every attributed user
// counts as active; blocking does not retroactively shrink the stats.
func (l *Ledger) recompute(tx *gorm.DB, referrerID int64) error {
	var total int64
	err := tx.Model(&Referral{}).
		Where("referrer_id = ?", referrerID).
		Count(&total).Error
	if err != nil {
		return err
	}

	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_referrals":  total,
			"active_referrals": total,
			"last_updated":     l.clock().UTC(),
		}),
	}).Create(&Stats{
		UserID:          referrerID,
		TotalReferrals:  total,
		ActiveReferrals: total,
		LastUpdated:     l.clock().UTC(),
	}).Error
}

// StatsOf returns the user's counters. Users with no referrals get zeros.
func (l *Ledger) StatsOf(userID int64) (Stats, error) {
	var stats Stats
	err := l.db.Where("user_id = ?", userID).Take(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Stats{UserID: userID}, nil
	}
	return stats, err
}

// TopReferrers returns the leaderboard ordered by totals, then by actives.
func (l *Ledger) TopReferrers(limit int) ([]TopReferrer, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []TopReferrer
	err := l.db.Model(&Stats{}).
		Select(`referral_stats.user_id AS user_id,
			COALESCE(user_usernames.username, '') AS username,
			referral_stats.total_referrals AS total_referrals,
			referral_stats.active_referrals AS active_referrals`).
		Joins("LEFT JOIN user_usernames ON user_usernames.user_id = referral_stats.user_id").
		Where("referral_stats.total_referrals > 0").
		Order("referral_stats.total_referrals DESC, referral_stats.active_referrals DESC, referral_stats.user_id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ReferralsOf lists everyone the user brought in, oldest first.
func (l *Ledger) ReferralsOf(userID int64) ([]Referral, error) {
	var rows []Referral
	err := l.db.Where("referrer_id = ?", userID).
		Order("joined_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// ReferrerOf returns who attributed the user, if anyone.
func (l *Ledger) ReferrerOf(userID int64) (int64, bool) {
	var edge Referral
	err := l.db.Where("referred_id = ?", userID).Take(&edge).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			l.logger.Error("referrer lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		return 0, false
	}
	return edge.ReferrerID, true
}

// Count returns the total number of attribution edges.
func (l *Ledger) Count() (int64, error) {
	var count int64
	err := l.db.Model(&Referral{}).Count(&count).Error
	return count, err
}
