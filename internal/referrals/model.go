package referrals

import "time"

// Referral is one attribution edge. The UNIQUE constraint on the referred
// user is what makes attribution first-wins.
type Referral struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ReferrerID       int64     `gorm:"column:referrer_id;not null;index"`
	ReferredID       int64     `gorm:"column:referred_id;not null;uniqueIndex"`
	ReferrerUsername string    `gorm:"column:referrer_username"`
	JoinedAt         time.Time `gorm:"column:joined_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Referral) TableName() string {
	return "referrals"
}

// Stats is the denormalized per-referrer counter row, recomputed inside the
// same transaction that inserts the edge.
type Stats struct {
	UserID          int64     `gorm:"column:user_id;primaryKey"`
	TotalReferrals  int64     `gorm:"column:total_referrals;not null;default:0"`
	ActiveReferrals int64     `gorm:"column:active_referrals;not null;default:0"`
	LastUpdated     time.Time `gorm:"column:last_updated;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Stats) TableName() string {
	return "referral_stats"
}

// TopReferrer is one leaderboard row with the display name resolved.
type TopReferrer struct {
	UserID          int64
	Username        string
	TotalReferrals  int64
	ActiveReferrals int64
}
