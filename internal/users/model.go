package users

import "time"

// Role values stored in user_roles. The owner value stays "main_admin" for
// compatibility with databases written by earlier deployments.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
	RoleOwner = "main_admin"
)

// Role assigns exactly one permission tier to a user.
type Role struct {
	UserID    int64     `gorm:"column:user_id;primaryKey"`
	Role      string    `gorm:"column:role;not null;default:user"`
	GrantedBy int64     `gorm:"column:granted_by"`
	GrantedAt time.Time `gorm:"column:granted_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Role) TableName() string {
	return "user_roles"
}

// Profile is the best-effort mirror of a user's current Telegram username.
type Profile struct {
	UserID    int64     `gorm:"column:user_id;primaryKey"`
	Username  string    `gorm:"column:username"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "user_usernames"
}

// Status marks a user as blocked. Absence of a row means active.
type Status struct {
	UserID    int64      `gorm:"column:user_id;primaryKey"`
	IsBlocked bool       `gorm:"column:is_blocked;not null;default:false"`
	BlockedAt *time.Time `gorm:"column:blocked_at"`
}

// TableName provides the explicit table binding for GORM.
func (Status) TableName() string {
	return "user_status"
}

// ValidRole reports whether the value is one of the three stored tiers.
func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin || role == RoleOwner
}
