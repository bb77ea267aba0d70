package users

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DirectoryConfig describes the dependencies of a Directory.
type DirectoryConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Directory maintains the username mirror, the block list, and the joined
// listings the console renders.
type Directory struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// ListedUser is one row of the console's user table.
type ListedUser struct {
	UserID       int64
	Username     string
	Role         string
	NotesCount   int64
	Referrals    int64
	RegisteredAt time.Time
	LastActivity *time.Time
	Blocked      bool
}

// ListFilter narrows the console listing.
type ListFilter struct {
	Query   string // matches username substring or exact id
	Role    string // empty means any
	Blocked *bool  // nil means any
}

// NewDirectory constructs the directory.
func NewDirectory(cfg DirectoryConfig) (*Directory, error) {
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
	return &Directory{db: cfg.Database, clock: clock, logger: logger}, nil
}

// SaveUsername upserts the best-effort username mirror. Empty usernames are
// ignored so a later contact without one does not erase the cached value.
func (d *Directory) SaveUsername(userID int64, username string) {
	username = strings.TrimSpace(strings.TrimPrefix(username, "@"))
	if userID <= 0 || username == "" {
		return
	}
	err := d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"username":   username,
			"updated_at": d.clock().UTC(),
		}),
	}).Create(&Profile{
		UserID:    userID,
		Username:  username,
		UpdatedAt: d.clock().UTC(),
	}).Error
	if err != nil {
		d.logger.Error("username mirror write failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

// UsernameByID resolves a display name. The mirror wins; the referral
// snapshot is the fallback; unknown users resolve to the empty string.
func (d *Directory) UsernameByID(userID int64) string {
	var profile Profile
	err := d.db.Where("user_id = ?", userID).Take(&profile).Error
	if err == nil && profile.Username != "" {
		return profile.Username
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		d.logger.Error("username lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return ""
	}

	var snapshot string
	err = d.db.Table("referrals").
		Where("referrer_id = ?", userID).
		Order("joined_at DESC").
		Limit(1).
		Pluck("referrer_username", &snapshot).Error
	if err != nil {
		return ""
	}
	return snapshot
}

// Block marks the user as blocked.
func (d *Directory) Block(userID int64) error {
	now := d.clock().UTC()
	return d.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_blocked": true,
			"blocked_at": now,
		}),
	}).Create(&Status{UserID: userID, IsBlocked: true, BlockedAt: &now}).Error
}

// Unblock clears the blocked mark.
func (d *Directory) Unblock(userID int64) error {
	return d.db.Model(&Status{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{"is_blocked": false, "blocked_at": nil}).Error
}

// IsActive reports whether the user may interact with the bot. Users without
// a status row are active.
func (d *Directory) IsActive(userID int64) bool {
	var status Status
	err := d.db.Where("user_id = ?", userID).Take(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true
	}
	if err != nil {
		d.logger.Error("status lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return true
	}
	return !status.IsBlocked
}

// CreateUser registers a user from the console or an import file. The role
// row is only written when absent so imports never demote existing users
// unless the caller asked for an update.
func (d *Directory) CreateUser(userID int64, username, role string, blocked bool) error {
	if userID <= 0 {
		return errors.New("users: invalid user id")
	}
	if role == "" {
		role = RoleUser
	}
	if !ValidRole(role) {
		return errors.New("users: invalid role " + role)
	}

	err := d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&Role{
		UserID:    userID,
		Role:      role,
		GrantedAt: d.clock().UTC(),
	}).Error
	if err != nil {
		return err
	}

	d.SaveUsername(userID, username)
	if blocked {
		return d.Block(userID)
	}
	return nil
}

// UpdateUser overwrites username, role, and block state for an existing user.
func (d *Directory) UpdateUser(userID int64, username, role string, blocked bool) error {
	if role != "" {
		if !ValidRole(role) {
			return errors.New("users: invalid role " + role)
		}
		err := d.db.Model(&Role{}).
			Where("user_id = ?", userID).
			Update("role", role).Error
		if err != nil {
			return err
		}
	}
	d.SaveUsername(userID, username)
	if blocked {
		return d.Block(userID)
	}
	return d.Unblock(userID)
}

// Exists reports whether a role row is registered for the user.
func (d *Directory) Exists(userID int64) (bool, error) {
	var count int64
	err := d.db.Model(&Role{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

// Count returns the number of registered users.
func (d *Directory) Count() (int64, error) {
	var count int64
	err := d.db.Model(&Role{}).Count(&count).Error
	return count, err
}

// List returns one page of the joined user table plus the unpaged total.
func (d *Directory) List(filter ListFilter, offset, limit int) ([]ListedUser, int64, error) {
	base := d.listQuery(filter)

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []ListedUser
	err := base.Session(&gorm.Session{}).
		Order("user_roles.granted_at DESC, user_roles.user_id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

// Find returns the joined row of one user.
func (d *Directory) Find(userID int64) (ListedUser, error) {
	var row ListedUser
	err := d.listQuery(ListFilter{}).
		Where("user_roles.user_id = ?", userID).
		Take(&row).Error
	return row, err
}

// ListAll returns every user matching the filter, for export.
func (d *Directory) ListAll(filter ListFilter) ([]ListedUser, error) {
	var rows []ListedUser
	err := d.listQuery(filter).
		Order("user_roles.granted_at DESC, user_roles.user_id DESC").
		Find(&rows).Error
	return rows, err
}

func (d *Directory) listQuery(filter ListFilter) *gorm.DB {
	query := d.db.Model(&Role{}).
		Select(`user_roles.user_id AS user_id,
			COALESCE(user_usernames.username, '') AS username,
			user_roles.role AS role,
			(SELECT COUNT(*) FROM notes WHERE notes.user_id = user_roles.user_id) AS notes_count,
			(SELECT COUNT(*) FROM referrals WHERE referrals.referrer_id = user_roles.user_id) AS referrals,
			user_roles.granted_at AS registered_at,
			(SELECT MAX(created_at) FROM notes WHERE notes.user_id = user_roles.user_id) AS last_activity,
			COALESCE(user_status.is_blocked, 0) AS blocked`).
		Joins("LEFT JOIN user_usernames ON user_usernames.user_id = user_roles.user_id").
		Joins("LEFT JOIN user_status ON user_status.user_id = user_roles.user_id")

	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		query = query.Where(
			"user_usernames.username LIKE ? OR CAST(user_roles.user_id AS TEXT) = ?",
			like, filter.Query)
	}
	if filter.Role != "" {
		query = query.Where("user_roles.role = ?", filter.Role)
	}
	if filter.Blocked != nil {
		query = query.Where("COALESCE(user_status.is_blocked, 0) = ?", *filter.Blocked)
	}
	return query
}
