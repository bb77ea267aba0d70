package users

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("users: database handle is required")
	errMissingOwnerID  = errors.New("users: owner id is required")

	noOpLogger = zap.NewNop()
)

// ResolverConfig describes the dependencies for role resolution.
type ResolverConfig struct {
	Database *gorm.DB
	OwnerID  int64
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Resolver derives a user's permission tier from the store and the one
// statically configured owner identifier.
type Resolver struct {
	db      *gorm.DB
	ownerID int64
	clock   func() time.Time
	logger  *zap.Logger
}

// NewResolver constructs the resolver.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.OwnerID <= 0 {
		return nil, errMissingOwnerID
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Resolver{db: cfg.Database, ownerID: cfg.OwnerID, clock: clock, logger: logger}, nil
}

// OwnerID exposes the configured owner identifier.
func (r *Resolver) OwnerID() int64 {
	return r.ownerID
}

// RoleOf returns the user's tier. The configured owner always resolves to
// RoleOwner regardless of stored rows; anyone without a row is RoleUser.
func (r *Resolver) RoleOf(userID int64) string {
	if userID == r.ownerID {
		return RoleOwner
	}

	var assignment Role
	err := r.db.Where("user_id = ?", userID).Take(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RoleUser
	}
	if err != nil {
		r.logger.Error("role lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return RoleUser
	}
	if assignment.Role == RoleOwner && userID != r.ownerID {
		// Stale owner rows from an earlier configuration do not confer
		// ownership; identity is config-derived.
		return RoleAdmin
	}
	return assignment.Role
}

// IsAdmin reports whether the user is admin or owner.
func (r *Resolver) IsAdmin(userID int64) bool {
	role := r.RoleOf(userID)
	return role == RoleAdmin || role == RoleOwner
}

// IsOwner reports whether the user is the configured owner.
func (r *Resolver) IsOwner(userID int64) bool {
	return userID == r.ownerID
}

// EnsureExists creates a role row for a first-contact user. The owner gets
// the owner role, everyone else starts as a regular user.
func (r *Resolver) EnsureExists(userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("users: invalid user id %d", userID)
	}

	role := RoleUser
	grantedBy := int64(0)
	if userID == r.ownerID {
		role = RoleOwner
		grantedBy = r.ownerID
	}

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&Role{
		UserID:    userID,
		Role:      role,
		GrantedBy: grantedBy,
		GrantedAt: r.clock().UTC(),
	}).Error
}

// GrantAdmin promotes target to admin. Only the owner may grant, the owner's
// own role is immutable, and re-granting an existing admin is rejected.
// Denials are reported as a human-readable message, never an error.
func (r *Resolver) GrantAdmin(targetID, actorID int64) (bool, string) {
	if !r.IsOwner(actorID) {
		return false, MsgAccessDeniedOwner
	}
	if targetID == r.ownerID {
		return false, MsgOwnerImmutable
	}
	if targetID <= 0 {
		return false, MsgInvalidUserID
	}
	if r.IsAdmin(targetID) {
		return false, MsgAlreadyAdmin
	}

	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"role":       RoleAdmin,
			"granted_by": actorID,
			"granted_at": r.clock().UTC(),
		}),
	}).Create(&Role{
		UserID:    targetID,
		Role:      RoleAdmin,
		GrantedBy: actorID,
		GrantedAt: r.clock().UTC(),
	}).Error
	if err != nil {
		r.logger.Error("grant admin failed", zap.Int64("target_id", targetID), zap.Error(err))
		return false, MsgStoreFailure
	}

	return true, fmt.Sprintf("Роль администратора выдана пользователю %d.", targetID)
}

// RevokeAdmin demotes target back to a regular user under the symmetric
// rules of GrantAdmin.
func (r *Resolver) RevokeAdmin(targetID, actorID int64) (bool, string) {
	if !r.IsOwner(actorID) {
		return false, MsgAccessDeniedOwner
	}
	if targetID == r.ownerID {
		return false, MsgOwnerImmutable
	}
	if targetID <= 0 {
		return false, MsgInvalidUserID
	}
	if !r.IsAdmin(targetID) {
		return false, MsgNotAnAdmin
	}

	err := r.db.Model(&Role{}).
		Where("user_id = ?", targetID).
		Updates(map[string]interface{}{
			"role":       RoleUser,
			"granted_by": actorID,
			"granted_at": r.clock().UTC(),
		}).Error
	if err != nil {
		r.logger.Error("revoke admin failed", zap.Int64("target_id", targetID), zap.Error(err))
		return false, MsgStoreFailure
	}

	return true, fmt.Sprintf("Роль администратора снята с пользователя %d.", targetID)
}

// Admins returns the ids of every stored admin plus the configured owner,
// owner first.
func (r *Resolver) Admins() ([]int64, error) {
	var ids []int64
	err := r.db.Model(&Role{}).
		Where("role IN ?", []string{RoleAdmin, RoleOwner}).
		Order("user_id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}

	result := []int64{r.ownerID}
	for _, id := range ids {
		if id != r.ownerID {
			result = append(result, id)
		}
	}
	return result, nil
}
