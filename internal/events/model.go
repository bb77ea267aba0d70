package events

import "time"

// Severity levels for recorded events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Well-known event types. Components are free to record their own types;
// these are the ones other code dispatches on.
const (
	TypeBotStart = "BOT_START"
	TypeBotStop  = "BOT_STOP"
)

// Event is one row of the append-only audit trail.
type Event struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Type        string    `gorm:"column:event_type;not null"`
	Description string    `gorm:"column:event_description;not null"`
	UserID      *int64    `gorm:"column:user_id"`
	Severity    string    `gorm:"column:severity;not null;default:info"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "bot_events"
}

// RecentEvent is an event joined with the actor's cached username for
// console listings.
type RecentEvent struct {
	Event
	Username string
}

// TypeCount aggregates events per type or severity.
type TypeCount struct {
	Key   string
	Count int64
}
