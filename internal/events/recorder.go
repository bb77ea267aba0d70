package events

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("events: database handle is required")

	noOpLogger = zap.NewNop()
)

// RecorderConfig describes the dependencies of a Recorder.
type RecorderConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Recorder appends to and reads from the bot_events audit trail. It also
// derives the bot's run gate from the latest BOT_START/BOT_STOP pair, which
// is how the console and the chat front-end share one pause switch.
type Recorder struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewRecorder constructs the recorder.
func NewRecorder(cfg RecorderConfig) (*Recorder, error) {
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
	return &Recorder{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Record appends one event. Failures are logged and swallowed: audit
// trail gaps must never abort the operation that produced them.
func (r *Recorder) Record(eventType, description string, userID *int64, severity string) {
	event := Event{
		Type:        eventType,
		Description: description,
		UserID:      userID,
		Severity:    severity,
		CreatedAt:   r.clock().UTC(),
	}
	if err := r.db.Create(&event).Error; err != nil {
		r.logger.Error("event insert failed",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// Recent returns the newest events joined with cached usernames.
func (r *Recorder) Recent(limit int) ([]RecentEvent, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []RecentEvent
	err := r.db.Model(&Event{}).
		Select("bot_events.*, COALESCE(user_usernames.username, '') AS username").
		Joins("LEFT JOIN user_usernames ON user_usernames.user_id = bot_events.user_id").
		Order("bot_events.created_at DESC, bot_events.id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// All returns every event newest-first, for export.
func (r *Recorder) All() ([]Event, error) {
	var rows []Event
	err := r.db.Order("created_at DESC, id DESC").Find(&rows).Error
	return rows, err
}

// Count returns the total number of recorded events.
func (r *Recorder) Count() (int64, error) {
	var count int64
	err := r.db.Model(&Event{}).Count(&count).Error
	return count, err
}

// CountSince returns the number of events recorded in the trailing window.
func (r *Recorder) CountSince(window time.Duration) (int64, error) {
	var count int64
	err := r.db.Model(&Event{}).
		Where("created_at >= ?", r.clock().UTC().Add(-window)).
		Count(&count).Error
	return count, err
}

// CountsByType aggregates events per type, most frequent first.
func (r *Recorder) CountsByType() ([]TypeCount, error) {
	return r.counts("event_type")
}

// CountsBySeverity aggregates events per severity, most frequent first.
func (r *Recorder) CountsBySeverity() ([]TypeCount, error) {
	return r.counts("severity")
}

func (r *Recorder) counts(column string) ([]TypeCount, error) {
	var rows []TypeCount
	err := r.db.Model(&Event{}).
		Select(column + " AS key, COUNT(*) AS count").
		Group(column).
		Order("count DESC").
		Find(&rows).Error
	return rows, err
}

// Stopped reports whether the latest stop event is newer than the latest
// start event.
func (r *Recorder) Stopped() bool {
	var count int64
	err := r.db.Model(&Event{}).
		Where("event_type = ?", TypeBotStop).
		Where("created_at > (?)", r.db.Model(&Event{}).
			Select("COALESCE(MAX(created_at), '1970-01-01')").
			Where("event_type = ?", TypeBotStart)).
		Count(&count).Error
	if err != nil {
		r.logger.Error("bot gate lookup failed", zap.Error(err))
		return false
	}
	return count > 0
}

// Stop records a stop marker for the shared bot gate.
func (r *Recorder) Stop(actorID *int64, origin string) {
	r.Record(TypeBotStop, "Бот остановлен "+origin, actorID, SeverityWarning)
}

// Start records a start marker for the shared bot gate.
func (r *Recorder) Start(actorID *int64, origin string) {
	r.Record(TypeBotStart, "Бот запущен "+origin, actorID, SeverityInfo)
}
