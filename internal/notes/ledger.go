package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zapiskibot/zapiski/internal/cooldown"
	"github.com/zapiskibot/zapiski/internal/events"
)

var (
	errMissingDatabase = errors.New("notes: database handle is required")

	// ErrNotFound is returned by the administrative operations when the
	// note does not exist. Chat-facing operations report MsgNotFound
	// instead.
	ErrNotFound = errors.New("notes: note not found")

	noOpLogger = zap.NewNop()
)

// LedgerConfig describes the dependencies of a Ledger.
type LedgerConfig struct {
	Database *gorm.DB
	Guard    *cooldown.Guard
	Recorder *events.Recorder
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Ledger owns all note reads and writes. Chat-facing mutations are rate
// limited through the cooldown guard and scoped to the owner; the
// administrative variants bypass ownership and leave an audit event.
type Ledger struct {
	db       *gorm.DB
	guard    *cooldown.Guard
	recorder *events.Recorder
	clock    func() time.Time
	logger   *zap.Logger
}

// NewLedger constructs the ledger. Guard and Recorder are optional; without
// them mutations are unthrottled and unaudited.
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
	return &Ledger{
		db:       cfg.Database,
		guard:    cfg.Guard,
		recorder: cfg.Recorder,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Add stores a trimmed note for the user. The returned message is what the
// chat front-end shows verbatim.
func (l *Ledger) Add(userID int64, text string) (bool, string) {
	if userID <= 0 {
		return false, fmt.Sprintf(invalidUserFormat, userID)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, MsgEmpty
	}
	if len([]rune(text)) > MaxNoteLength {
		return false, MsgTooLong
	}
	if denied, message := l.throttled(userID, cooldown.OpAdd, cooldownAddFormat); denied {
		return false, message
	}

	note := Note{UserID: userID, Text: text, CreatedAt: l.clock().UTC()}
	if err := l.db.Create(&note).Error; err != nil {
		l.logger.Error("note insert failed", zap.Int64("user_id", userID), zap.Error(err))
		return false, MsgFailure
	}
	l.touch(userID, cooldown.OpAdd)
	return true, MsgAdded
}

// List returns the user's notes, newest first. The chat numbering follows
// this order.
func (l *Ledger) List(userID int64) ([]Note, error) {
	var rows []Note
	err := l.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// Get returns one note if it exists and belongs to the user.
func (l *Ledger) Get(userID, noteID int64) (Note, bool) {
	var note Note
	err := l.db.Where("id = ? AND user_id = ?", noteID, userID).Take(&note).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			l.logger.Error("note lookup failed", zap.Int64("note_id", noteID), zap.Error(err))
		}
		return Note{}, false
	}
	return note, true
}

// Delete removes the user's own note. A missing note and someone else's
// note produce the same message.
func (l *Ledger) Delete(userID, noteID int64) (bool, string) {
	if userID <= 0 {
		return false, fmt.Sprintf(invalidUserFormat, userID)
	}
	if noteID <= 0 {
		return false, fmt.Sprintf(invalidNoteFormat, noteID)
	}
	if denied, message := l.throttled(userID, cooldown.OpDelete, cooldownDeleteFormat); denied {
		return false, message
	}

	result := l.db.Where("id = ? AND user_id = ?", noteID, userID).Delete(&Note{})
	if result.Error != nil {
		l.logger.Error("note delete failed", zap.Int64("note_id", noteID), zap.Error(result.Error))
		return false, MsgFailure
	}
	if result.RowsAffected == 0 {
		return false, MsgNotFound
	}
	l.touch(userID, cooldown.OpDelete)
	return true, MsgDeleted
}

// Update replaces the text of the user's own note.
func (l *Ledger) Update(userID, noteID int64, text string) (bool, string) {
	if userID <= 0 {
		return false, fmt.Sprintf(invalidUserFormat, userID)
	}
	if noteID <= 0 {
		return false, fmt.Sprintf(invalidNoteFormat, noteID)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, MsgEmpty
	}
	if len([]rune(text)) > MaxNoteLength {
		return false, MsgTooLong
	}
	if denied, message := l.throttled(userID, cooldown.OpUpdate, cooldownUpdateFormat); denied {
		return false, message
	}

	result := l.db.Model(&Note{}).
		Where("id = ? AND user_id = ?", noteID, userID).
		Update("note_text", text)
	if result.Error != nil {
		l.logger.Error("note update failed", zap.Int64("note_id", noteID), zap.Error(result.Error))
		return false, MsgFailure
	}
	if result.RowsAffected == 0 {
		return false, MsgNotFound
	}
	l.touch(userID, cooldown.OpUpdate)
	return true, MsgUpdated
}

// AdminDelete removes any note regardless of owner and audits the action.
func (l *Ledger) AdminDelete(noteID, actorID int64) error {
	var note Note
	err := l.db.Where("id = ?", noteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := l.db.Delete(&Note{}, noteID).Error; err != nil {
		return err
	}
	l.audit(actorID, fmt.Sprintf("Заметка %d пользователя %d удалена администратором", noteID, note.UserID))
	return nil
}

// AdminUpdate rewrites any note regardless of owner and audits the action.
func (l *Ledger) AdminUpdate(noteID, actorID int64, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("notes: empty text")
	}
	if len([]rune(text)) > MaxNoteLength {
		return errors.New("notes: text too long")
	}

	result := l.db.Model(&Note{}).Where("id = ?", noteID).Update("note_text", text)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	l.audit(actorID, fmt.Sprintf("Заметка %d изменена администратором", noteID))
	return nil
}

// AdminDeleteAllByUser removes every note of one user and audits the action.
// Deleting from a user with no notes is not an error.
func (l *Ledger) AdminDeleteAllByUser(userID, actorID int64) (int64, error) {
	result := l.db.Where("user_id = ?", userID).Delete(&Note{})
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected > 0 {
		l.audit(actorID, fmt.Sprintf("Удалено %d заметок пользователя %d администратором",
			result.RowsAffected, userID))
	}
	return result.RowsAffected, nil
}

// CountByUser returns how many notes the user has.
func (l *Ledger) CountByUser(userID int64) (int64, error) {
	var count int64
	err := l.db.Model(&Note{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// Count returns the total number of stored notes.
func (l *Ledger) Count() (int64, error) {
	var count int64
	err := l.db.Model(&Note{}).Count(&count).Error
	return count, err
}

// ListPage returns one console page of all notes, newest first, plus the
// unpaged total. An empty query matches everything.
func (l *Ledger) ListPage(query string, offset, limit int) ([]Note, int64, error) {
	base := l.db.Model(&Note{})
	if query != "" {
		base = base.Where("note_text LIKE ?", "%"+query+"%")
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Note
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	return rows, total, err
}

// ListAll returns every note, newest first, for export.
func (l *Ledger) ListAll() ([]Note, error) {
	var rows []Note
	err := l.db.Order("created_at DESC, id DESC").Find(&rows).Error
	return rows, err
}

// ListSince returns notes created in the trailing window, for analytics.
func (l *Ledger) ListSince(window time.Duration) ([]Note, error) {
	var rows []Note
	err := l.db.Where("created_at >= ?", l.clock().UTC().Add(-window)).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (l *Ledger) throttled(userID int64, op cooldown.Operation, format string) (bool, string) {
	if l.guard == nil {
		return false, ""
	}
	allowed, remaining := l.guard.Check(userID, op)
	if allowed {
		return false, ""
	}
	return true, fmt.Sprintf(format, remaining.Seconds())
}

func (l *Ledger) touch(userID int64, op cooldown.Operation) {
	if l.guard == nil {
		return
	}
	if err := l.guard.Touch(userID, op); err != nil {
		l.logger.Error("cooldown touch failed",
			zap.Int64("user_id", userID),
			zap.String("operation", op.String()),
			zap.Error(err))
	}
}

func (l *Ledger) audit(actorID int64, description string) {
	if l.recorder == nil {
		return
	}
	l.recorder.Record("NOTE_ADMIN_ACTION", description, &actorID, events.SeverityWarning)
}
