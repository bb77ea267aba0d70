package notes

import "time"

// MaxNoteLength bounds the stored text after trimming.
const MaxNoteLength = 4000

// Note is one saved note. Notes are private to their owner.
type Note struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    int64     `gorm:"column:user_id;not null;index"`
	Text      string    `gorm:"column:note_text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}
