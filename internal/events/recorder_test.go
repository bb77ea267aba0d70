package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:events_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Event{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	err = db.Exec(`CREATE TABLE IF NOT EXISTS user_usernames (
		user_id INTEGER PRIMARY KEY,
		username TEXT,
		updated_at DATETIME
	)`).Error
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func newTestRecorder(t *testing.T, clock func() time.Time) *Recorder {
	t.Helper()

	recorder, err := NewRecorder(RecorderConfig{Database: openTestDatabase(t), Clock: clock})
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	return recorder
}

func TestRecordAndRecentJoinsUsernames(t *testing.T) {
	recorder := newTestRecorder(t, nil)

	actor := int64(42)
	err := recorder.db.Exec(
		`INSERT INTO user_usernames (user_id, username) VALUES (?, ?)`, actor, "grace",
	).Error
	if err != nil {
		t.Fatalf("seed username: %v", err)
	}

	recorder.Record("NOTE_ADDED", "Добавлена заметка", &actor, SeverityInfo)
	recorder.Record("SYSTEM", "без автора", nil, SeverityWarning)

	rows, err := recorder.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rows))
	}
	var joined *RecentEvent
	for i := range rows {
		if rows[i].Type == "NOTE_ADDED" {
			joined = &rows[i]
		}
	}
	if joined == nil || joined.Username != "grace" {
		t.Fatalf("expected username join, got %+v", rows)
	}
}

func TestCountSinceUsesInjectedClock(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recorder := newTestRecorder(t, func() time.Time { return now })

	recorder.Record("OLD", "старое", nil, SeverityInfo)
	now = now.Add(30 * time.Hour)
	recorder.Record("FRESH", "свежее", nil, SeverityInfo)

	count, err := recorder.CountSince(24 * time.Hour)
	if err != nil {
		t.Fatalf("count since: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 event in the trailing day, got %d", count)
	}
}

func TestCountsByTypeOrdersByFrequency(t *testing.T) {
	recorder := newTestRecorder(t, nil)

	recorder.Record("A", "", nil, SeverityInfo)
	recorder.Record("A", "", nil, SeverityInfo)
	recorder.Record("B", "", nil, SeverityError)

	counts, err := recorder.CountsByType()
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if len(counts) != 2 || counts[0].Key != "A" || counts[0].Count != 2 {
		t.Fatalf("unexpected aggregation: %+v", counts)
	}
}

func TestStoppedFollowsLatestMarker(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	recorder := newTestRecorder(t, func() time.Time {
		now = now.Add(time.Second)
		return now
	})

	if recorder.Stopped() {
		t.Fatal("fresh store must report running")
	}

	recorder.Stop(nil, "через консоль")
	if !recorder.Stopped() {
		t.Fatal("expected stopped after stop marker")
	}

	recorder.Start(nil, "через консоль")
	if recorder.Stopped() {
		t.Fatal("expected running after start marker")
	}

	recorder.Stop(nil, "через консоль")
	if !recorder.Stopped() {
		t.Fatal("expected stopped after second stop marker")
	}
}
