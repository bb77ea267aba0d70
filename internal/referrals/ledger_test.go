package referrals

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:referrals_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&Referral{}, &Stats{}); err != nil {
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

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()

	ledger, err := NewLedger(LedgerConfig{Database: openTestDatabase(t)})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func TestAddReferralAttributesAndCounts(t *testing.T) {
	ledger := newTestLedger(t)

	if err := ledger.AddReferral(1, 2, "@inviter"); err != nil {
		t.Fatalf("add referral: %v", err)
	}

	stats, err := ledger.StatsOf(1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalReferrals != 1 || stats.ActiveReferrals != 1 {
		t.Fatalf("expected counters 1/1, got %+v", stats)
	}

	referrer, ok := ledger.ReferrerOf(2)
	if !ok || referrer != 1 {
		t.Fatalf("expected referrer 1, got %d ok=%v", referrer, ok)
	}
}

func TestAddReferralRejectsSelf(t *testing.T) {
	ledger := newTestLedger(t)

	if err := ledger.AddReferral(1, 1, "me"); !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("expected ErrSelfReferral, got %v", err)
	}
	stats, _ := ledger.StatsOf(1)
	if stats.TotalReferrals != 0 {
		t.Fatalf("rejected referral must not count, got %+v", stats)
	}
}

func TestAddReferralIsFirstWins(t *testing.T) {
	ledger := newTestLedger(t)

	if err := ledger.AddReferral(1, 3, "first"); err != nil {
		t.Fatalf("add referral: %v", err)
	}
	if err := ledger.AddReferral(2, 3, "second"); !errors.Is(err, ErrAlreadyReferred) {
		t.Fatalf("expected ErrAlreadyReferred, got %v", err)
	}

	firstStats, _ := ledger.StatsOf(1)
	secondStats, _ := ledger.StatsOf(2)
	if firstStats.TotalReferrals != 1 || secondStats.TotalReferrals != 0 {
		t.Fatalf("expected first-wins counters, got %+v and %+v", firstStats, secondStats)
	}
}

func TestStatsOfDefaultsToZero(t *testing.T) {
	ledger := newTestLedger(t)

	stats, err := ledger.StatsOf(42)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.UserID != 42 || stats.TotalReferrals != 0 || stats.ActiveReferrals != 0 {
		t.Fatalf("expected zero counters, got %+v", stats)
	}
}

func TestTopReferrersOrdering(t *testing.T) {
	ledger := newTestLedger(t)

	for referred := int64(10); referred < 13; referred++ {
		if err := ledger.AddReferral(1, referred, "big"); err != nil {
			t.Fatalf("add referral: %v", err)
		}
	}
	if err := ledger.AddReferral(2, 20, "small"); err != nil {
		t.Fatalf("add referral: %v", err)
	}
	err := ledger.db.Exec(
		`INSERT INTO user_usernames (user_id, username) VALUES (1, 'big')`,
	).Error
	if err != nil {
		t.Fatalf("seed username: %v", err)
	}

	top, err := ledger.TopReferrers(10)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(top))
	}
	if top[0].UserID != 1 || top[0].TotalReferrals != 3 || top[0].Username != "big" {
		t.Fatalf("unexpected leader: %+v", top[0])
	}
	if top[1].UserID != 2 || top[1].TotalReferrals != 1 {
		t.Fatalf("unexpected runner-up: %+v", top[1])
	}
}

func TestReferralsOfListsOldestFirst(t *testing.T) {
	ledger := newTestLedger(t)

	for referred := int64(10); referred < 13; referred++ {
		if err := ledger.AddReferral(1, referred, "big"); err != nil {
			t.Fatalf("add referral: %v", err)
		}
	}

	rows, err := ledger.ReferralsOf(1)
	if err != nil {
		t.Fatalf("referrals of: %v", err)
	}
	if len(rows) != 3 || rows[0].ReferredID != 10 || rows[2].ReferredID != 12 {
		t.Fatalf("unexpected listing: %+v", rows)
	}
}
