package bot

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/zapiskibot/zapiski/internal/cooldown"
	"github.com/zapiskibot/zapiski/internal/events"
	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/referrals"
	"github.com/zapiskibot/zapiski/internal/users"
)

const (
	ownerID   int64 = 111
	regularID int64 = 222
	chatID    int64 = 1000
)

func newTestRouter(t *testing.T) *Router {
	t.Helper()

	dsn := fmt.Sprintf("file:bot_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	err = db.AutoMigrate(
		&notes.Note{}, &users.Role{}, &users.Profile{}, &users.Status{},
		&cooldown.Record{}, &referrals.Referral{}, &referrals.Stats{}, &events.Event{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ledger, err := notes.NewLedger(notes.LedgerConfig{Database: db})
	if err != nil {
		t.Fatalf("notes ledger: %v", err)
	}
	resolver, err := users.NewResolver(users.ResolverConfig{Database: db, OwnerID: ownerID})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	directory, err := users.NewDirectory(users.DirectoryConfig{Database: db})
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	referralLedger, err := referrals.NewLedger(referrals.LedgerConfig{Database: db})
	if err != nil {
		t.Fatalf("referrals ledger: %v", err)
	}
	recorder, err := events.NewRecorder(events.RecorderConfig{Database: db})
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}

	router, err := NewRouter(RouterConfig{
		Notes:       ledger,
		Resolver:    resolver,
		Directory:   directory,
		Referrals:   referralLedger,
		Recorder:    recorder,
		Sessions:    NewMemorySessionStore(),
		BotUsername: "zapiski_test_bot",
	})
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router
}

func message(userID int64, text string) Incoming {
	return Incoming{UserID: userID, ChatID: chatID, Username: "someone", Text: text}
}

func press(userID int64, data string) Callback {
	return Callback{UserID: userID, ChatID: chatID, Data: data, MessageID: 5}
}

func lastText(t *testing.T, replies []Reply) string {
	t.Helper()
	if len(replies) == 0 {
		t.Fatal("expected at least one reply")
	}
	return replies[len(replies)-1].Text
}

func TestStartShowsMenu(t *testing.T) {
	router := newTestRouter(t)

	replies := router.HandleMessage(message(regularID, "/start"))
	if lastText(t, replies) != msgWelcome {
		t.Fatalf("expected welcome, got %q", lastText(t, replies))
	}
	if replies[len(replies)-1].Markup == nil {
		t.Fatal("expected main menu keyboard")
	}
}

func TestAddNoteDialog(t *testing.T) {
	router := newTestRouter(t)

	replies := router.HandleMessage(message(regularID, ButtonAddNote))
	if lastText(t, replies) != msgPromptNote {
		t.Fatalf("expected note prompt, got %q", lastText(t, replies))
	}

	replies = router.HandleMessage(message(regularID, "  купить хлеб  "))
	if lastText(t, replies) != notes.MsgAdded {
		t.Fatalf("expected add confirmation, got %q", lastText(t, replies))
	}

	replies = router.HandleMessage(message(regularID, ButtonShowNotes))
	if got := lastText(t, replies); got != "1. купить хлеб" {
		t.Fatalf("expected trimmed listing, got %q", got)
	}
}

func TestCancelReturnsToMenu(t *testing.T) {
	router := newTestRouter(t)

	router.HandleMessage(message(regularID, ButtonAddNote))
	replies := router.HandleMessage(message(regularID, ButtonCancel))
	if lastText(t, replies) != msgCancelled {
		t.Fatalf("expected cancellation, got %q", lastText(t, replies))
	}

	// The cancelled prompt must not swallow the next button press.
	replies = router.HandleMessage(message(regularID, ButtonShowNotes))
	if lastText(t, replies) != msgNoNotes {
		t.Fatalf("expected empty listing, got %q", lastText(t, replies))
	}
}

func TestDeleteDialogUsesSnapshotNumbers(t *testing.T) {
	router := newTestRouter(t)

	router.HandleMessage(message(regularID, ButtonAddNote))
	router.HandleMessage(message(regularID, "первая"))
	router.HandleMessage(message(regularID, ButtonAddNote))
	router.HandleMessage(message(regularID, "вторая"))

	// The snapshot is numbered newest first, like the listing.
	replies := router.HandleMessage(message(regularID, ButtonDeleteNote))
	if !strings.Contains(lastText(t, replies), "1. вторая") {
		t.Fatalf("expected numbered snapshot, got %q", lastText(t, replies))
	}

	replies = router.HandleMessage(message(regularID, "сорок два"))
	if lastText(t, replies) != msgInvalidSelection {
		t.Fatalf("expected reprompt on invalid number, got %q", lastText(t, replies))
	}

	replies = router.HandleMessage(message(regularID, "2"))
	if lastText(t, replies) != notes.MsgDeleted {
		t.Fatalf("expected delete confirmation, got %q", lastText(t, replies))
	}

	replies = router.HandleMessage(message(regularID, ButtonShowNotes))
	if got := lastText(t, replies); got != "1. вторая" {
		t.Fatalf("expected remaining note, got %q", got)
	}
}

func TestReferralDeepLink(t *testing.T) {
	router := newTestRouter(t)

	router.HandleMessage(message(ownerID, "/start"))
	replies := router.HandleMessage(Incoming{
		UserID: regularID, ChatID: chatID, Username: "invited",
		Text: fmt.Sprintf("/start ref%d", ownerID),
	})
	if replies[0].Text != msgReferralWelcome {
		t.Fatalf("expected referral welcome, got %q", replies[0].Text)
	}

	// A second deep link must not double-attribute.
	replies = router.HandleMessage(Incoming{
		UserID: regularID, ChatID: chatID, Username: "invited",
		Text: fmt.Sprintf("/start ref%d", ownerID),
	})
	if replies[0].Text == msgReferralWelcome {
		t.Fatal("expected repeat attribution to be silent")
	}

	stats, err := router.referrals.StatsOf(ownerID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalReferrals != 1 {
		t.Fatalf("expected single attribution, got %+v", stats)
	}
}

func TestSelfReferralDoesNotCount(t *testing.T) {
	router := newTestRouter(t)

	router.HandleMessage(message(regularID, fmt.Sprintf("/start ref%d", regularID)))

	stats, err := router.referrals.StatsOf(regularID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalReferrals != 0 {
		t.Fatalf("self referral must not count, got %+v", stats)
	}
}

func TestAdminPanelRequiresRole(t *testing.T) {
	router := newTestRouter(t)

	replies := router.HandleMessage(message(regularID, ButtonAdminPanel))
	if lastText(t, replies) != users.MsgAccessDeniedAdmin {
		t.Fatalf("expected admin denial, got %q", lastText(t, replies))
	}

	replies = router.HandleMessage(message(ownerID, ButtonAdminPanel))
	if lastText(t, replies) != msgAdminPanel {
		t.Fatalf("expected panel for owner, got %q", lastText(t, replies))
	}
}

func TestGateStopsRegularUsersOnly(t *testing.T) {
	router := newTestRouter(t)
	router.HandleMessage(message(regularID, "/start"))

	replies := router.HandleCallback(press(ownerID, CallbackStopBot))
	if lastText(t, replies) != msgStopDone {
		t.Fatalf("expected stop confirmation, got %q", lastText(t, replies))
	}
	if replies := router.HandleCallback(press(ownerID, CallbackStopBot)); lastText(t, replies) != msgAlreadyStopped {
		t.Fatalf("expected idempotent stop, got %q", lastText(t, replies))
	}

	if replies := router.HandleMessage(message(regularID, ButtonShowNotes)); lastText(t, replies) != msgPaused {
		t.Fatalf("expected paused message for regular user, got %q", lastText(t, replies))
	}
	if replies := router.HandleMessage(message(ownerID, ButtonShowNotes)); lastText(t, replies) == msgPaused {
		t.Fatal("admin must pass the gate")
	}

	if replies := router.HandleCallback(press(ownerID, CallbackStartBot)); lastText(t, replies) != msgStartDone {
		t.Fatalf("expected start confirmation, got %q", lastText(t, replies))
	}
	if replies := router.HandleMessage(message(regularID, ButtonShowNotes)); lastText(t, replies) == msgPaused {
		t.Fatal("expected gate to open after start")
	}
}

func TestGateDeniesNonAdmins(t *testing.T) {
	router := newTestRouter(t)

	replies := router.HandleCallback(press(regularID, CallbackStopBot))
	if lastText(t, replies) != users.MsgAccessDeniedAdmin {
		t.Fatalf("expected denial, got %q", lastText(t, replies))
	}
	if router.Paused() {
		t.Fatal("denied press must not pause the bot")
	}
}

func TestUsersListPaginationHeader(t *testing.T) {
	router := newTestRouter(t)

	for i := int64(1); i <= 23; i++ {
		router.HandleMessage(Incoming{
			UserID: 1000 + i, ChatID: chatID,
			Username: fmt.Sprintf("user%d", i), Text: "/start",
		})
	}

	replies := router.HandleCallback(press(ownerID, CallbackUsersList))
	header := fmt.Sprintf(msgUsersPageHeader, 1, 3, 23)
	if !strings.HasPrefix(lastText(t, replies), header) {
		t.Fatalf("expected header %q, got %q", header, lastText(t, replies))
	}

	replies = router.HandleCallback(press(ownerID, CallbackUsersPage+"99"))
	header = fmt.Sprintf(msgUsersPageHeader, 3, 3, 23)
	if !strings.HasPrefix(lastText(t, replies), header) {
		t.Fatalf("expected clamped page header %q, got %q", header, lastText(t, replies))
	}
}

func TestGrantRoleDialog(t *testing.T) {
	router := newTestRouter(t)
	router.HandleMessage(message(regularID, "/start"))

	if replies := router.HandleCallback(press(regularID, CallbackGrantRole)); lastText(t, replies) != users.MsgAccessDeniedOwner {
		t.Fatalf("expected owner denial, got %q", lastText(t, replies))
	}

	if replies := router.HandleCallback(press(ownerID, CallbackGrantRole)); lastText(t, replies) != msgPromptGrantID {
		t.Fatalf("expected grant prompt, got %q", lastText(t, replies))
	}

	replies := router.HandleMessage(message(ownerID, "не число"))
	if lastText(t, replies) != users.MsgInvalidUserID {
		t.Fatalf("expected invalid id reprompt, got %q", lastText(t, replies))
	}

	replies = router.HandleMessage(message(ownerID, fmt.Sprintf("%d", regularID)))
	if want := fmt.Sprintf("Роль администратора выдана пользователю %d.", regularID); lastText(t, replies) != want {
		t.Fatalf("expected %q, got %q", want, lastText(t, replies))
	}
	if !router.resolver.IsAdmin(regularID) {
		t.Fatal("expected target to become admin")
	}
}

func TestBlockedUserIsRefused(t *testing.T) {
	router := newTestRouter(t)
	router.HandleMessage(message(regularID, "/start"))
	if err := router.directory.Block(regularID); err != nil {
		t.Fatalf("block: %v", err)
	}

	replies := router.HandleMessage(message(regularID, ButtonShowNotes))
	if lastText(t, replies) != msgBlocked {
		t.Fatalf("expected blocked message, got %q", lastText(t, replies))
	}
}

func TestSlashCommandAliases(t *testing.T) {
	router := newTestRouter(t)

	replies := router.HandleMessage(message(regularID, "/add"))
	if lastText(t, replies) != msgPromptNote {
		t.Fatalf("expected note prompt, got %q", lastText(t, replies))
	}
	router.HandleMessage(message(regularID, "полить цветы"))

	replies = router.HandleMessage(message(regularID, "/list"))
	if got := lastText(t, replies); got != "1. полить цветы" {
		t.Fatalf("expected listing, got %q", got)
	}

	if replies := router.HandleMessage(message(regularID, "/stop_bot")); lastText(t, replies) != users.MsgAccessDeniedAdmin {
		t.Fatalf("expected admin denial, got %q", lastText(t, replies))
	}
	if replies := router.HandleMessage(message(ownerID, "/stop_bot")); lastText(t, replies) != msgStopDone {
		t.Fatalf("expected stop confirmation, got %q", lastText(t, replies))
	}
	if replies := router.HandleMessage(message(ownerID, "/start_bot")); lastText(t, replies) != msgStartDone {
		t.Fatalf("expected start confirmation, got %q", lastText(t, replies))
	}

	replies = router.HandleMessage(message(ownerID, "/users"))
	if !strings.Contains(lastText(t, replies), "Страница 1 из 1") {
		t.Fatalf("expected users page, got %q", lastText(t, replies))
	}
}
