package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapiskibot/zapiski/internal/analytics"
	"github.com/zapiskibot/zapiski/internal/auth"
	"github.com/zapiskibot/zapiski/internal/bot"
	"github.com/zapiskibot/zapiski/internal/cooldown"
	"github.com/zapiskibot/zapiski/internal/database"
	"github.com/zapiskibot/zapiski/internal/events"
	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/referrals"
	"github.com/zapiskibot/zapiski/internal/server"
	"github.com/zapiskibot/zapiski/internal/users"
)

const (
	ownerID       int64 = 111
	visitorID     int64 = 222
	consoleSecret       = "integration-secret"
	consolePass         = "integration password"
)

// TestBotAndConsoleShareOneStore drives a note through the chat front-end
// and then observes and manages it through the console API, including the
// shared stop/start gate.
func TestBotAndConsoleShareOneStore(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	databasePath := filepath.Join(testContext.TempDir(), "integration.db")
	db, err := database.OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	resolver, err := users.NewResolver(users.ResolverConfig{Database: db, OwnerID: ownerID})
	if err != nil {
		testContext.Fatalf("failed to build resolver: %v", err)
	}
	directory, err := users.NewDirectory(users.DirectoryConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build directory: %v", err)
	}
	guard, err := cooldown.NewGuard(cooldown.GuardConfig{Database: db, Window: 0})
	if err != nil {
		testContext.Fatalf("failed to build guard: %v", err)
	}
	recorder, err := events.NewRecorder(events.RecorderConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build recorder: %v", err)
	}
	ledger, err := notes.NewLedger(notes.LedgerConfig{Database: db, Guard: guard, Recorder: recorder})
	if err != nil {
		testContext.Fatalf("failed to build ledger: %v", err)
	}
	referralLedger, err := referrals.NewLedger(referrals.LedgerConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build referrals: %v", err)
	}
	analyticsService, err := analytics.NewService(analytics.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build analytics: %v", err)
	}

	router, err := bot.NewRouter(bot.RouterConfig{
		Notes:       ledger,
		Resolver:    resolver,
		Directory:   directory,
		Referrals:   referralLedger,
		Recorder:    recorder,
		Sessions:    bot.NewMemorySessionStore(),
		BotUsername: "zapiski_integration_bot",
	})
	if err != nil {
		testContext.Fatalf("failed to build router: %v", err)
	}

	passwordHash, err := auth.HashPassword(consolePass)
	if err != nil {
		testContext.Fatalf("failed to hash password: %v", err)
	}
	sessions := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(consoleSecret),
		PasswordHash:  passwordHash,
		SessionTTL:    time.Hour,
	})
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:  sessions,
		Notes:     ledger,
		Resolver:  resolver,
		Directory: directory,
		Referrals: referralLedger,
		Recorder:  recorder,
		Analytics: analyticsService,
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	// A visitor arrives through an invite link and saves a note.
	router.HandleMessage(bot.Incoming{
		UserID: ownerID, ChatID: 1, Username: "owner", Text: "/start",
	})
	router.HandleMessage(bot.Incoming{
		UserID: visitorID, ChatID: 2, Username: "visitor",
		Text: fmt.Sprintf("/start ref%d", ownerID),
	})
	router.HandleMessage(bot.Incoming{UserID: visitorID, ChatID: 2, Username: "visitor", Text: "📝 Добавить заметку"})
	router.HandleMessage(bot.Incoming{UserID: visitorID, ChatID: 2, Username: "visitor", Text: "сходить за молоком"})

	// Log in to the console.
	loginBody, _ := json.Marshal(map[string]string{"password": consolePass})
	loginRequest := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(loginBody))
	loginRequest.Header.Set("Content-Type", "application/json")
	loginRecorder := httptest.NewRecorder()
	handler.ServeHTTP(loginRecorder, loginRequest)
	if loginRecorder.Code != http.StatusOK {
		testContext.Fatalf("login failed: %d (%s)", loginRecorder.Code, loginRecorder.Body.String())
	}
	var loginPayload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(loginRecorder.Body.Bytes(), &loginPayload); err != nil {
		testContext.Fatalf("failed to decode login response: %v", err)
	}

	call := func(method, path string, body []byte) *httptest.ResponseRecorder {
		request := httptest.NewRequest(method, path, bytes.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
		request.Header.Set("Authorization", "Bearer "+loginPayload.AccessToken)
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		return recorder
	}

	// The note saved in chat is visible in the console.
	notesRecorder := call(http.MethodGet, "/api/notes?q=молоком", nil)
	if notesRecorder.Code != http.StatusOK {
		testContext.Fatalf("note listing failed: %d", notesRecorder.Code)
	}
	var notesPayload struct {
		Total int64 `json:"total"`
		Notes []struct {
			ID     int64 `json:"id"`
			UserID int64 `json:"user_id"`
		} `json:"notes"`
	}
	if err := json.Unmarshal(notesRecorder.Body.Bytes(), &notesPayload); err != nil {
		testContext.Fatalf("failed to decode notes: %v", err)
	}
	if notesPayload.Total != 1 || notesPayload.Notes[0].UserID != visitorID {
		testContext.Fatalf("expected the visitor's note, got %+v", notesPayload)
	}

	// The referral landed too.
	topRecorder := call(http.MethodGet, "/api/referrals/top", nil)
	if topRecorder.Code != http.StatusOK {
		testContext.Fatalf("referral top failed: %d", topRecorder.Code)
	}
	var topPayload struct {
		Top []struct {
			UserID         int64 `json:"UserID"`
			TotalReferrals int64 `json:"TotalReferrals"`
		} `json:"top"`
	}
	if err := json.Unmarshal(topRecorder.Body.Bytes(), &topPayload); err != nil {
		testContext.Fatalf("failed to decode top: %v", err)
	}
	if len(topPayload.Top) != 1 || topPayload.Top[0].UserID != ownerID {
		testContext.Fatalf("expected owner on the leaderboard, got %+v", topPayload)
	}

	// Stopping through the console gates the chat front-end.
	stopBody, _ := json.Marshal(map[string]bool{"running": false})
	if recorder := call(http.MethodPost, "/api/bot/status", stopBody); recorder.Code != http.StatusOK {
		testContext.Fatalf("stop failed: %d", recorder.Code)
	}
	replies := router.HandleMessage(bot.Incoming{
		UserID: visitorID, ChatID: 2, Username: "visitor", Text: "📋 Показать заметки",
	})
	if len(replies) != 1 || replies[0].Text != "🤖 Бот временно приостановлен администратором. Попробуйте позже." {
		testContext.Fatalf("expected paused reply, got %+v", replies)
	}

	// Starting again reopens it.
	startBody, _ := json.Marshal(map[string]bool{"running": true})
	if recorder := call(http.MethodPost, "/api/bot/status", startBody); recorder.Code != http.StatusOK {
		testContext.Fatalf("start failed: %d", recorder.Code)
	}
	replies = router.HandleMessage(bot.Incoming{
		UserID: visitorID, ChatID: 2, Username: "visitor", Text: "📋 Показать заметки",
	})
	if len(replies) != 1 || replies[0].Text != "1. сходить за молоком" {
		testContext.Fatalf("expected the note listing, got %+v", replies)
	}

	// The console can remove the note the visitor saved.
	deleteRecorder := call(http.MethodDelete, fmt.Sprintf("/api/notes/%d", notesPayload.Notes[0].ID), nil)
	if deleteRecorder.Code != http.StatusOK {
		testContext.Fatalf("console delete failed: %d", deleteRecorder.Code)
	}
	replies = router.HandleMessage(bot.Incoming{
		UserID: visitorID, ChatID: 2, Username: "visitor", Text: "📋 Показать заметки",
	})
	if len(replies) != 1 || replies[0].Text != "У вас пока нет заметок." {
		testContext.Fatalf("expected empty listing after console delete, got %+v", replies)
	}
}
