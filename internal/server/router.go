package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zapiskibot/zapiski/internal/analytics"
	"github.com/zapiskibot/zapiski/internal/auth"
	"github.com/zapiskibot/zapiski/internal/events"
	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/notify"
	"github.com/zapiskibot/zapiski/internal/referrals"
	"github.com/zapiskibot/zapiski/internal/users"
)

const (
	subjectContextKey = "zapiski_admin_subject"

	defaultSessionCookie = "zapiski_session"
)

var (
	errMissingSessions  = errors.New("session issuer dependency required")
	errMissingNotes     = errors.New("notes ledger dependency required")
	errMissingUsers     = errors.New("users dependencies required")
	errMissingReferrals = errors.New("referrals ledger dependency required")
	errMissingEvents    = errors.New("events recorder dependency required")
	errMissingAnalytics = errors.New("analytics service dependency required")
)

// SessionManager is what the router needs from the auth package.
type SessionManager interface {
	Login(password string) (string, int64, error)
	ValidateSession(token string) (string, error)
}

// Dependencies wires the console together.
type Dependencies struct {
	Sessions  SessionManager
	Notes     *notes.Ledger
	Resolver  *users.Resolver
	Directory *users.Directory
	Referrals *referrals.Ledger
	Recorder  *events.Recorder
	Analytics *analytics.Service
	Notifier  *notify.Notifier
	Logger    *zap.Logger

	SessionCookieName string
	Clock             func() time.Time
}

// NewHTTPHandler builds the console API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Notes == nil {
		return nil, errMissingNotes
	}
	if deps.Resolver == nil || deps.Directory == nil {
		return nil, errMissingUsers
	}
	if deps.Referrals == nil {
		return nil, errMissingReferrals
	}
	if deps.Recorder == nil {
		return nil, errMissingEvents
	}
	if deps.Analytics == nil {
		return nil, errMissingAnalytics
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cookieName := deps.SessionCookieName
	if cookieName == "" {
		cookieName = defaultSessionCookie
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:   deps.Sessions,
		notes:      deps.Notes,
		resolver:   deps.Resolver,
		directory:  deps.Directory,
		referrals:  deps.Referrals,
		recorder:   deps.Recorder,
		analytics:  deps.Analytics,
		notifier:   deps.Notifier,
		logger:     logger,
		cookieName: cookieName,
		clock:      clock,
	}

	router.POST("/api/login", handler.handleLogin)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	{
		protected.POST("/logout", handler.handleLogout)
		protected.GET("/dashboard", handler.handleDashboard)

		protected.GET("/users", handler.handleUsersList)
		protected.GET("/users/:id", handler.handleUserDetail)
		protected.POST("/users", handler.handleUserCreate)
		protected.PUT("/users/:id", handler.handleUserUpdate)
		protected.POST("/users/:id/block", handler.handleUserBlock)
		protected.POST("/users/:id/unblock", handler.handleUserUnblock)
		protected.POST("/users/bulk", handler.handleUsersBulk)
		protected.POST("/users/import", handler.handleUsersImport)
		protected.GET("/users/export", handler.handleUsersExport)

		protected.GET("/notes", handler.handleNotesList)
		protected.PUT("/notes/:id", handler.handleNoteUpdate)
		protected.DELETE("/notes/:id", handler.handleNoteDelete)
		protected.POST("/notes/bulk", handler.handleNotesBulk)
		protected.GET("/notes/export", handler.handleNotesExport)

		protected.GET("/events", handler.handleEventsList)
		protected.GET("/events/export", handler.handleEventsExport)

		protected.GET("/referrals/top", handler.handleReferralsTop)

		protected.GET("/analytics/overview", handler.handleAnalyticsOverview)
		protected.GET("/analytics/export", handler.handleAnalyticsExport)

		protected.GET("/bot/status", handler.handleBotStatus)
		protected.POST("/bot/status", handler.handleBotStatusChange)

		protected.GET("/admins", handler.handleAdminsList)
		protected.POST("/admins", handler.handleAdminGrant)
		protected.DELETE("/admins/:id", handler.handleAdminRevoke)

		protected.GET("/notifications/settings", handler.handleNotifySettings)
		protected.PUT("/notifications/settings", handler.handleNotifySettingsUpdate)
		protected.GET("/notifications/history", handler.handleNotifyHistory)
		protected.POST("/notifications/test", handler.handleNotifyTest)
	}

	return router, nil
}

type httpHandler struct {
	sessions   SessionManager
	notes      *notes.Ledger
	resolver   *users.Resolver
	directory  *users.Directory
	referrals  *referrals.Ledger
	recorder   *events.Recorder
	analytics  *analytics.Service
	notifier   *notify.Notifier
	logger     *zap.Logger
	cookieName string
	clock      func() time.Time
}

type loginRequestPayload struct {
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	token, expiresIn, err := h.sessions.Login(request.Password)
	if errors.Is(err, auth.ErrBadCredentials) {
		h.logger.Warn("console login rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err != nil {
		h.logger.Error("console login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	c.SetCookie(h.cookieName, token, int(expiresIn), "/", "", false, true)
	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorizeRequest accepts the session either as a Bearer header or as the
// login cookie.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token := ""
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		if cookie, err := c.Cookie(h.cookieName); err == nil {
			token = cookie
		}
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	subject, err := h.sessions.ValidateSession(token)
	if err != nil {
		h.logger.Warn("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}
