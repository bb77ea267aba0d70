package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zapiskibot/zapiski/internal/events"
	"github.com/zapiskibot/zapiski/internal/export"
	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/notify"
	"github.com/zapiskibot/zapiski/internal/pagination"
	"github.com/zapiskibot/zapiski/internal/users"
)

const (
	defaultPerPage = 10
	maxPerPage     = 100

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// actorID is the identity recorded for console-originated actions. There is
// one operator account and it belongs to the owner.
func (h *httpHandler) actorID() *int64 {
	id := h.resolver.OwnerID()
	return &id
}

func (h *httpHandler) fail(c *gin.Context, what string, err error) {
	h.logger.Error(what, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

func (h *httpHandler) handleDashboard(c *gin.Context) {
	userCount, err := h.directory.Count()
	if err != nil {
		h.fail(c, "dashboard user count failed", err)
		return
	}
	noteCount, err := h.notes.Count()
	if err != nil {
		h.fail(c, "dashboard note count failed", err)
		return
	}
	referralCount, err := h.referrals.Count()
	if err != nil {
		h.fail(c, "dashboard referral count failed", err)
		return
	}
	eventsLastDay, err := h.recorder.CountSince(24 * time.Hour)
	if err != nil {
		h.fail(c, "dashboard event count failed", err)
		return
	}
	recent, err := h.recorder.Recent(10)
	if err != nil {
		h.fail(c, "dashboard recent events failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":          userCount,
		"notes":          noteCount,
		"referrals":      referralCount,
		"events_24h":     eventsLastDay,
		"bot_running":    !h.recorder.Stopped(),
		"recent_events":  renderEvents(recent),
		"generated_at":   h.clock().UTC(),
	})
}

type listedUserPayload struct {
	UserID       int64      `json:"user_id"`
	Username     string     `json:"username"`
	Role         string     `json:"role"`
	NotesCount   int64      `json:"notes_count"`
	Referrals    int64      `json:"referrals"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
	Blocked      bool       `json:"blocked"`
}

func renderUsers(rows []users.ListedUser) []listedUserPayload {
	out := make([]listedUserPayload, 0, len(rows))
	for _, row := range rows {
		out = append(out, listedUserPayload{
			UserID:       row.UserID,
			Username:     row.Username,
			Role:         row.Role,
			NotesCount:   row.NotesCount,
			Referrals:    row.Referrals,
			RegisteredAt: row.RegisteredAt,
			LastActivity: row.LastActivity,
			Blocked:      row.Blocked,
		})
	}
	return out
}

func (h *httpHandler) userFilter(c *gin.Context) users.ListFilter {
	filter := users.ListFilter{
		Query: c.Query("q"),
		Role:  c.Query("role"),
	}
	if raw := c.Query("blocked"); raw != "" {
		blocked := raw == "true" || raw == "1"
		filter.Blocked = &blocked
	}
	return filter
}

func (h *httpHandler) handleUsersList(c *gin.Context) {
	pageNumber, perPage := pageParams(c)
	filter := h.userFilter(c)

	_, filtered, err := h.directory.List(filter, 0, 1)
	if err != nil {
		h.fail(c, "user listing failed", err)
		return
	}

	page := pagination.Paginate(int(filtered), pageNumber, perPage)
	rows, _, err := h.directory.List(filter, page.Offset, page.PerPage)
	if err != nil {
		h.fail(c, "user listing failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":       renderUsers(rows),
		"page":        page.Number,
		"per_page":    page.PerPage,
		"total":       filtered,
		"total_pages": page.TotalPages,
	})
}

func (h *httpHandler) handleUserDetail(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	row, err := h.directory.Find(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.fail(c, "user lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, renderUsers([]users.ListedUser{row})[0])
}

type userWritePayload struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Blocked  bool   `json:"blocked"`
}

func (h *httpHandler) handleUserCreate(c *gin.Context) {
	var request userWritePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.directory.CreateUser(request.UserID, request.Username, request.Role, request.Blocked); err != nil {
		h.fail(c, "user create failed", err)
		return
	}
	h.recorder.Record("USER_CREATED",
		fmt.Sprintf("Пользователь %d создан через консоль", request.UserID),
		h.actorID(), events.SeverityInfo)
	c.JSON(http.StatusCreated, gin.H{"status": "created"})
}

func (h *httpHandler) handleUserUpdate(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var request userWritePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.directory.UpdateUser(userID, request.Username, request.Role, request.Blocked); err != nil {
		h.fail(c, "user update failed", err)
		return
	}
	h.recorder.Record("USER_UPDATED",
		fmt.Sprintf("Пользователь %d изменен через консоль", userID),
		h.actorID(), events.SeverityInfo)
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *httpHandler) handleUserBlock(c *gin.Context) {
	h.setBlocked(c, true)
}

func (h *httpHandler) handleUserUnblock(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *httpHandler) setBlocked(c *gin.Context, blocked bool) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	var err error
	action := "разблокирован"
	if blocked {
		err = h.directory.Block(userID)
		action = "заблокирован"
	} else {
		err = h.directory.Unblock(userID)
	}
	if err != nil {
		h.fail(c, "block state change failed", err)
		return
	}
	h.recorder.Record("USER_BLOCK_CHANGED",
		fmt.Sprintf("Пользователь %d %s через консоль", userID, action),
		h.actorID(), events.SeverityWarning)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type bulkRequestPayload struct {
	IDs    []int64 `json:"ids"`
	Action string  `json:"action"`
}

func (h *httpHandler) handleUsersBulk(c *gin.Context) {
	var request bulkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	actor := h.resolver.OwnerID()
	var apply func(int64) error
	switch request.Action {
	case "block":
		apply = h.directory.Block
	case "unblock":
		apply = h.directory.Unblock
	case "make_admin":
		apply = func(userID int64) error {
			if ok, message := h.resolver.GrantAdmin(userID, actor); !ok {
				return errors.New(message)
			}
			return nil
		}
	case "remove_admin":
		apply = func(userID int64) error {
			if ok, message := h.resolver.RevokeAdmin(userID, actor); !ok {
				return errors.New(message)
			}
			return nil
		}
	case "delete_notes":
		apply = func(userID int64) error {
			_, err := h.notes.AdminDeleteAllByUser(userID, actor)
			return err
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action"})
		return
	}

	applied := 0
	for _, userID := range request.IDs {
		if err := apply(userID); err != nil {
			h.logger.Error("bulk user action failed", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		applied++
	}
	h.recorder.Record("USER_BULK_ACTION",
		fmt.Sprintf("Массовое действие %q применено к %d пользователям", request.Action, applied),
		h.actorID(), events.SeverityWarning)
	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

func (h *httpHandler) handleUsersImport(c *gin.Context) {
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	rows, problems, err := export.ParseUsersCSV(file)
	if errors.Is(err, export.ErrEmptyImport) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_file"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updateExisting := c.Query("update_existing") == "true"
	report, err := export.ImportUsers(h.directory, rows, updateExisting)
	if err != nil {
		h.fail(c, "user import failed", err)
		return
	}
	h.recorder.Record("USERS_IMPORTED",
		fmt.Sprintf("Импорт пользователей: создано %d, обновлено %d, пропущено %d",
			report.Created, report.Updated, report.Skipped),
		h.actorID(), events.SeverityInfo)

	c.JSON(http.StatusOK, gin.H{
		"created":  report.Created,
		"updated":  report.Updated,
		"skipped":  report.Skipped,
		"errors":   append(problems, report.Errors...),
	})
}

func (h *httpHandler) handleUsersExport(c *gin.Context) {
	rows, err := h.directory.ListAll(h.userFilter(c))
	if err != nil {
		h.fail(c, "user export failed", err)
		return
	}
	book, err := export.UsersWorkbook(rows)
	if err != nil {
		h.fail(c, "user workbook failed", err)
		return
	}
	h.sendWorkbook(c, "users", book.Bytes())
}

type notePayload struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func renderNotes(rows []notes.Note) []notePayload {
	out := make([]notePayload, 0, len(rows))
	for _, row := range rows {
		out = append(out, notePayload{
			ID:        row.ID,
			UserID:    row.UserID,
			Text:      row.Text,
			CreatedAt: row.CreatedAt,
		})
	}
	return out
}

func (h *httpHandler) handleNotesList(c *gin.Context) {
	pageNumber, perPage := pageParams(c)
	query := c.Query("q")

	_, total, err := h.notes.ListPage(query, 0, 1)
	if err != nil {
		h.fail(c, "note listing failed", err)
		return
	}
	page := pagination.Paginate(int(total), pageNumber, perPage)
	rows, _, err := h.notes.ListPage(query, page.Offset, page.PerPage)
	if err != nil {
		h.fail(c, "note listing failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notes":       renderNotes(rows),
		"page":        page.Number,
		"per_page":    page.PerPage,
		"total":       total,
		"total_pages": page.TotalPages,
	})
}

type noteWritePayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handleNoteUpdate(c *gin.Context) {
	noteID, ok := pathID(c)
	if !ok {
		return
	}
	var request noteWritePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	err := h.notes.AdminUpdate(noteID, h.resolver.OwnerID(), request.Text)
	if errors.Is(err, notes.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.fail(c, "note update failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *httpHandler) handleNoteDelete(c *gin.Context) {
	noteID, ok := pathID(c)
	if !ok {
		return
	}
	err := h.notes.AdminDelete(noteID, h.resolver.OwnerID())
	if errors.Is(err, notes.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.fail(c, "note delete failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *httpHandler) handleNotesBulk(c *gin.Context) {
	var request bulkRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.Action != "delete" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action"})
		return
	}

	applied := 0
	for _, noteID := range request.IDs {
		err := h.notes.AdminDelete(noteID, h.resolver.OwnerID())
		if err != nil && !errors.Is(err, notes.ErrNotFound) {
			h.logger.Error("bulk note delete failed", zap.Int64("note_id", noteID), zap.Error(err))
			continue
		}
		if err == nil {
			applied++
		}
	}
	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

func (h *httpHandler) handleNotesExport(c *gin.Context) {
	rows, err := h.notes.ListAll()
	if err != nil {
		h.fail(c, "note export failed", err)
		return
	}
	book, err := export.NotesWorkbook(rows)
	if err != nil {
		h.fail(c, "note workbook failed", err)
		return
	}
	h.sendWorkbook(c, "notes", book.Bytes())
}

type eventPayload struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	UserID      *int64    `json:"user_id,omitempty"`
	Username    string    `json:"username,omitempty"`
	Severity    string    `json:"severity"`
	CreatedAt   time.Time `json:"created_at"`
}

func renderEvents(rows []events.RecentEvent) []eventPayload {
	out := make([]eventPayload, 0, len(rows))
	for _, row := range rows {
		out = append(out, eventPayload{
			ID:          row.ID,
			Type:        row.Type,
			Description: row.Description,
			UserID:      row.UserID,
			Username:    row.Username,
			Severity:    row.Severity,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out
}

func (h *httpHandler) handleEventsList(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := h.recorder.Recent(limit)
	if err != nil {
		h.fail(c, "event listing failed", err)
		return
	}
	byType, err := h.recorder.CountsByType()
	if err != nil {
		h.fail(c, "event aggregation failed", err)
		return
	}
	bySeverity, err := h.recorder.CountsBySeverity()
	if err != nil {
		h.fail(c, "event aggregation failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events":      renderEvents(rows),
		"by_type":     byType,
		"by_severity": bySeverity,
	})
}

func (h *httpHandler) handleEventsExport(c *gin.Context) {
	rows, err := h.recorder.All()
	if err != nil {
		h.fail(c, "event export failed", err)
		return
	}
	book, err := export.EventsWorkbook(rows)
	if err != nil {
		h.fail(c, "event workbook failed", err)
		return
	}
	h.sendWorkbook(c, "events", book.Bytes())
}

func (h *httpHandler) handleReferralsTop(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	top, err := h.referrals.TopReferrers(limit)
	if err != nil {
		h.fail(c, "referral top failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"top": top})
}

func (h *httpHandler) analyticsBundle(days int) (gin.H, error) {
	activity, err := h.analytics.ActivitySeries(days)
	if err != nil {
		return nil, err
	}
	noteSeries, err := h.analytics.NotesSeries(days)
	if err != nil {
		return nil, err
	}
	roles, err := h.analytics.RolesBreakdown()
	if err != nil {
		return nil, err
	}
	buckets, err := h.analytics.TimeOfDayBuckets()
	if err != nil {
		return nil, err
	}
	top, err := h.analytics.TopUsers(10)
	if err != nil {
		return nil, err
	}
	return gin.H{
		"activity":    activity,
		"notes":       noteSeries,
		"roles":       roles,
		"time_of_day": buckets,
		"top_users":   top,
	}, nil
}

func (h *httpHandler) handleAnalyticsOverview(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	bundle, err := h.analyticsBundle(days)
	if err != nil {
		h.fail(c, "analytics overview failed", err)
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func (h *httpHandler) handleAnalyticsExport(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	activity, err := h.analytics.ActivitySeries(days)
	if err != nil {
		h.fail(c, "analytics export failed", err)
		return
	}
	noteSeries, err := h.analytics.NotesSeries(days)
	if err != nil {
		h.fail(c, "analytics export failed", err)
		return
	}
	roles, err := h.analytics.RolesBreakdown()
	if err != nil {
		h.fail(c, "analytics export failed", err)
		return
	}
	buckets, err := h.analytics.TimeOfDayBuckets()
	if err != nil {
		h.fail(c, "analytics export failed", err)
		return
	}
	top, err := h.analytics.TopUsers(10)
	if err != nil {
		h.fail(c, "analytics export failed", err)
		return
	}
	book, err := export.AnalyticsWorkbook(activity, noteSeries, roles, buckets, top)
	if err != nil {
		h.fail(c, "analytics workbook failed", err)
		return
	}
	h.sendWorkbook(c, "analytics", book.Bytes())
}

func (h *httpHandler) handleBotStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": !h.recorder.Stopped()})
}

type botStatusPayload struct {
	Running *bool `json:"running"`
}

func (h *httpHandler) handleBotStatusChange(c *gin.Context) {
	var request botStatusPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Running == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	stopped := h.recorder.Stopped()
	switch {
	case *request.Running && stopped:
		h.recorder.Start(h.actorID(), "через консоль")
	case !*request.Running && !stopped:
		h.recorder.Stop(h.actorID(), "через консоль")
		if h.notifier != nil {
			h.notifier.AdminAction(*h.actorID(), "бот остановлен через консоль")
		}
	}
	c.JSON(http.StatusOK, gin.H{"running": *request.Running})
}

func (h *httpHandler) handleAdminsList(c *gin.Context) {
	ids, err := h.resolver.Admins()
	if err != nil {
		h.fail(c, "admin listing failed", err)
		return
	}
	admins := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		admins = append(admins, gin.H{
			"user_id":  id,
			"username": h.directory.UsernameByID(id),
			"role":     h.resolver.RoleOf(id),
		})
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

type adminWritePayload struct {
	UserID int64 `json:"user_id"`
}

func (h *httpHandler) handleAdminGrant(c *gin.Context) {
	var request adminWritePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	ok, message := h.resolver.GrantAdmin(request.UserID, h.resolver.OwnerID())
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": message})
		return
	}
	h.recorder.Record("ROLE_GRANTED", message, h.actorID(), events.SeverityWarning)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": message})
}

func (h *httpHandler) handleAdminRevoke(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}
	done, message := h.resolver.RevokeAdmin(userID, h.resolver.OwnerID())
	if !done {
		c.JSON(http.StatusConflict, gin.H{"error": message})
		return
	}
	h.recorder.Record("ROLE_REVOKED", message, h.actorID(), events.SeverityWarning)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": message})
}

func (h *httpHandler) handleNotifySettings(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notifications_disabled"})
		return
	}
	c.JSON(http.StatusOK, h.notifier.Settings())
}

func (h *httpHandler) handleNotifySettingsUpdate(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notifications_disabled"})
		return
	}
	var settings notify.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.notifier.UpdateSettings(settings); err != nil {
		h.fail(c, "notification settings update failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) handleNotifyHistory(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notifications_disabled"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": h.notifier.History()})
}

type notifyTestPayload struct {
	Channel string `json:"channel"`
}

func (h *httpHandler) handleNotifyTest(c *gin.Context) {
	if h.notifier == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "notifications_disabled"})
		return
	}
	var request notifyTestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Channel == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.notifier.Test(request.Channel); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (h *httpHandler) sendWorkbook(c *gin.Context, prefix string, payload []byte) {
	filename := export.Filename(prefix, h.clock())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, payload)
}
