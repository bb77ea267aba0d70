package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/zapiskibot/zapiski/internal/events"
	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/pagination"
	"github.com/zapiskibot/zapiski/internal/referrals"
	"github.com/zapiskibot/zapiski/internal/users"
)

const (
	defaultUsersPerPage    = 10
	defaultNotesPerMessage = 5

	gateOrigin = "через Telegram"
)

var errMissingDependency = errors.New("bot: notes, users, referrals, events, and sessions are all required")

// Incoming is one text message, already unwrapped from the transport.
type Incoming struct {
	UserID   int64
	ChatID   int64
	Username string
	Text     string
}

// Callback is one inline keyboard press.
type Callback struct {
	UserID    int64
	ChatID    int64
	Username  string
	Data      string
	MessageID int
}

// Reply is one outgoing message. When EditMessageID is set the transport
// edits that message in place instead of sending a new one.
type Reply struct {
	ChatID        int64
	Text          string
	Markup        interface{}
	EditMessageID int
}

// RouterConfig describes the dependencies of a Router.
type RouterConfig struct {
	Notes     *notes.Ledger
	Resolver  *users.Resolver
	Directory *users.Directory
	Referrals *referrals.Ledger
	Recorder  *events.Recorder
	Sessions  SessionStore
	Logger    *zap.Logger

	BotUsername     string
	UsersPerPage    int
	NotesPerMessage int
}

// Router turns incoming chat traffic into replies. It is transport
// agnostic; the long-polling front-end feeds it and sends what comes back.
type Router struct {
	notes     *notes.Ledger
	resolver  *users.Resolver
	directory *users.Directory
	referrals *referrals.Ledger
	recorder  *events.Recorder
	sessions  SessionStore
	logger    *zap.Logger

	botUsername     string
	usersPerPage    int
	notesPerMessage int
}

// NewRouter constructs the router.
func NewRouter(cfg RouterConfig) (*Router, error) {
	if cfg.Notes == nil || cfg.Resolver == nil || cfg.Directory == nil ||
		cfg.Referrals == nil || cfg.Recorder == nil || cfg.Sessions == nil {
		return nil, errMissingDependency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	usersPerPage := cfg.UsersPerPage
	if usersPerPage <= 0 {
		usersPerPage = defaultUsersPerPage
	}
	notesPerMessage := cfg.NotesPerMessage
	if notesPerMessage <= 0 {
		notesPerMessage = defaultNotesPerMessage
	}
	return &Router{
		notes:           cfg.Notes,
		resolver:        cfg.Resolver,
		directory:       cfg.Directory,
		referrals:       cfg.Referrals,
		recorder:        cfg.Recorder,
		sessions:        cfg.Sessions,
		logger:          logger,
		botUsername:     cfg.BotUsername,
		usersPerPage:    usersPerPage,
		notesPerMessage: notesPerMessage,
	}, nil
}

// Paused reports the shared bot gate, derived from the audit trail so the
// console and the chat front-end always agree.
func (r *Router) Paused() bool {
	return r.recorder.Stopped()
}

// HandleMessage processes one text message and returns the replies to send.
func (r *Router) HandleMessage(in Incoming) []Reply {
	if err := r.resolver.EnsureExists(in.UserID); err != nil {
		r.logger.Error("user registration failed", zap.Int64("user_id", in.UserID), zap.Error(err))
	}
	r.directory.SaveUsername(in.UserID, in.Username)

	if !r.directory.IsActive(in.UserID) {
		return r.say(in.ChatID, msgBlocked)
	}
	if r.Paused() && !r.resolver.IsAdmin(in.UserID) {
		return r.say(in.ChatID, msgPaused)
	}

	if strings.HasPrefix(in.Text, "/start") {
		return r.handleStart(in)
	}

	session := r.sessions.Get(in.UserID)
	switch session.State {
	case StateAwaitingNoteText:
		return r.handleNoteText(in)
	case StateAwaitingDeleteSelection:
		return r.handleDeleteSelection(in, session)
	case StateAwaitingGrantTargetID:
		return r.handleRoleTarget(in, true)
	case StateAwaitingRevokeTargetID:
		return r.handleRoleTarget(in, false)
	}

	// Slash commands are aliases for the menu buttons.
	switch in.Text {
	case ButtonAddNote, "/add":
		r.sessions.Put(in.UserID, Session{State: StateAwaitingNoteText})
		return []Reply{{ChatID: in.ChatID, Text: msgPromptNote, Markup: cancelKeyboard()}}
	case ButtonShowNotes, "/list":
		return r.handleShowNotes(in)
	case ButtonDeleteNote, "/delete":
		return r.handleDeletePrompt(in)
	case ButtonReferrals, "/referral":
		return r.handleReferralMenu(in)
	case ButtonAdminPanel, "/admin":
		return r.handleAdminPanel(in)
	case "/users":
		return r.handleUsersList(Callback{UserID: in.UserID, ChatID: in.ChatID}, 1)
	case "/stop_bot":
		return r.handleGate(Callback{UserID: in.UserID, ChatID: in.ChatID}, true)
	case "/start_bot":
		return r.handleGate(Callback{UserID: in.UserID, ChatID: in.ChatID}, false)
	}

	return r.menu(in.UserID, in.ChatID, msgMenu)
}

// HandleCallback processes one inline keyboard press.
func (r *Router) HandleCallback(cb Callback) []Reply {
	if !r.directory.IsActive(cb.UserID) {
		return r.say(cb.ChatID, msgBlocked)
	}

	if strings.HasPrefix(cb.Data, CallbackUsersPage) {
		page, err := strconv.Atoi(strings.TrimPrefix(cb.Data, CallbackUsersPage))
		if err != nil {
			return nil
		}
		return r.handleUsersList(cb, page)
	}

	switch cb.Data {
	case CallbackStopBot:
		return r.handleGate(cb, true)
	case CallbackStartBot:
		return r.handleGate(cb, false)
	case CallbackUsersList:
		return r.handleUsersList(cb, 1)
	case CallbackUsersInfo:
		return nil
	case CallbackManageRoles:
		return r.requireAdmin(cb, func() []Reply {
			return r.edit(cb, msgRolesMenu, rolesKeyboard())
		})
	case CallbackAdminsList:
		return r.handleAdminsList(cb)
	case CallbackGrantRole:
		return r.handleRolePrompt(cb, true)
	case CallbackRevokeRole:
		return r.handleRolePrompt(cb, false)
	case CallbackPanelBack:
		r.sessions.Reset(cb.UserID)
		return r.menu(cb.UserID, cb.ChatID, msgMenu)
	case CallbackReferralTop:
		return r.handleReferralTop(cb)
	case CallbackReferralShare:
		return r.handleReferralShare(cb)
	case CallbackReferralBack:
		r.sessions.Reset(cb.UserID)
		return r.menu(cb.UserID, cb.ChatID, msgMenu)
	}

	return nil
}

func (r *Router) handleStart(in Incoming) []Reply {
	r.sessions.Reset(in.UserID)

	replies := []Reply{}
	payload := strings.TrimSpace(strings.TrimPrefix(in.Text, "/start"))
	if payload != "" {
		if referrerID, err := parseReferralPayload(payload); err == nil {
			referrerName := r.directory.UsernameByID(referrerID)
			err := r.referrals.AddReferral(referrerID, in.UserID, referrerName)
			switch {
			case err == nil:
				replies = append(replies, Reply{ChatID: in.ChatID, Text: msgReferralWelcome})
			case errors.Is(err, referrals.ErrSelfReferral),
				errors.Is(err, referrals.ErrAlreadyReferred):
				// Deep link reuse is routine, not an error.
			default:
				r.logger.Error("referral attribution failed",
					zap.Int64("referrer_id", referrerID),
					zap.Int64("referred_id", in.UserID),
					zap.Error(err))
			}
		}
	}

	return append(replies, r.menu(in.UserID, in.ChatID, msgWelcome)...)
}

func (r *Router) handleNoteText(in Incoming) []Reply {
	if in.Text == ButtonCancel {
		r.sessions.Reset(in.UserID)
		return r.menu(in.UserID, in.ChatID, msgCancelled)
	}

	ok, message := r.notes.Add(in.UserID, in.Text)
	if !ok {
		// Cooldown and validation keep the prompt open.
		return []Reply{{ChatID: in.ChatID, Text: message, Markup: cancelKeyboard()}}
	}
	r.sessions.Reset(in.UserID)
	return r.menu(in.UserID, in.ChatID, message)
}

func (r *Router) handleShowNotes(in Incoming) []Reply {
	list, err := r.notes.List(in.UserID)
	if err != nil {
		r.logger.Error("note listing failed", zap.Int64("user_id", in.UserID), zap.Error(err))
		return r.say(in.ChatID, notes.MsgFailure)
	}
	if len(list) == 0 {
		return r.say(in.ChatID, msgNoNotes)
	}

	var replies []Reply
	for start := 0; start < len(list); start += r.notesPerMessage {
		end := start + r.notesPerMessage
		if end > len(list) {
			end = len(list)
		}
		var builder strings.Builder
		for i := start; i < end; i++ {
			fmt.Fprintf(&builder, "%d. %s\n", i+1, list[i].Text)
		}
		replies = append(replies, Reply{ChatID: in.ChatID, Text: strings.TrimRight(builder.String(), "\n")})
	}
	return replies
}

func (r *Router) handleDeletePrompt(in Incoming) []Reply {
	list, err := r.notes.List(in.UserID)
	if err != nil {
		r.logger.Error("note listing failed", zap.Int64("user_id", in.UserID), zap.Error(err))
		return r.say(in.ChatID, notes.MsgFailure)
	}
	if len(list) == 0 {
		return r.say(in.ChatID, msgNoNotes)
	}

	r.sessions.Put(in.UserID, Session{State: StateAwaitingDeleteSelection, DeleteChoices: list})

	var builder strings.Builder
	for i, note := range list {
		fmt.Fprintf(&builder, "%d. %s\n", i+1, note.Text)
	}
	builder.WriteString("\n" + msgPromptDelete)
	return []Reply{{ChatID: in.ChatID, Text: builder.String(), Markup: cancelKeyboard()}}
}

func (r *Router) handleDeleteSelection(in Incoming, session Session) []Reply {
	if in.Text == ButtonCancel {
		r.sessions.Reset(in.UserID)
		return r.menu(in.UserID, in.ChatID, msgCancelled)
	}

	index, err := strconv.Atoi(strings.TrimSpace(in.Text))
	if err != nil || index < 1 || index > len(session.DeleteChoices) {
		return []Reply{{ChatID: in.ChatID, Text: msgInvalidSelection, Markup: cancelKeyboard()}}
	}

	_, message := r.notes.Delete(in.UserID, session.DeleteChoices[index-1].ID)
	r.sessions.Reset(in.UserID)
	return r.menu(in.UserID, in.ChatID, message)
}

func (r *Router) handleReferralMenu(in Incoming) []Reply {
	stats, err := r.referrals.StatsOf(in.UserID)
	if err != nil {
		r.logger.Error("referral stats failed", zap.Int64("user_id", in.UserID), zap.Error(err))
		return r.say(in.ChatID, notes.MsgFailure)
	}
	r.sessions.Put(in.UserID, Session{State: StateInReferralMenu})

	text := msgReferralMenu + "\n\n" +
		fmt.Sprintf(msgReferralStats, stats.TotalReferrals, stats.ActiveReferrals)
	return []Reply{{ChatID: in.ChatID, Text: text, Markup: referralKeyboard()}}
}

func (r *Router) handleReferralTop(cb Callback) []Reply {
	top, err := r.referrals.TopReferrers(10)
	if err != nil {
		r.logger.Error("referral top failed", zap.Error(err))
		return r.say(cb.ChatID, notes.MsgFailure)
	}
	if len(top) == 0 {
		return r.edit(cb, msgReferralEmpty, referralKeyboard())
	}

	var builder strings.Builder
	builder.WriteString(msgReferralTop + "\n")
	for i, row := range top {
		name := row.Username
		if name == "" {
			name = strconv.FormatInt(row.UserID, 10)
		}
		fmt.Fprintf(&builder, "%d. %s: %d\n", i+1, name, row.TotalReferrals)
	}
	return r.edit(cb, strings.TrimRight(builder.String(), "\n"), referralKeyboard())
}

func (r *Router) handleReferralShare(cb Callback) []Reply {
	return r.edit(cb, fmt.Sprintf(msgReferralLink, r.botUsername, cb.UserID), referralKeyboard())
}

func (r *Router) handleAdminPanel(in Incoming) []Reply {
	if !r.resolver.IsAdmin(in.UserID) {
		return r.say(in.ChatID, users.MsgAccessDeniedAdmin)
	}
	r.sessions.Put(in.UserID, Session{State: StateInAdminPanel})
	return []Reply{{ChatID: in.ChatID, Text: msgAdminPanel, Markup: adminPanelKeyboard(r.Paused())}}
}

func (r *Router) handleGate(cb Callback, stop bool) []Reply {
	return r.requireAdmin(cb, func() []Reply {
		actorID := cb.UserID
		if stop {
			if r.recorder.Stopped() {
				return r.edit(cb, msgAlreadyStopped, adminPanelKeyboard(true))
			}
			r.recorder.Stop(&actorID, gateOrigin)
			return r.edit(cb, msgStopDone, adminPanelKeyboard(true))
		}
		if !r.recorder.Stopped() {
			return r.edit(cb, msgAlreadyStarted, adminPanelKeyboard(false))
		}
		r.recorder.Start(&actorID, gateOrigin)
		return r.edit(cb, msgStartDone, adminPanelKeyboard(false))
	})
}

func (r *Router) handleUsersList(cb Callback, pageNumber int) []Reply {
	return r.requireAdmin(cb, func() []Reply {
		total, err := r.directory.Count()
		if err != nil {
			r.logger.Error("user count failed", zap.Error(err))
			return r.say(cb.ChatID, notes.MsgFailure)
		}

		page := pagination.Paginate(int(total), pageNumber, r.usersPerPage)
		rows, _, err := r.directory.List(users.ListFilter{}, page.Offset, page.PerPage)
		if err != nil {
			r.logger.Error("user listing failed", zap.Error(err))
			return r.say(cb.ChatID, notes.MsgFailure)
		}

		var builder strings.Builder
		fmt.Fprintf(&builder, msgUsersPageHeader, page.Number, page.TotalPages, total)
		builder.WriteString("\n\n")
		for _, row := range rows {
			name := row.Username
			if name == "" {
				name = "—"
			}
			status := "✅"
			if row.Blocked {
				status = "🚫"
			}
			fmt.Fprintf(&builder, "%s %d | @%s | %s | заметок: %d\n",
				status, row.UserID, name, row.Role, row.NotesCount)
		}
		return r.edit(cb, strings.TrimRight(builder.String(), "\n"),
			usersPageKeyboard(page.Number, page.TotalPages))
	})
}

func (r *Router) handleAdminsList(cb Callback) []Reply {
	return r.requireAdmin(cb, func() []Reply {
		admins, err := r.resolver.Admins()
		if err != nil {
			r.logger.Error("admin listing failed", zap.Error(err))
			return r.say(cb.ChatID, notes.MsgFailure)
		}

		var builder strings.Builder
		builder.WriteString(ButtonAdminsList + ":\n")
		for _, adminID := range admins {
			name := r.directory.UsernameByID(adminID)
			if name == "" {
				name = strconv.FormatInt(adminID, 10)
			}
			role := r.resolver.RoleOf(adminID)
			fmt.Fprintf(&builder, "%d | @%s | %s\n", adminID, name, role)
		}
		return r.edit(cb, strings.TrimRight(builder.String(), "\n"), rolesKeyboard())
	})
}

func (r *Router) handleRolePrompt(cb Callback, grant bool) []Reply {
	if !r.resolver.IsOwner(cb.UserID) {
		return r.say(cb.ChatID, users.MsgAccessDeniedOwner)
	}
	if grant {
		r.sessions.Put(cb.UserID, Session{State: StateAwaitingGrantTargetID})
		return []Reply{{ChatID: cb.ChatID, Text: msgPromptGrantID, Markup: cancelKeyboard()}}
	}
	r.sessions.Put(cb.UserID, Session{State: StateAwaitingRevokeTargetID})
	return []Reply{{ChatID: cb.ChatID, Text: msgPromptRevokeID, Markup: cancelKeyboard()}}
}

func (r *Router) handleRoleTarget(in Incoming, grant bool) []Reply {
	if in.Text == ButtonCancel {
		r.sessions.Reset(in.UserID)
		return r.menu(in.UserID, in.ChatID, msgCancelled)
	}

	targetID, err := strconv.ParseInt(strings.TrimSpace(in.Text), 10, 64)
	if err != nil {
		return []Reply{{ChatID: in.ChatID, Text: users.MsgInvalidUserID, Markup: cancelKeyboard()}}
	}

	var (
		ok      bool
		message string
	)
	if grant {
		ok, message = r.resolver.GrantAdmin(targetID, in.UserID)
	} else {
		ok, message = r.resolver.RevokeAdmin(targetID, in.UserID)
	}
	if ok {
		actorID := in.UserID
		eventType := "ROLE_GRANTED"
		if !grant {
			eventType = "ROLE_REVOKED"
		}
		r.recorder.Record(eventType,
			fmt.Sprintf("%s (пользователь %d)", message, targetID),
			&actorID, events.SeverityWarning)
	}

	r.sessions.Reset(in.UserID)
	return r.menu(in.UserID, in.ChatID, message)
}

func (r *Router) requireAdmin(cb Callback, next func() []Reply) []Reply {
	if !r.resolver.IsAdmin(cb.UserID) {
		return r.say(cb.ChatID, users.MsgAccessDeniedAdmin)
	}
	return next()
}

func (r *Router) menu(userID, chatID int64, text string) []Reply {
	return []Reply{{ChatID: chatID, Text: text, Markup: mainMenuKeyboard(r.resolver.IsAdmin(userID))}}
}

func (r *Router) say(chatID int64, text string) []Reply {
	return []Reply{{ChatID: chatID, Text: text}}
}

func (r *Router) edit(cb Callback, text string, markup interface{}) []Reply {
	return []Reply{{ChatID: cb.ChatID, Text: text, Markup: markup, EditMessageID: cb.MessageID}}
}

// parseReferralPayload accepts both "ref12345" and bare "12345" deep links.
func parseReferralPayload(payload string) (int64, error) {
	payload = strings.TrimPrefix(payload, "ref")
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bot: bad referral payload %q", payload)
	}
	return id, nil
}
