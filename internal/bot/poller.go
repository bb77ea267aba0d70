package bot

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

var errMissingToken = errors.New("bot: telegram token is required")

// PollerConfig describes the long-polling front-end.
type PollerConfig struct {
	Token   string
	Router  *Router
	Logger  *zap.Logger
	Timeout int
}

// Poller pulls updates from the Telegram API and feeds them to the router.
type Poller struct {
	api     *tgbotapi.BotAPI
	router  *Router
	logger  *zap.Logger
	timeout int
}

// NewPoller authenticates against the Telegram API.
func NewPoller(cfg PollerConfig) (*Poller, error) {
	if cfg.Token == "" {
		return nil, errMissingToken
	}
	if cfg.Router == nil {
		return nil, errMissingDependency
	}
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30
	}
	return &Poller{api: api, router: cfg.Router, logger: logger, timeout: timeout}, nil
}

// Username returns the authenticated bot's username, used for invite links.
func (p *Poller) Username() string {
	return p.api.Self.UserName
}

// Run consumes updates until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = p.timeout
	updates := p.api.GetUpdatesChan(updateConfig)

	p.logger.Info("long polling started", zap.String("bot", p.Username()))
	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			return ctx.Err()
		case update, open := <-updates:
			if !open {
				return nil
			}
			p.dispatch(update)
		}
	}
}

func (p *Poller) dispatch(update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		message := update.Message
		replies := p.router.HandleMessage(Incoming{
			UserID:   message.From.ID,
			ChatID:   message.Chat.ID,
			Username: message.From.UserName,
			Text:     message.Text,
		})
		p.send(replies)
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		callback := update.CallbackQuery
		chatID := int64(0)
		messageID := 0
		if callback.Message != nil {
			chatID = callback.Message.Chat.ID
			messageID = callback.Message.MessageID
		}
		replies := p.router.HandleCallback(Callback{
			UserID:    callback.From.ID,
			ChatID:    chatID,
			Username:  callback.From.UserName,
			Data:      callback.Data,
			MessageID: messageID,
		})
		// Telegram keeps the button spinner until the callback is answered.
		if _, err := p.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
			p.logger.Warn("callback ack failed", zap.Error(err))
		}
		p.send(replies)
	}
}

func (p *Poller) send(replies []Reply) {
	for _, reply := range replies {
		var sendable tgbotapi.Chattable
		if reply.EditMessageID > 0 {
			edit := tgbotapi.NewEditMessageText(reply.ChatID, reply.EditMessageID, reply.Text)
			if markup, ok := reply.Markup.(tgbotapi.InlineKeyboardMarkup); ok {
				edit.ReplyMarkup = &markup
			}
			sendable = edit
		} else {
			message := tgbotapi.NewMessage(reply.ChatID, reply.Text)
			if reply.Markup != nil {
				message.ReplyMarkup = reply.Markup
			}
			sendable = message
		}
		if _, err := p.api.Send(sendable); err != nil {
			p.logger.Error("send failed", zap.Int64("chat_id", reply.ChatID), zap.Error(err))
		}
	}
}
