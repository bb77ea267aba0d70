package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Channel names.
const (
	ChannelEmail    = "email"
	ChannelTelegram = "telegram"
	ChannelWebhook  = "webhook"
)

// historyLimit bounds the in-memory delivery log.
const historyLimit = 100

// Record is one delivery attempt kept in the bounded history.
type Record struct {
	ID      string    `json:"id"`
	Channel string    `json:"channel"`
	Subject string    `json:"subject"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
	Error   string    `json:"error,omitempty"`
}

// MailSender abstracts gomail's DialAndSend for tests.
type MailSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// NotifierConfig describes the dependencies of a Notifier.
type NotifierConfig struct {
	SettingsPath string
	Clock        func() time.Time
	Logger       *zap.Logger
	HTTPClient   *http.Client
	// NewMailSender overrides SMTP dialing in tests.
	NewMailSender func(settings EmailSettings) MailSender
}

// Notifier fans alerts out to the configured channels and keeps a bounded
// history of attempts. Delivery failures are recorded, never escalated.
type Notifier struct {
	settingsPath string
	clock        func() time.Time
	logger       *zap.Logger
	httpClient   *http.Client
	newSender    func(settings EmailSettings) MailSender

	mu       sync.Mutex
	settings Settings
	history  []Record
}

// NewNotifier constructs the notifier and loads the settings file.
func NewNotifier(cfg NotifierConfig) (*Notifier, error) {
	settings, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	newSender := cfg.NewMailSender
	if newSender == nil {
		newSender = func(settings EmailSettings) MailSender {
			return gomail.NewDialer(settings.Host, settings.Port, settings.Username, settings.Password)
		}
	}
	return &Notifier{
		settingsPath: cfg.SettingsPath,
		clock:        clock,
		logger:       logger,
		httpClient:   httpClient,
		newSender:    newSender,
		settings:     settings,
	}, nil
}

// Settings returns a copy of the current configuration.
func (n *Notifier) Settings() Settings {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.settings
}

// UpdateSettings replaces and persists the configuration.
func (n *Notifier) UpdateSettings(settings Settings) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := SaveSettings(n.settingsPath, settings); err != nil {
		return err
	}
	n.settings = settings
	return nil
}

// History returns the delivery log, newest first.
func (n *Notifier) History() []Record {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Record, len(n.history))
	for i, record := range n.history {
		out[len(n.history)-1-i] = record
	}
	return out
}

// CriticalEvent alerts about a critical audit event.
func (n *Notifier) CriticalEvent(description string) {
	n.Broadcast("Критическое событие", description)
}

// AdminAction alerts about a sensitive administrative action.
func (n *Notifier) AdminAction(actorID int64, description string) {
	n.Broadcast("Действие администратора",
		fmt.Sprintf("Администратор %d: %s", actorID, description))
}

// SystemAlert alerts about an operational fault.
func (n *Notifier) SystemAlert(description string) {
	n.Broadcast("Системное предупреждение", description)
}

// Broadcast sends the message to every enabled channel.
func (n *Notifier) Broadcast(subject, body string) {
	settings := n.Settings()
	if settings.Email.Enabled {
		n.record(ChannelEmail, subject, body, n.sendEmail(settings.Email, subject, body))
	}
	if settings.Telegram.Enabled {
		n.record(ChannelTelegram, subject, body, n.sendTelegram(settings.Telegram, subject, body))
	}
	if settings.Webhook.Enabled {
		n.record(ChannelWebhook, subject, body, n.sendWebhook(settings.Webhook, subject, body))
	}
}

// Test sends a probe through one channel regardless of its enabled flag and
// returns the delivery error, if any.
func (n *Notifier) Test(channel string) error {
	settings := n.Settings()
	subject := "Проверка уведомлений"
	body := "Тестовое сообщение от панели администратора."

	var err error
	switch channel {
	case ChannelEmail:
		err = n.sendEmail(settings.Email, subject, body)
	case ChannelTelegram:
		err = n.sendTelegram(settings.Telegram, subject, body)
	case ChannelWebhook:
		err = n.sendWebhook(settings.Webhook, subject, body)
	default:
		return fmt.Errorf("notify: unknown channel %q", channel)
	}
	n.record(channel, subject, body, err)
	return err
}

func (n *Notifier) sendEmail(settings EmailSettings, subject, body string) error {
	if settings.Host == "" || len(settings.Recipients) == 0 {
		return fmt.Errorf("notify: email channel is not configured")
	}
	message := gomail.NewMessage()
	message.SetHeader("From", settings.From)
	message.SetHeader("To", settings.Recipients...)
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain", body)
	return n.newSender(settings).DialAndSend(message)
}

func (n *Notifier) sendTelegram(settings TelegramSettings, subject, body string) error {
	if settings.BotToken == "" || len(settings.ChatIDs) == 0 {
		return fmt.Errorf("notify: telegram channel is not configured")
	}
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", settings.BotToken)
	text := subject + "\n\n" + body
	for _, chatID := range settings.ChatIDs {
		form := url.Values{
			"chat_id": {strconv.FormatInt(chatID, 10)},
			"text":    {text},
		}
		resp, err := n.httpClient.PostForm(endpoint, form)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("notify: telegram responded %s", resp.Status)
		}
	}
	return nil
}

func (n *Notifier) sendWebhook(settings WebhookSettings, subject, body string) error {
	if settings.URL == "" {
		return fmt.Errorf("notify: webhook channel is not configured")
	}
	payload, err := json.Marshal(map[string]string{
		"subject": subject,
		"body":    body,
		"sent_at": n.clock().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	resp, err := n.httpClient.Post(settings.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook responded %s", resp.Status)
	}
	return nil
}

func (n *Notifier) record(channel, subject, body string, err error) {
	record := Record{
		ID:      uuid.NewString(),
		Channel: channel,
		Subject: subject,
		Body:    body,
		SentAt:  n.clock().UTC(),
	}
	if err != nil {
		record.Error = err.Error()
		n.logger.Warn("notification delivery failed",
			zap.String("channel", channel),
			zap.Error(err))
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.history = append(n.history, record)
	if len(n.history) > historyLimit {
		n.history = n.history[len(n.history)-historyLimit:]
	}
}
