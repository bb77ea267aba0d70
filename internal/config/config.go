package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "ZAPISKI"

	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "zapiski.db"
	defaultLogLevel          = "info"
	defaultSessionCookieName = "zapiski_session"
	defaultSessionTTLMinutes = 60
	defaultCooldownSeconds   = 2
	defaultNotesPerMessage   = 5
	defaultUsersPerPage      = 10
	defaultNotifyConfigPath  = "notifications.json"
	defaultBotUsername       = "zapiski_bot"
)

// AppConfig captures runtime configuration shared by the bot and the console.
type AppConfig struct {
	BotToken          string
	OwnerID           int64
	DatabasePath      string
	LogLevel          string
	HTTPAddress       string
	SigningSecret     string
	SessionCookieName string
	SessionTTL        time.Duration
	AdminPasswordHash string
	CooldownSeconds   int
	NotesPerMessage   int
	UsersPerPage      int
	NotifyConfigPath  string
	BotUsername       string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("session.cookie_name", defaultSessionCookieName)
	configViper.SetDefault("session.ttl_minutes", defaultSessionTTLMinutes)
	configViper.SetDefault("bot.cooldown_seconds", defaultCooldownSeconds)
	configViper.SetDefault("bot.notes_per_message", defaultNotesPerMessage)
	configViper.SetDefault("bot.username", defaultBotUsername)
	configViper.SetDefault("admin.users_per_page", defaultUsersPerPage)
	configViper.SetDefault("notify.config_path", defaultNotifyConfigPath)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		BotToken:          configViper.GetString("bot.token"),
		OwnerID:           configViper.GetInt64("owner.id"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		HTTPAddress:       configViper.GetString("http.address"),
		SigningSecret:     configViper.GetString("session.signing_secret"),
		SessionCookieName: configViper.GetString("session.cookie_name"),
		SessionTTL:        time.Duration(configViper.GetInt("session.ttl_minutes")) * time.Minute,
		AdminPasswordHash: configViper.GetString("admin.password_hash"),
		CooldownSeconds:   configViper.GetInt("bot.cooldown_seconds"),
		NotesPerMessage:   configViper.GetInt("bot.notes_per_message"),
		UsersPerPage:      configViper.GetInt("admin.users_per_page"),
		NotifyConfigPath:  configViper.GetString("notify.config_path"),
		BotUsername:       configViper.GetString("bot.username"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.OwnerID <= 0 {
		return fmt.Errorf("owner.id must be a positive Telegram user id")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.CooldownSeconds < 0 {
		return fmt.Errorf("bot.cooldown_seconds must not be negative")
	}
	if c.NotesPerMessage <= 0 {
		return fmt.Errorf("bot.notes_per_message must be positive")
	}
	if c.UsersPerPage <= 0 {
		return fmt.Errorf("admin.users_per_page must be positive")
	}
	return nil
}

// ValidateBot enforces the extra configuration the Telegram front-end needs.
func (c AppConfig) ValidateBot() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("bot.token is required")
	}
	return nil
}

// ValidateConsole enforces the extra configuration the admin console needs.
func (c AppConfig) ValidateConsole() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("session.signing_secret is required")
	}
	if strings.TrimSpace(c.AdminPasswordHash) == "" {
		return fmt.Errorf("admin.password_hash is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	return nil
}
