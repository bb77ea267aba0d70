package notify

import (
	"encoding/json"
	"errors"
	"os"
)

// EmailSettings configures the SMTP channel.
type EmailSettings struct {
	Enabled    bool     `json:"enabled"`
	Host       string   `json:"host"`
	Port       int      `json:"port"`
	Username   string   `json:"username"`
	Password   string   `json:"password"`
	From       string   `json:"from"`
	Recipients []string `json:"recipients"`
}

// TelegramSettings configures the direct-message channel. Chat ids usually
// point at the owner and admins.
type TelegramSettings struct {
	Enabled  bool    `json:"enabled"`
	BotToken string  `json:"bot_token"`
	ChatIDs  []int64 `json:"chat_ids"`
}

// WebhookSettings configures the HTTP POST channel.
type WebhookSettings struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// Settings is the on-disk notification configuration.
type Settings struct {
	Email    EmailSettings    `json:"email"`
	Telegram TelegramSettings `json:"telegram"`
	Webhook  WebhookSettings  `json:"webhook"`
}

// DefaultSettings returns the configuration used when no file exists yet:
// every channel off.
func DefaultSettings() Settings {
	return Settings{
		Email: EmailSettings{Port: 587},
	}
}

// LoadSettings reads the JSON settings file, falling back to defaults when
// the file is absent.
func LoadSettings(path string) (Settings, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	settings := DefaultSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// SaveSettings writes the settings file with indentation so operators can
// edit it by hand.
func SaveSettings(path string, settings Settings) error {
	raw, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
