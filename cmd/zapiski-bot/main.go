package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zapiskibot/zapiski/internal/bot"
	"github.com/zapiskibot/zapiski/internal/config"
	"github.com/zapiskibot/zapiski/internal/cooldown"
	"github.com/zapiskibot/zapiski/internal/database"
	"github.com/zapiskibot/zapiski/internal/events"
	"github.com/zapiskibot/zapiski/internal/logging"
	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/referrals"
	"github.com/zapiskibot/zapiski/internal/users"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "zapiski-bot",
		Short: "Zapiski Telegram note-taking bot",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("bot-token", "", "Telegram bot token (overrides env)")
	cmd.PersistentFlags().Int64("owner-id", 0, "Telegram user id of the owner")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("cooldown-seconds", defaults.GetInt("bot.cooldown_seconds"), "Seconds between note operations per user")
	cmd.PersistentFlags().Int("notes-per-message", defaults.GetInt("bot.notes_per_message"), "Notes per listing message")
	cmd.PersistentFlags().Int("users-per-page", defaults.GetInt("admin.users_per_page"), "Users per admin panel page")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "bot.token", "bot-token")
	bindFlag(cmd, "owner.id", "owner-id")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "bot.cooldown_seconds", "cooldown-seconds")
	bindFlag(cmd, "bot.notes_per_message", "notes-per-message")
	bindFlag(cmd, "admin.users_per_page", "users-per-page")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runBot(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := appConfig.ValidateBot(); err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	resolver, err := users.NewResolver(users.ResolverConfig{
		Database: db,
		OwnerID:  appConfig.OwnerID,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	database.SeedOwner(db, resolver, logger)

	directory, err := users.NewDirectory(users.DirectoryConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	guard, err := cooldown.NewGuard(cooldown.GuardConfig{
		Database: db,
		Window:   time.Duration(appConfig.CooldownSeconds) * time.Second,
	})
	if err != nil {
		return err
	}
	recorder, err := events.NewRecorder(events.RecorderConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	ledger, err := notes.NewLedger(notes.LedgerConfig{
		Database: db,
		Guard:    guard,
		Recorder: recorder,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	referralLedger, err := referrals.NewLedger(referrals.LedgerConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	router, err := bot.NewRouter(bot.RouterConfig{
		Notes:           ledger,
		Resolver:        resolver,
		Directory:       directory,
		Referrals:       referralLedger,
		Recorder:        recorder,
		Sessions:        bot.NewMemorySessionStore(),
		Logger:          logger,
		BotUsername:     appConfig.BotUsername,
		UsersPerPage:    appConfig.UsersPerPage,
		NotesPerMessage: appConfig.NotesPerMessage,
	})
	if err != nil {
		return err
	}

	poller, err := bot.NewPoller(bot.PollerConfig{
		Token:  appConfig.BotToken,
		Router: router,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("bot starting", zap.String("username", poller.Username()))
	if err := poller.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
