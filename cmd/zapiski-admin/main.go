package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zapiskibot/zapiski/internal/analytics"
	"github.com/zapiskibot/zapiski/internal/auth"
	"github.com/zapiskibot/zapiski/internal/config"
	"github.com/zapiskibot/zapiski/internal/database"
	"github.com/zapiskibot/zapiski/internal/events"
	"github.com/zapiskibot/zapiski/internal/logging"
	"github.com/zapiskibot/zapiski/internal/notes"
	"github.com/zapiskibot/zapiski/internal/notify"
	"github.com/zapiskibot/zapiski/internal/referrals"
	"github.com/zapiskibot/zapiski/internal/server"
	"github.com/zapiskibot/zapiski/internal/users"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "zapiski-admin",
		Short: "Zapiski administration console",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
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
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().Int64("owner-id", 0, "Telegram user id of the owner")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("admin-password-hash", "", "bcrypt hash of the console password (overrides env)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session TTL in minutes")
	cmd.PersistentFlags().String("notify-config", defaults.GetString("notify.config_path"), "Notification settings file")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "owner.id", "owner-id")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "admin.password_hash", "admin-password-hash")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "notify.config_path", "notify-config")
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

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if err := appConfig.ValidateConsole(); err != nil {
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
	recorder, err := events.NewRecorder(events.RecorderConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	ledger, err := notes.NewLedger(notes.LedgerConfig{
		Database: db,
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
	analyticsService, err := analytics.NewService(analytics.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	notifier, err := notify.NewNotifier(notify.NotifierConfig{
		SettingsPath: appConfig.NotifyConfigPath,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	sessions := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		PasswordHash:  appConfig.AdminPasswordHash,
		SessionTTL:    appConfig.SessionTTL,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:          sessions,
		Notes:             ledger,
		Resolver:          resolver,
		Directory:         directory,
		Referrals:         referralLedger,
		Recorder:          recorder,
		Analytics:         analyticsService,
		Notifier:          notifier,
		Logger:            logger,
		SessionCookieName: appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("console starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
