// Command server runs the clinic HTTP API and the reminder scheduler.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stomacrm/clinic/internal/api"
	"github.com/stomacrm/clinic/internal/api/handler"
	"github.com/stomacrm/clinic/internal/core/service"
	mongodb "github.com/stomacrm/clinic/internal/infrastructure/db/mongo"
	redisdb "github.com/stomacrm/clinic/internal/infrastructure/db/redis"
	"github.com/stomacrm/clinic/internal/infrastructure/notify"
	"github.com/stomacrm/clinic/internal/infrastructure/queue"
	"github.com/stomacrm/clinic/internal/pkg/config"
	"github.com/stomacrm/clinic/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "clinic-api",
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer rdb.Close()

	accounts := mongodb.NewAccountRepository(db)
	profiles := mongodb.NewProfileRepository(db)
	reminders := mongodb.NewReminderRepository(db)
	if err := mongodb.EnsureIndexes(ctx, accounts, profiles, reminders); err != nil {
		return err
	}

	sessions := redisdb.NewSessionStore(rdb)
	sessionEvents := redisdb.NewSessionEvents(rdb, log)

	// --- Services ---
	authService := service.NewAuthService(accounts, profiles, sessions, sessionEvents, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log)
	adminService := service.NewAdminService(profiles, accounts, authService, cfg.Auth.RecoveryKey, log)

	dispatcher := queue.NewDispatcher(cfg.Reminder.Workers, log)
	dispatcher.Start(ctx)
	reminderService := service.NewReminderService(reminders, notify.NewConsoleSender(log), dispatcher, cfg.Reminder.Batch, log)

	go queue.NewScheduler(reminderService, cfg.Reminder.Interval, log).Run(ctx)

	if cfg.Auth.RecoveryKey == "" {
		log.Warn().Msg("ADMIN_RECOVERY_KEY is not set, admin recovery is disabled")
	}

	// --- HTTP ---
	e := api.NewRouter(api.Deps{
		Accounts:  authService,
		Admin:     adminService,
		Reminders: reminderService,
		Profiles:  profiles,
		Events:    sessionEvents,
		Checks: map[string]handler.DependencyCheck{
			"mongodb": handler.MongoCheck(db),
			"redis":   handler.RedisCheck(rdb),
		},
		Log: log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(sctx)
}
