package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/hray3182/agenda/internal/ai"
	"github.com/hray3182/agenda/internal/alarm"
	"github.com/hray3182/agenda/internal/auth"
	"github.com/hray3182/agenda/internal/bot"
	"github.com/hray3182/agenda/internal/bot/handlers"
	"github.com/hray3182/agenda/internal/cache"
	"github.com/hray3182/agenda/internal/config"
	"github.com/hray3182/agenda/internal/controller"
	"github.com/hray3182/agenda/internal/database"
	"github.com/hray3182/agenda/internal/logging"
	"github.com/hray3182/agenda/internal/middleware"
	"github.com/hray3182/agenda/internal/notify"
	"github.com/hray3182/agenda/internal/repository"
	"github.com/hray3182/agenda/internal/routes"
	"github.com/hray3182/agenda/internal/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithContext(ctx, logger)

	// Connect to database
	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Connected to database")

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	userRepo := repository.NewUserRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	errandRepo := repository.NewErrandRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	evaluator := alarm.New(cfg.AlarmTolerance, cfg.Location())

	// Notification sinks: the store is always on, the rest follow config
	sinks := []notify.Sink{notify.NewStoreSink(notificationRepo)}

	var tgAPI *tgbotapi.BotAPI
	if cfg.UseTelegram() {
		tgAPI, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return err
		}
		sinks = append(sinks, notify.NewTelegramSink(tgAPI, userRepo))
	}

	if cfg.UseKafka() {
		writer := notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Warn("Failed to close Kafka writer", "error", err)
			}
		}()
		sinks = append(sinks, notify.NewKafkaSink(writer))
	}

	dispatcher := notify.NewDispatcher(sinks...)
	logger.Info("Notification sinks ready", "sinks", dispatcher.Sinks())

	var claimer scheduler.Claimer
	if cfg.UseRedis() {
		client, err := cache.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		claimer = cache.NewClaimer(client, cache.ClaimTTL(evaluator.Tolerance(), cfg.PollInterval))
	} else {
		logger.Info("Redis not configured, alarm claims disabled")
	}

	sched := scheduler.New(appointmentRepo, dispatcher, claimer, evaluator, scheduler.Options{
		Interval:   cfg.PollInterval,
		StartDelay: 2 * time.Second,
		Logger:     logger.With("component", "scheduler"),
	})

	cleaner := scheduler.NewCleaner(notificationRepo, cfg.NotificationRetentionDays, logger.With("component", "cleanup"))
	if err := cleaner.Start(cfg.CleanupCron); err != nil {
		return err
	}
	defer cleaner.Stop()

	tokens := auth.NewTokens(cfg.JWTSecret, auth.DefaultTokenTTL)
	ctl := controller.New(controller.Deps{
		Users:         userRepo,
		Errands:       errandRepo,
		Appointments:  appointmentRepo,
		Notifications: notificationRepo,
		Tokens:        tokens,
		Evaluator:     evaluator,
		Scheduler:     sched,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      routes.Router(ctl, tokens, middleware.NewRateLimiter(cfg.LoginRatePerMinute), logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(ctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if tgAPI != nil {
		var parser handlers.AppointmentParser
		if cfg.UseAI() {
			parser = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
			logger.Info("AI client initialized", "model", cfg.AIModel)
		} else {
			logger.Info("AI client not configured, natural language features disabled")
		}

		h := handlers.New(handlers.Deps{
			API:           tgAPI,
			Users:         userRepo,
			Appointments:  appointmentRepo,
			Errands:       errandRepo,
			Notifications: notificationRepo,
			AI:            parser,
			Scheduler:     sched,
			Evaluator:     evaluator,
			Logger:        logger.With("component", "bot"),
		})
		b := bot.New(tgAPI, h, logger.With("component", "bot"))
		g.Go(func() error {
			if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
