package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hray3182/agenda/internal/agenda"
	"github.com/hray3182/agenda/internal/ai"
	"github.com/hray3182/agenda/internal/bot"
	"github.com/hray3182/agenda/internal/bot/handlers"
	"github.com/hray3182/agenda/internal/config"
	"github.com/hray3182/agenda/internal/database"
	"github.com/hray3182/agenda/internal/httpapi"
	"github.com/hray3182/agenda/internal/kv"
	"github.com/hray3182/agenda/internal/notify"
	"github.com/hray3182/agenda/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.DevMode)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer closeStore()

	// Stopped after every other component so their last saves are flushed.
	writer := kv.NewWriter(store, logger.Named("kv"))
	stopWriter := writer.Start()

	var wg sync.WaitGroup

	var api *tgbotapi.BotAPI
	if cfg.TelegramToken != "" {
		if api, err = tgbotapi.NewBotAPI(cfg.TelegramToken); err != nil {
			logger.Fatal("failed to create telegram api", zap.Error(err))
		}
	}

	var sender notify.Sender = notify.NewLogSender(logger.Named("notify"))
	if api != nil && cfg.TelegramChatID != 0 {
		sender = notify.NewTelegramSender(api, cfg.TelegramChatID)
	}
	scheduler, err := notify.NewScheduler(sender, writer, logger.Named("scheduler"), cfg.NotifyInterval)
	if err != nil {
		logger.Fatal("failed to create scheduler", zap.Error(err))
	}
	if err := scheduler.Load(ctx); err != nil {
		logger.Fatal("failed to load notifications", zap.Error(err))
	}

	tasks := repository.NewTaskStore(writer, scheduler, logger.Named("tasks"))
	patterns := repository.NewRecurrenceStore(writer, logger.Named("patterns"))
	if err := tasks.Load(ctx); err != nil {
		logger.Fatal("failed to load tasks", zap.Error(err))
	}
	if err := patterns.Load(ctx); err != nil {
		logger.Fatal("failed to load patterns", zap.Error(err))
	}
	scheduler.SetTaskLookup(tasks.Exists)

	svc := agenda.NewService(tasks, patterns, logger.Named("agenda"), agenda.Config{
		PageCapacity: cfg.PageCapacity,
		DayTaskLimit: cfg.DayTaskLimit,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Start(ctx)
	}()

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(svc, logger.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	if api != nil {
		var parser handlers.Parser
		if cfg.AIEnabled() {
			parser = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
			logger.Info("ai quick add enabled", zap.String("model", cfg.AIModel))
		} else {
			logger.Info("ai client not configured, natural language features disabled")
		}
		h := handlers.New(api, svc, parser, cfg.TelegramChatID, logger.Named("bot"))
		b := bot.New(api, h, logger.Named("bot"))

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bot stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Info("TELEGRAM_TOKEN not set, bot disabled")
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	wg.Wait()
	stopWriter()
	logger.Info("state flushed")
}

func newLogger(dev bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return logger
}

// openStore picks Redis, then Postgres, then an in-memory store.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (kv.Store, func(), error) {
	switch {
	case cfg.RedisURL != "":
		client, err := kv.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using redis storage", zap.String("prefix", cfg.RedisPrefix))
		return kv.NewRedisStore(client, cfg.RedisPrefix), func() { _ = client.Close() }, nil

	case cfg.DatabaseURI != "":
		db, err := database.New(ctx, cfg.DatabaseURI)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, logger.Named("migrate")); err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("using postgres storage")
		return kv.NewPostgresStore(db), db.Close, nil
	}

	logger.Warn("no DATABASE_URI or REDIS_URL set, state will not survive restarts")
	return kv.NewMemoryStore(), func() {}, nil
}
