package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/atiendo/backend/internal/ai"
	"github.com/atiendo/backend/internal/channel"
	"github.com/atiendo/backend/internal/config"
	"github.com/atiendo/backend/internal/db"
	"github.com/atiendo/backend/internal/events"
	httpapi "github.com/atiendo/backend/internal/http"
	"github.com/atiendo/backend/internal/lock"
	"github.com/atiendo/backend/internal/service"
	"github.com/atiendo/backend/internal/tracking"
	"github.com/atiendo/backend/internal/triage"
	"github.com/atiendo/backend/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "atiendo-backend").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
	}
	caps, err := store.ProbeCapabilities(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("capability probe failed")
	}
	logger.Info().Bool("event_log", caps.EventLog).Bool("jobs", caps.Jobs).Msg("database capabilities")

	var sender channel.Sender = channel.LogSender{Logger: logger}
	if cfg.WhatsAppBotURL != "" {
		bot, err := channel.NewBotClient(cfg.WhatsAppBotURL, cfg.WhatsAppBotAPIKey, cfg.ChannelTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("whatsapp bot client")
		}
		sender = bot
	} else {
		logger.Warn().Msg("WHATSAPP_BOT_URL not set, outbound replies are only logged")
	}

	var assistant ai.Assistant
	if cfg.LLMEnabled() {
		a, err := ai.NewOpenAICompatAssistant(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("llm client")
		}
		assistant = a
	}

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		client := redis.NewClient(opts)
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable at startup")
		}
		locker = lock.NewRedisLocker(client)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		p, err := events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue, logger)
		if err != nil {
			logger.Error().Err(err).Msg("rabbitmq unavailable, events will not be published")
		} else {
			publisher = p
		}
	}
	defer publisher.Close()

	engine := &triage.Engine{Store: store, LLM: assistant, LLMTimeout: cfg.LLMTimeout, Logger: logger}
	pipeline := &service.Pipeline{
		Repo:      store,
		Tenants:   &service.TenantResolver{Repo: store, Logger: logger},
		Intake:    &service.Intake{Repo: store, Caps: caps, Logger: logger},
		Triage:    engine,
		Projector: &service.Projector{Repo: store, Logger: logger},
		Autopilot: &service.Autopilot{Repo: store, Sender: sender, Caps: caps, Logger: logger},
		Locker:    locker,
		ClaimTTL:  cfg.ClaimTTL,
		Events:    publisher,
		Logger:    logger,
	}

	var workers interface{ Wait() }
	if caps.Jobs {
		registry := worker.NewRegistry()
		registry.Register(service.JobCallFollowup, &service.CallFollowupHandler{Repo: store, Sender: sender, Logger: logger})
		w := &worker.Worker{
			Queue:    store,
			Registry: registry,
			Policy: worker.Policy{
				Concurrency:  cfg.WorkerConcurrency,
				PollInterval: cfg.WorkerPollInterval,
				MaxAttempts:  cfg.JobMaxAttempts,
				RetryDelay:   cfg.JobRetryDelay,
				StaleRunning: cfg.JobStaleAfter,
			},
			Logger: logger,
		}
		workers = w.Start(ctx)
	} else {
		logger.Warn().Msg("jobs table missing, background worker disabled")
	}

	router := httpapi.Router(cfg, httpapi.Deps{
		Store:    store,
		Pipeline: pipeline,
		Triage:   engine,
		Tracker:  tracking.StubTracker{},
		Caps:     caps,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout,
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
	if workers != nil {
		workers.Wait()
	}
	logger.Info().Msg("server stopped")
}
