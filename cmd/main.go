package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/tournament-engine/config"
	"github.com/Dosada05/tournament-engine/db"
	"github.com/Dosada05/tournament-engine/events"
	"github.com/Dosada05/tournament-engine/handlers"
	"github.com/Dosada05/tournament-engine/metrics"
	"github.com/Dosada05/tournament-engine/queue"
	"github.com/Dosada05/tournament-engine/repositories"
	api "github.com/Dosada05/tournament-engine/routes"
	"github.com/Dosada05/tournament-engine/scheduler"
	"github.com/Dosada05/tournament-engine/services"
	"github.com/Dosada05/tournament-engine/storage"
	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("application stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, db.DefaultPoolOptions(), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()

	if err := db.Migrate(ctx, dbConn); err != nil {
		return err
	}
	logger.Info("database migrations applied")

	clock := clockwork.NewRealClock()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
		logger.Info("redis connection established")
	}

	var broker queue.Broker
	if redisClient != nil {
		consumer, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to resolve hostname for job consumer: %w", err)
		}
		redisBroker := queue.NewRedisBroker(redisClient, clock, queue.RedisBrokerOptions{Consumer: consumer})
		requeued, err := redisBroker.RequeueInFlight(ctx)
		if err != nil {
			return err
		}
		broker = redisBroker
		logger.Info("using redis job broker", slog.String("consumer", consumer), slog.Int("requeued_in_flight", requeued))
	} else {
		memBroker := queue.NewMemoryBroker(clock, 256)
		defer memBroker.Close()
		broker = memBroker
		logger.Warn("REDIS_URL not set, jobs are kept in memory and lost on restart")
	}
	dispatcher := queue.NewDispatcher(broker, clock)

	hub := events.NewHub(logger)
	emitter := events.NewEmitter(clock, logger, m, events.NewHubPublisher(hub))
	if redisClient != nil {
		emitter.Register(events.NewRedisPublisher(redisClient, cfg.EventsChannel))
	}

	deps := services.Deps{
		Tx:             db.NewTxManager(dbConn, logger),
		Tournaments:    repositories.NewPostgresTournamentRepository(dbConn),
		Participants:   repositories.NewPostgresParticipantRepository(dbConn),
		Qualifications: repositories.NewPostgresQualificationRepository(dbConn),
		Battles:        repositories.NewPostgresBattleRepository(dbConn),
		Emitter:        emitter,
		Clock:          clock,
		Logger:         logger,
		Metrics:        m,
		Locks:          services.NewTournamentLocks(),
	}

	tournamentService := services.NewTournamentService(deps)
	battleService := services.NewBattleService(deps)
	qualification := services.NewQualificationFinalizer(deps)
	advancer := services.NewRoundAdvancer(deps)

	battleService.Subscribe(services.NewRoundCompletionDetector(dispatcher, logger))

	if cfg.R2.Complete() {
		store, err := storage.NewCloudflareR2Store(ctx, cfg.R2)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 store: %w", err)
		}
		emitter.Register(events.NewArchivePublisher(store, tournamentService, logger))
		logger.Info("bracket archiving to Cloudflare R2 enabled")
	}

	worker := queue.NewWorker(broker, logger, queue.WorkerOptions{
		Concurrency: cfg.WorkerConcurrency,
		Policy:      cfg.Retry,
		Clock:       clock,
		Metrics:     m,
	})
	worker.Register(queue.JobAdvanceRound, advancer)

	sweep, err := scheduler.New(qualification, logger, scheduler.Options{
		Interval: cfg.QualificationSweepInterval,
		Clock:    clock,
	})
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Tournament: handlers.NewTournamentHandler(tournamentService, clock),
		Battle:     handlers.NewBattleHandler(battleService),
		Admin:      handlers.NewAdminHandler(qualification, dispatcher),
		WebSocket:  handlers.NewWebSocketHandler(hub, cfg.AllowedOrigins, logger),
	}, api.Options{
		JWTSecret:      []byte(cfg.JWTSecretKey),
		AllowedOrigins: cfg.AllowedOrigins,
		Gatherer:       registry,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		sweep.Start()
		<-gctx.Done()
		return sweep.Shutdown()
	})
	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
