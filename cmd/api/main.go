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

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/linkpulse/notifyhub/internal/config"
	"github.com/linkpulse/notifyhub/internal/domain/notification"
	appHTTP "github.com/linkpulse/notifyhub/internal/handler/http"
	"github.com/linkpulse/notifyhub/internal/handler/ws"
	"github.com/linkpulse/notifyhub/internal/pkg/cron"
	"github.com/linkpulse/notifyhub/internal/pkg/database"
	"github.com/linkpulse/notifyhub/internal/pkg/eventbus"
	"github.com/linkpulse/notifyhub/internal/pkg/jwt"
	"github.com/linkpulse/notifyhub/internal/pkg/logger"
	"github.com/linkpulse/notifyhub/internal/pkg/push"
	"github.com/linkpulse/notifyhub/internal/pkg/registry"
	"github.com/linkpulse/notifyhub/internal/repository/memory"
	"github.com/linkpulse/notifyhub/internal/repository/postgresql"
	redisRepo "github.com/linkpulse/notifyhub/internal/repository/redis"
	"github.com/linkpulse/notifyhub/internal/service/delivery"
	"github.com/linkpulse/notifyhub/internal/service/fallback"
	notificationService "github.com/linkpulse/notifyhub/internal/service/notification"
	presenceService "github.com/linkpulse/notifyhub/internal/service/presence"
)

const version = "v1.0.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Server error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(os.Stdout, logger.Options{
		App:     cfg.App.Name,
		Version: version,
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store
	var notificationRepo notification.Repository
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := database.NewPostgreSQLDB(ctx, cfg.DatabaseURL(), database.PoolConfig{
			MaxConns: cfg.Database.MaxConns,
			MinConns: cfg.Database.MinConns,
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		if err := postgresql.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		notificationRepo = postgresql.NewNotificationRepository(db)
	case config.StoreDriverMemory:
		log.Warn("Using in-memory notification store; notifications are lost on restart")
		notificationRepo = memory.NewNotificationRepository()
	}

	// Fallback pipeline
	bus := eventbus.New(eventbus.Config{
		QueueSize:      cfg.EventBus.QueueSize,
		Workers:        cfg.EventBus.Workers,
		HandlerTimeout: cfg.EventBus.HandlerTimeout,
	}, log)

	var deferredStore fallback.DeferredStore
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		queue, err := redisRepo.NewDeferredQueue(client, redisRepo.Config{
			MaxLen: cfg.Redis.DeferredMaxLen,
			TTL:    cfg.Redis.DeferredTTL,
		}, log)
		if err != nil {
			return fmt.Errorf("create deferred queue: %w", err)
		}
		deferredStore = queue
	}

	var pushSender fallback.PushSender
	if cfg.Firebase.CredentialsPath != "" {
		sender, err := push.NewFCMSender(ctx, cfg.Firebase.CredentialsPath, log)
		if err != nil {
			return fmt.Errorf("create fcm sender: %w", err)
		}
		pushSender = sender
	}

	// Realtime core
	JWTService := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.WSTokenExpiration)
	connRegistry := registry.New()
	deliveryRouter := delivery.NewRouter(connRegistry, log)

	consumer := fallback.NewConsumer(log, fallback.Config{
		Store:       deferredStore,
		Pusher:      pushSender,
		Directory:   connRegistry,
		Live:        deliveryRouter,
		ReplayLimit: cfg.Redis.ReplayLimit,
	})
	consumer.Register(bus)

	notifService := notificationService.NewNotificationService(notificationRepo, deliveryRouter, bus, log, notificationService.Config{
		LockStripes: cfg.Realtime.LockStripes,
	})
	gateway := presenceService.NewGateway(connRegistry, deliveryRouter, JWTService, notifService, log, presenceService.Config{
		StaleAfter:     cfg.Realtime.StaleAfter,
		AdmissionHooks: []presenceService.AdmissionHook{consumer.Replay},
	})

	// Jobs
	scheduler := cron.NewScheduler(log)
	cron.NewPresenceJobs(gateway, cfg.Realtime.SweepInterval, cfg.Realtime.StatsInterval).RegisterJobs(scheduler)
	cron.NewEventBusJobs(bus, cfg.EventBus.QueueSize, cfg.Realtime.StatsInterval, log).RegisterJobs(scheduler)

	// HTTP
	wsHandler := ws.NewHandler(gateway, ws.Config{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		SendBuffer:     cfg.Realtime.SendBuffer,
		WriteWait:      cfg.Realtime.WriteWait,
		PongWait:       cfg.Realtime.PongWait,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
	}, log)

	router := appHTTP.NewRouter(
		appHTTP.RouterConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			InternalAPIKey: cfg.App.InternalAPIKey,
		},
		log,
		JWTService,
		appHTTP.NewNotificationHandler(notifService, JWTService),
		appHTTP.NewPresenceHandler(gateway),
		wsHandler,
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Server running", "addr", server.Addr, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		// Hijacked sockets are not tracked by the server; close them explicitly.
		gateway.Shutdown(shutdownCtx)
		bus.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped")
	return nil
}
