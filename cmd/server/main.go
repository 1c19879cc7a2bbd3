// Command server runs the negotiation API.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/flancer/internal/config"
	"github.com/iliyamo/flancer/internal/database"
	"github.com/iliyamo/flancer/internal/handler"
	"github.com/iliyamo/flancer/internal/middleware"
	"github.com/iliyamo/flancer/internal/negotiation"
	"github.com/iliyamo/flancer/internal/queue"
	"github.com/iliyamo/flancer/internal/repository"
	"github.com/iliyamo/flancer/internal/router"
)

func main() {
	policyPath := flag.String("policy", "", "Path to negotiation policy YAML file")
	flag.Parse()

	_ = godotenv.Load() // .env is optional

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Env)
	slog.SetDefault(logger)

	policy, err := config.LoadPolicy(*policyPath)
	if err != nil {
		logger.Error("load policy", "err", err)
		os.Exit(1)
	}

	db, err := database.Open(cfg.DB)
	if err != nil {
		logger.Error("open database", "driver", cfg.DB.Driver, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		logger.Error("migrate database", "err", err)
		os.Exit(1)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and caching disabled")
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	notifications := repository.NewNotificationRepo(db)
	store := repository.NewStore(db)

	// Notification transport: the broker feeds the consumer, which writes
	// the feed; without a broker the dispatcher writes the feed directly.
	var sink queue.Sink = queue.StoreSink{Store: notifications}
	var consumerDone chan struct{}
	if cfg.NotifyTransport == "amqp" {
		pub := queue.NewPublisher(cfg.AMQPURL, logger)
		defer pub.Close()
		sink = pub

		consumerDone = make(chan struct{})
		consumer := queue.NewConsumer(cfg.AMQPURL, notifications, logger)
		go func() {
			defer close(consumerDone)
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("notification consumer stopped", "err", err)
			}
		}()
	}
	dispatcher := queue.NewDispatcher(sink, queue.DispatcherConfig{
		Workers:     policy.Notifications.Workers,
		Buffer:      policy.Notifications.Buffer,
		MaxAttempts: policy.Notifications.MaxAttempts,
		BaseBackoff: policy.Notifications.BaseBackoff,
		MaxBackoff:  policy.Notifications.MaxBackoff,
	}, logger)
	dispatcher.Start(context.Background())

	engine := negotiation.NewEngine(store, users, dispatcher,
		negotiation.WithLogger(logger),
		negotiation.WithPolicy(negotiation.Policy{
			CallTimeout:            policy.CallTimeout,
			DefaultDeadline:        policy.DefaultDeadline,
			PlaceholderDescription: policy.PlaceholderDescription,
			OfferorMayAgreeFirst:   policy.OfferorMayAgreeFirst,
		}),
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	services := handler.NewServiceHandler(store.ServiceRepo)
	negotiations := handler.NewNegotiationHandler(engine, store.NegotiationRepo)

	router.RegisterRoutes(e, &handler.ReadyHandler{DB: db, Redis: rdb})
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterPublic(e, services, cache)
	router.RegisterFreelancer(e, services, negotiations, cfg.JWTSecret, limiter)
	router.RegisterNegotiation(e, negotiations,
		handler.NewJobHandler(store.JobRepo, store.NegotiationRepo, notifications),
		handler.NewNotificationHandler(notifications),
		cfg.JWTSecret, limiter)

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "db", cfg.DB.Driver, "notify", cfg.NotifyTransport)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "err", err)
	}
	// In-flight requests are done; flush queued notifications.
	dispatcher.Stop()
	if consumerDone != nil {
		<-consumerDone
	}
	logger.Info("server exited")
}

func newLogger(env string) *slog.Logger {
	if env == "prod" || env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
