package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"gymtalk/config"
	"gymtalk/database"
	"gymtalk/delivery"
	"gymtalk/directory"
	"gymtalk/handlers"
	"gymtalk/logger"
	"gymtalk/metrics"
	"gymtalk/middleware"
	"gymtalk/notify"
	"gymtalk/policy"
	"gymtalk/presence"
	"gymtalk/routes"
	"gymtalk/services"
	"gymtalk/store"
	"gymtalk/threads"
	"gymtalk/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gymtalk:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// users and trainer assignments live in MongoDB whatever the message store
	client, err := database.Connect(ctx, cfg.MongoURI, log)
	if err != nil {
		return err
	}
	defer database.Disconnect(client, log)
	db := client.Database(cfg.MongoDatabase)

	messages, err := openStore(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := messages.Close(); err != nil {
			log.Warn("message store close failed", zap.Error(err))
		}
	}()

	metrics.Register(prometheus.DefaultRegisterer)

	dir := directory.NewCached(directory.NewMongoDirectory(db), cfg.DirectoryCacheTTL)
	registry := presence.NewRegistry()
	router := delivery.NewRouter(registry, log, cfg.PushTimeout)
	messenger := services.NewMessenger(
		messages,
		policy.NewPolicy(messages, dir),
		threads.NewAggregator(messages, dir, log),
		router,
		log,
	)
	dispatcher := notify.NewDispatcher(dir, router, log)
	ws := websocket.NewManager(registry, cfg.JWTSecret, cfg.ChannelBuffer, log)

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit, time.Minute)
	go pruneLoop(ctx, limiter, dir)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		sub := notify.NewSubscriber(rdb, cfg.EventsChannel, dispatcher, log)
		go sub.Run(ctx)
	}

	engine := routes.SetupRouter(handlers.New(messenger, dispatcher, log), ws, routes.Options{
		JWTSecret:     cfg.JWTSecret,
		InternalToken: cfg.InternalToken,
		CORSOrigins:   cfg.CORSOrigins,
		RateLimit:     limiter,
	}, log)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	log.Info("shutting down")
	ws.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, db *mongo.Database, log *zap.Logger) (store.MessageStore, error) {
	switch cfg.StoreDriver {
	case "badger":
		bdb, err := store.OpenBadger(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		return store.NewBadgerStore(bdb, log, nil), nil
	default:
		s := store.NewMongoStore(db, log, nil)
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

type pruner interface {
	Prune()
}

func pruneLoop(ctx context.Context, targets ...pruner) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, t := range targets {
				t.Prune()
			}
		}
	}
}
