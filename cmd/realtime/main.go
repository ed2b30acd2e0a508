package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mayanpathak/Code-Collab/internal/ai"
	"github.com/mayanpathak/Code-Collab/internal/api"
	"github.com/mayanpathak/Code-Collab/internal/auth"
	"github.com/mayanpathak/Code-Collab/internal/config"
	"github.com/mayanpathak/Code-Collab/internal/events"
	"github.com/mayanpathak/Code-Collab/internal/hub"
	"github.com/mayanpathak/Code-Collab/internal/logger"
	"github.com/mayanpathak/Code-Collab/internal/metrics"
	"github.com/mayanpathak/Code-Collab/internal/middleware"
	"github.com/mayanpathak/Code-Collab/internal/project"
	"github.com/mayanpathak/Code-Collab/internal/store"
	"github.com/mayanpathak/Code-Collab/internal/ws"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	if cfg.JWT.Secret == "" {
		log.Fatal("jwt.secret is required")
	}

	zl, err := logger.New(cfg.App.Env != "production")
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zl.Sync()

	metrics.Init()

	// Redis (message store)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancelPing()
		zl.Fatalw("redis ping failed", "addr", cfg.Redis.Addr, "err", err)
	}
	cancelPing()
	defer rdb.Close()
	zl.Infow("redis connected", "addr", cfg.Redis.Addr)

	// Mongo (project records)
	mongoCtx, cancelMongo := context.WithTimeout(context.Background(), 10*time.Second)
	mc, err := mongo.Connect(mongoCtx, options.Client().ApplyURI(cfg.Mongo.URI))
	cancelMongo()
	if err != nil {
		zl.Fatalw("mongo connect failed", "err", err)
	}
	defer mc.Disconnect(context.Background())
	zl.Infow("mongo connected", "database", cfg.Mongo.Database)

	st := store.NewRedisStore(rdb, cfg.Redis.Prefix, cfg.Store.Capacity)
	projects := project.NewRepository(mc.Database(cfg.Mongo.Database))
	rooms := hub.New()
	validator := auth.NewValidator(cfg.JWT.Secret)
	pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicMessageStored, zl)
	defer pub.Close()

	gen := ai.NewHTTPGenerator(cfg.AI.URL, cfg.AI.APIKey)
	coord := ai.NewCoordinator(st, rooms, projects, gen, pub, zl, cfg.AITimeout)

	wsSrv := ws.NewServer(rooms, st, validator, projects, coord, pub, zl, ws.Options{
		PageSize:       cfg.Store.PageSize,
		PingInterval:   cfg.PingInterval,
		WriteDeadline:  cfg.WriteDeadline,
		MaxMessageSize: cfg.WS.MaxMessageSizeBytes,
	})

	app := api.New(cfg, st, wsSrv, middleware.Auth(validator, projects), zl)

	// Prometheus scrape endpoint on its own listener.
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.MetricsPort),
		Handler: metrics.Handler(),
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zl.Warnw("metrics server error", "err", err)
		}
	}()

	errs := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		zl.Infow("starting realtime service", "addr", addr)
		errs <- app.Listen(addr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case e := <-errs:
		zl.Fatalw("server error", "err", e)
	case s := <-sig:
		zl.Infow("signal received", "signal", s.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Warnw("fiber shutdown error", "err", err)
	}
	_ = metricsSrv.Shutdown(shutdownCtx)
	zl.Info("shutdown complete")
}
