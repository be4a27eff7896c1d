package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/banking/fraud-engine/internal/config"
	"github.com/banking/fraud-engine/internal/engine"
	"github.com/banking/fraud-engine/internal/events"
	"github.com/banking/fraud-engine/internal/patterns"
	"github.com/banking/fraud-engine/internal/pkg/logger"
	"github.com/banking/fraud-engine/internal/pkg/telemetry"
	"github.com/banking/fraud-engine/internal/server"
	"github.com/banking/fraud-engine/internal/store"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize Logger
	log, err := logger.New(cfg.Telemetry.ServiceName, cfg.Telemetry.Environment, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Telemetry
	shutdownTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal("failed to initialize telemetry", logger.ErrorField(err))
	}

	// 4. PostgreSQL pool
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User, cfg.Database.Password,
		cfg.Database.Host, cfg.Database.Port,
		cfg.Database.Database, cfg.Database.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		log.Fatal("invalid database configuration", logger.ErrorField(err))
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		log.Fatal("failed to connect to postgres", logger.ErrorField(err))
	}
	defer pool.Close()

	// 5. Redis client for the pattern catalog cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	defer redisClient.Close()

	// 6. Fraud pattern catalog: postgres source behind the redis cache,
	// refreshed in the background
	catalog := patterns.NewCatalog(log)
	catalogSource := patterns.NewRedisCache(
		redisClient,
		patterns.NewPostgresSource(pool),
		cfg.Redis.PatternCacheTTL,
		log,
	)
	if err := catalog.Refresh(ctx, catalogSource); err != nil {
		log.Warn("initial pattern catalog load failed, starting empty", logger.ErrorField(err))
	}
	go catalog.RunRefresh(ctx, catalogSource, cfg.Engine.PatternRefreshInterval)

	// 7. Kafka decision event publisher
	publisher, err := events.NewPublisher(cfg.Kafka, log)
	if err != nil {
		log.Fatal("failed to connect kafka producer", logger.ErrorField(err))
	}
	defer publisher.Close()

	// 8. Signal store + decision engine
	signals := store.NewPostgresStore(pool, catalog, log)
	eng := engine.New(signals, &cfg.Engine, log, publisher)

	// 9. HTTP server
	srv := server.New(eng, cfg, log)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server stopped unexpectedly", logger.ErrorField(err))
		}
	}()
	log.Info("server started", logger.IntField("port", cfg.Server.Port))

	// 10. Wait for shutdown signal, then drain
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", logger.ErrorField(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing shutdown failed", logger.ErrorField(err))
	}

	log.Info("server exited")
}
