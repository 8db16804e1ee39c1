package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/sync/errgroup"

	"ktu-bizconnect/internal/analytics"
	analytics_api "ktu-bizconnect/internal/analytics/api"
	"ktu-bizconnect/internal/auth"
	"ktu-bizconnect/internal/config"
	"ktu-bizconnect/internal/database/migrations"
	"ktu-bizconnect/internal/kafka"
	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/quicksale"
	"ktu-bizconnect/internal/quicksale/closer"
	"ktu-bizconnect/internal/quicksale/db"
	qsredis "ktu-bizconnect/internal/quicksale/redis"
	"ktu-bizconnect/internal/quicksale/sale_api"
	"ktu-bizconnect/internal/sse"
	"ktu-bizconnect/internal/storage"
)

const maxConnectAttempts = 5

func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, autoMigrate bool, log *logger.Logger) *bun.DB {
	if cfg.Driver == "sqlite" {
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.SQLitePath)
		if err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to open SQLite: %v", err))
		}
		// SQLite allows a single writer
		sqldb.SetMaxOpenConns(1)

		bunDB := bun.NewDB(sqldb, sqlitedialect.New())
		if err := db.CreateTables(ctx, bunDB); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Failed to create tables: %v", err))
		}
		log.Warn("DATABASE", fmt.Sprintf("Using SQLite at %s; bids are not row-locked across processes", cfg.SQLitePath))
		return bunDB
	}

	var sqldb *sql.DB
	var err error
	for i := 0; i < maxConnectAttempts; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxConnectAttempts))
		sqldb, err = sql.Open("postgres", cfg.PostgresDSN())
		if err == nil {
			err = sqldb.PingContext(ctx)
		}
		if err == nil {
			break
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxConnectAttempts-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxConnectAttempts, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "✅ PostgreSQL connection successful")

	if autoMigrate {
		runner := migrations.NewRunner(sqldb, log)
		if err := runner.MigrateUp(); err != nil {
			log.Fatal("MIGRATION", fmt.Sprintf("Failed to run migrations: %v", err))
		}
		if err := runner.Close(); err != nil {
			log.Warn("MIGRATION", err.Error())
		}
	}

	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("REDIS", fmt.Sprintf("✅ Redis connection successful to %s (DB: %d)", cfg.Addr, cfg.DB))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting quick sale service initialization")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", fmt.Sprintf("Invalid configuration: %v", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB := connectDatabase(ctx, cfg.Database, cfg.Migrations.AutoMigrate, log)
	defer bunDB.Close()
	store := db.New(bunDB)

	deps := quicksale.Dependencies{
		Store:     store,
		Publisher: kafka.NoopProducer{},
		Logger:    log,
		Validator: quicksale.NewValidator(cfg.QuickSale.MaxProducts, cfg.QuickSale.MaxImagesPerProduct),
	}

	var revocations auth.RevocationList = auth.NewMemoryRevocationList()
	var deadlines closer.DeadlineSource
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = connectRedis(ctx, cfg.Redis, log)
		defer redisClient.Close()

		cache := qsredis.NewRedis(redisClient, log, cfg.QuickSale.HighestBidCacheTTL)
		cache.EnableExpiryNotifications(ctx)
		deps.Cache = cache
		deps.Deadlines = cache
		deadlines = cache
		revocations = auth.NewRedisRevocationList(redisClient)
	} else {
		log.Warn("REDIS", "Redis disabled; highest-bid cache and deadline notifications are off, logouts are per instance")
	}

	emitter := sse.NewSaleEventEmitter()
	deps.Emitter = emitter

	var relay *kafka.Relay
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, kafka.TopicNames(cfg.Kafka.Topics), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics, cfg.Kafka.InstanceID, log)
		defer producer.Close()
		deps.Publisher = producer
		log.Info("KAFKA", "Kafka producer initialized successfully")

		if cfg.Kafka.RelayEvents {
			relay = kafka.NewRelay(cfg.Kafka.Brokers, cfg.Kafka.Topics, cfg.Kafka.InstanceID, emitter, log)
			defer relay.Close()
		}
	}

	uploader, err := storage.NewUploader(ctx, cfg.Storage, cfg.Server.PublicBaseURL, log)
	if err != nil {
		log.Fatal("STORAGE", fmt.Sprintf("Failed to initialise image storage: %v", err))
	}
	deps.Uploader = uploader

	authenticator := &auth.Authenticator{
		Tokens:      auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		Account:     auth.AdminAccount{Username: cfg.Auth.AdminUsername, PasswordHash: cfg.Auth.AdminPasswordHash},
		Revocations: revocations,
		Logger:      log,
	}
	if cfg.Auth.OIDCIssuer != "" {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer, cfg.Auth.OIDCClientID)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("Failed to reach identity provider: %v", err))
		}
		authenticator.OIDC = verifier
		log.Info("AUTH", fmt.Sprintf("Accepting admin tokens from %s", cfg.Auth.OIDCIssuer))
	}

	service := quicksale.NewService(deps, cfg.Storage.MaxImageBytes)

	handler := sale_api.NewHandler(service, authenticator, emitter, log)
	handler.PublicBaseURL = cfg.Server.PublicBaseURL
	handler.TickInterval = cfg.QuickSale.EventsTickInterval
	if cfg.Storage.S3Bucket == "" {
		handler.UploadsDir = cfg.Storage.LocalDir
	}
	handler.Analytics = analytics_api.NewHandler(analytics.NewService(analytics.NewDB(bunDB)), log)
	handler.HealthChecks["database"] = store.Ping
	if redisClient != nil {
		handler.HealthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP", fmt.Sprintf("🚀 Quick sale service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if relay != nil {
		g.Go(func() error { return relay.Run(gctx) })
	}

	if cfg.QuickSale.AutoFinalize {
		c := closer.New(service, deadlines, cfg.QuickSale.SweepInterval, log)
		g.Go(func() error { return c.Run(gctx) })
	} else {
		log.Warn("CLOSER", "Auto-finalize disabled; expired sales wait for an admin")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("APP", "Shutdown signal received, initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
			return err
		}
		log.Info("HTTP", "✅ Quick sale service shutdown complete")
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("APP", err.Error())
		os.Exit(1)
	}
}
