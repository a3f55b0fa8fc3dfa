package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shanmukh0504/polling-application-cicd/internal/app"
	"github.com/shanmukh0504/polling-application-cicd/internal/auth"
	"github.com/shanmukh0504/polling-application-cicd/internal/broadcast"
	"github.com/shanmukh0504/polling-application-cicd/internal/config"
	"github.com/shanmukh0504/polling-application-cicd/internal/domain"
	"github.com/shanmukh0504/polling-application-cicd/internal/logging"
	"github.com/shanmukh0504/polling-application-cicd/internal/mongo"
	"github.com/shanmukh0504/polling-application-cicd/internal/redis"
	"github.com/shanmukh0504/polling-application-cicd/internal/retry"
	"github.com/shanmukh0504/polling-application-cicd/internal/server"
	"github.com/shanmukh0504/polling-application-cicd/internal/version"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

const (
	startupTimeout  = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

func runGracefulShutdown(srv *server.Server, broadcaster *broadcast.Broadcaster) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		broadcaster.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startupPolicy(component string, clock clockwork.Clock) retry.Policy {
	p := retry.StartupPolicy
	p.Clock = clock
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Startup dependency unavailable, retrying", "component", component, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

func setupMongo(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (*mongodriver.Client, *mongodriver.Database) {
	client, err := retry.Do(ctx, startupPolicy("mongo", clock), retry.RetryTransient, func(ctx context.Context) (*mongodriver.Client, error) {
		return mongo.Connect(ctx, cfg.MongoURI)
	})
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}

	db := client.Database(cfg.MongoDatabase)
	if err := mongo.EnsureIndexes(ctx, db); err != nil {
		slog.Error("Failed to ensure MongoDB indexes", "error", err)
		os.Exit(1)
	}
	return client, db
}

// setupRedis returns nil when no REDIS_URL is configured.
func setupRedis(ctx context.Context, cfg *config.Config, clock clockwork.Clock) *redis.Client {
	if !cfg.VoteRateLimitingEnabled() {
		slog.Info("REDIS_URL not set, vote rate limiting disabled")
		return nil
	}

	client, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("Invalid Redis configuration", "error", err)
		os.Exit(1)
	}

	if err := retry.DoVoid(ctx, startupPolicy("redis", clock), retry.RetryTransient, client.Ping); err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("Redis connected")
	return client
}

func healthChecks(mongoClient *mongodriver.Client, redisClient *redis.Client) []server.HealthCheck {
	checks := []server.HealthCheck{
		{Name: "mongo", Check: func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }},
	}
	if redisClient != nil {
		checks = append(checks, server.HealthCheck{Name: "redis", Check: redisClient.Ping})
	}
	return checks
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	mongoClient, db := setupMongo(startupCtx, cfg, clock)
	redisClient := setupRedis(startupCtx, cfg, clock)
	cancelStartup()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			slog.Error("MongoDB disconnect error", "error", err)
		}
	}()
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Pass nil explicitly to avoid a typed-nil interface when Redis is off.
	var limiter domain.VoteRateLimiter
	if redisClient != nil {
		limiter = redis.NewVoteRateLimiter(redisClient, clock, cfg.VoteRateCapacity, cfg.VoteRatePerMinute)
	}

	broadcaster := broadcast.NewBroadcaster(broadcast.NewRegistry(), clock, cfg.SubscriberBufferSize)
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL, clock)

	appSvc := app.NewService(
		mongo.NewPollRepo(db),
		mongo.NewVoteRepo(db),
		mongo.NewUserRepo(db),
		broadcaster,
		limiter,
		issuer,
	)

	srv := server.NewServer(cfg, appSvc, broadcaster, issuer, healthChecks(mongoClient, redisClient), clock)

	done := runGracefulShutdown(srv, broadcaster)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		broadcaster.Stop()
		return
	}

	<-done
	slog.Info("Shutdown complete")
}
