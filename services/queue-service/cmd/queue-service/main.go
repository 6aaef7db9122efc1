package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/eutonafila/shopqueue/libs/config"
	"github.com/eutonafila/shopqueue/libs/db"
	"github.com/eutonafila/shopqueue/libs/httpx"
	"github.com/eutonafila/shopqueue/libs/kafkax"
	"github.com/eutonafila/shopqueue/libs/keylock"
	otelx "github.com/eutonafila/shopqueue/libs/otel"
	"github.com/eutonafila/shopqueue/libs/runtime"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/consumer"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/engine"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/handlers"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/inbox"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/outbox"
	"github.com/eutonafila/shopqueue/services/queue-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	dotenv := runtime.LoadDotenv()
	service := config.String("SERVICE_NAME", "queue-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)
	logger.Info("configuration loaded", "dotenv", dotenv)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.PoolConfig{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(config.String("KAFKA_BROKERS", ""))},
	}

	var locker keylock.Locker = keylock.NewLocal()
	var rateLimitMW httpx.Middleware
	limitPerMinute := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()

		locker = keylock.NewRedis(rdb, logger, keylock.RedisConfig{
			Prefix: service + ":lock",
			TTL:    time.Duration(config.Int("LOCK_TTL_SECONDS", 10)) * time.Second,
		})
		rl := httpx.NewRedisRateLimiter(rdb, limitPerMinute, time.Minute, config.String("RATE_LIMIT_PREFIX", "rl"))
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("redis enabled", "redis_addr", addr, "per_minute", limitPerMinute)
	} else {
		rateLimitMW = httpx.NewRateLimiter(limitPerMinute, time.Minute).Middleware()
		logger.Info("redis disabled; using in-process locks and rate limiting", "per_minute", limitPerMinute)
	}

	outboxRepo := outbox.NewRepository(pool)
	repo := storage.NewRepository(pool, outboxRepo)
	scheduler := engine.New(repo, logger, engine.WithLocker(locker))

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	inboxRepo := inbox.NewRepository(pool)
	startConsumer(ctx, logger, inboxRepo, scheduler)
	go pruneInbox(ctx, logger, inboxRepo, time.Duration(config.Int("INBOX_RETENTION_HOURS", 168))*time.Hour)

	if err := startGrpcServer(ctx, logger, scheduler); err != nil {
		logger.Error("grpc server init failed", "err", err)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handlers.NewQueueHandler(scheduler, logger).Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS"),
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 10))*time.Second),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "queue")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// startConsumer renumbers queues when ticket events arrive from other instances.
func startConsumer(ctx context.Context, logger *slog.Logger, inboxRepo *inbox.Repository, r consumer.Recalculator) {
	brokers := config.String("KAFKA_BROKERS", "")
	topic := strings.TrimSpace(config.String("KAFKA_CONSUME_TOPIC", outbox.EventTicketStatusChanged))
	if brokers == "" || topic == "" {
		logger.Warn("ticket event consumer disabled")
		return
	}
	eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "queue-service"),
		Topic:   topic,
	}, consumer.RecalculateOnTicketEvent(logger, r))
	go eventConsumer.Run(ctx)
}

func pruneInbox(ctx context.Context, logger *slog.Logger, repo *inbox.Repository, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := repo.Prune(ctx, retention)
			if err != nil {
				logger.Error("inbox prune failed", "err", err)
				continue
			}
			if n > 0 {
				logger.Info("inbox pruned", "deleted", n)
			}
		}
	}
}
