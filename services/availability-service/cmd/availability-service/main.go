package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/md-rashed-zaman/slotfinder/libs/config"
	"github.com/md-rashed-zaman/slotfinder/libs/db"
	"github.com/md-rashed-zaman/slotfinder/libs/grpcx"
	"github.com/md-rashed-zaman/slotfinder/libs/httpx"
	"github.com/md-rashed-zaman/slotfinder/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotfinder/libs/otel"
	"github.com/md-rashed-zaman/slotfinder/libs/runtime"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/handlers"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/outbox"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type settings struct {
	port            string
	grpcPort        string
	databaseURL     string
	redisURL        string
	kafkaBrokers    string
	cacheTTL        time.Duration
	rateLimit       int
	durationMinutes int
	numDays         int
	workers         int
	maxRangeDays    int
	outboxRetention time.Duration
}

func loadSettings() (settings, error) {
	var s settings
	var err error
	if s.port, err = config.Port("PORT", "8085"); err != nil {
		return s, err
	}
	if s.grpcPort, err = config.Port("GRPC_PORT", "9095"); err != nil {
		return s, err
	}
	s.databaseURL = config.String("DATABASE_URL", "")
	s.redisURL = config.String("REDIS_URL", "")
	s.kafkaBrokers = config.String("KAFKA_BROKERS", "")
	if s.cacheTTL, err = config.Duration("SLOTS_CACHE_TTL", 30*time.Minute); err != nil {
		return s, err
	}
	if s.rateLimit, err = config.Int("RATE_LIMIT_PER_MINUTE", 120); err != nil {
		return s, err
	}
	if s.durationMinutes, err = config.Int("DEFAULT_DURATION_MINUTES", 25); err != nil {
		return s, err
	}
	if s.numDays, err = config.Int("DEFAULT_NUM_DAYS", 5); err != nil {
		return s, err
	}
	if s.workers, err = config.Int("SWEEP_WORKERS", 4); err != nil {
		return s, err
	}
	if s.maxRangeDays, err = config.Int("MAX_RANGE_DAYS", 366); err != nil {
		return s, err
	}
	if s.outboxRetention, err = config.Duration("OUTBOX_RETENTION", 7*24*time.Hour); err != nil {
		return s, err
	}
	return s, nil
}

// newLogger loads the dotenv files first so they can set SERVICE_NAME and
// LOG_LEVEL. A dotenv failure is logged, not fatal.
func newLogger(w io.Writer, dotenv ...string) (*slog.Logger, string) {
	dotenvErr := config.LoadDotEnv(dotenv...)
	service := config.String("SERVICE_NAME", "availability-service")
	logger := runtime.NewLoggerTo(w, service, os.Getenv("LOG_LEVEL"))
	if dotenvErr != nil {
		logger.Warn("dotenv load failed", "err", dotenvErr)
	}
	return logger, service
}

func main() {
	logger, service := newLogger(os.Stdout)

	cfg, err := loadSettings()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelCfg, err := otelx.ConfigFromEnv(service)
	if err != nil {
		logger.Error("invalid otel configuration", "err", err)
		os.Exit(1)
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	var checks []runtime.ReadyCheck
	var recorder handlers.QueryRecorder

	if cfg.databaseURL != "" {
		pool, err := db.Open(ctx, cfg.databaseURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		version, err := db.Migrate(ctx, pool, storage.Migrations, storage.MigrationsDir)
		if err != nil {
			logger.Error("db migration failed", "err", err)
			os.Exit(1)
		}
		logger.Info("db migrated", "version", version)

		outboxRepo := outbox.NewRepository()
		recorder = storage.NewQueryRepository(pool, outboxRepo)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   cfg.kafkaBrokers,
			PollEvery: 2 * time.Second,
			BatchSize: 50,
			Retention: cfg.outboxRetention,
		})
		go publisher.Run(ctx)
		if cfg.kafkaBrokers != "" {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.kafkaBrokers)})
		}
	} else {
		logger.Warn("query log disabled (DATABASE_URL not set)")
	}

	var slotsCache cache.Cache
	var limiter httpx.Middleware
	if cfg.redisURL != "" {
		opts, err := redis.ParseURL(cfg.redisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "err", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()

		slotsCache = cache.NewRedisCache(rdb)
		limiter = httpx.NewRedisRateLimiter(rdb, cfg.rateLimit, time.Minute, "rl:slots").Middleware(logger, true)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	} else {
		limiter = httpx.NewRateLimiter(cfg.rateLimit, time.Minute).Middleware()
	}

	slotsHandler := handlers.NewSlotsHandler(logger, slotsCache, recorder, handlers.Defaults{
		DurationMinutes: cfg.durationMinutes,
		NumDays:         cfg.numDays,
		Workers:         cfg.workers,
		CacheTTL:        cfg.cacheTTL,
		MaxRangeDays:    cfg.maxRangeDays,
	})

	mux := runtime.NewBaseMuxWithReady(checks...)
	mux.Handle("/api/v1/slots", httpx.Chain(http.HandlerFunc(slotsHandler.Slots),
		limiter,
		httpx.WithBodyLimit(4<<20),
		httpx.WithTimeout(15*time.Second),
	))
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")
	srv := &http.Server{
		Addr:              ":" + cfg.port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := startGrpcServer(ctx, logger, cfg.grpcPort); err != nil {
		logger.Error("grpc listen failed", "err", err)
		os.Exit(1)
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

func startGrpcServer(ctx context.Context, logger *slog.Logger, port string) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	srv := grpcx.NewServer(logger)
	go srv.Serve(ctx, lis)
	return nil
}
