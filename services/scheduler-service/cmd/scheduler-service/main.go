package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lessondesk/lessondesk/libs/config"
	"github.com/lessondesk/lessondesk/libs/db"
	"github.com/lessondesk/lessondesk/libs/httpx"
	"github.com/lessondesk/lessondesk/libs/kafkax"
	otelx "github.com/lessondesk/lessondesk/libs/otel"
	"github.com/lessondesk/lessondesk/libs/outbox"
	"github.com/lessondesk/lessondesk/libs/runtime"
	"github.com/lessondesk/lessondesk/services/scheduler-service/internal/jobs"
	"github.com/lessondesk/lessondesk/services/scheduler-service/internal/storage"
)

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8082")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

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
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	kafkaBrokers := config.String("KAFKA_BROKERS", "")
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	repo := storage.NewRepository(pool)

	statusChecker := jobs.NewStatusChecker(pool, repo, logger, jobs.StatusCheckerConfig{
		Interval: config.Duration("STATUS_CHECK_INTERVAL", 8*time.Minute),
		Grace:    config.Duration("AUTO_COMPLETE_GRACE", 2*time.Hour),
	})
	go statusChecker.Run(ctx)

	roomNotifier := jobs.NewRoomNotifier(pool, repo, outboxRepo, logger, jobs.RoomNotifierConfig{
		Interval:     config.Duration("ROOM_NOTIFY_INTERVAL", 1*time.Minute),
		Window:       config.Duration("ROOM_JOIN_WINDOW", 15*time.Minute),
		DashboardURL: config.String("DASHBOARD_URL", "https://app.lessondesk.pl"),
	})
	go roomNotifier.Run(ctx)

	digest := jobs.NewAvailabilityDigest(pool, repo, outboxRepo, logger, jobs.AvailabilityDigestConfig{
		Interval:       config.Duration("DIGEST_CHECK_INTERVAL", 1*time.Hour),
		ThresholdHours: float64(config.Int("DIGEST_LOW_HOURS", 10)),
	})
	go digest.Run(ctx)

	var rdb *redis.Client
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       config.Int("REDIS_DB", 0),
		})
		defer func() { _ = rdb.Close() }()
	} else {
		logger.Warn("REDIS_ADDR not set, mass logout only revokes refresh tokens")
	}
	reaper := jobs.NewSessionReaper(pool, repo, rdb, logger, config.Duration("LOGOUT_CHECK_INTERVAL", 15*time.Minute))
	go reaper.Run(ctx)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "scheduler")
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
