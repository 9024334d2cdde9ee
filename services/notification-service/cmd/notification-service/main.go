package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lessondesk/lessondesk/libs/config"
	"github.com/lessondesk/lessondesk/libs/db"
	"github.com/lessondesk/lessondesk/libs/httpx"
	"github.com/lessondesk/lessondesk/libs/kafkax"
	"github.com/lessondesk/lessondesk/libs/lessons"
	otelx "github.com/lessondesk/lessondesk/libs/otel"
	"github.com/lessondesk/lessondesk/libs/outbox"
	"github.com/lessondesk/lessondesk/libs/runtime"
	"github.com/lessondesk/lessondesk/services/notification-service/internal/consumer"
	"github.com/lessondesk/lessondesk/services/notification-service/internal/dispatch"
	"github.com/lessondesk/lessondesk/services/notification-service/internal/email"
	"github.com/lessondesk/lessondesk/services/notification-service/internal/inbox"
	"github.com/lessondesk/lessondesk/services/notification-service/internal/storage"
)

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8083")
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
	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)
	outboxRepo := outbox.NewRepository(pool)
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   kafkaBrokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	smtpHost := config.String("SMTP_HOST", "mailpit")
	smtpPort := config.String("SMTP_PORT", "1025")
	smtpFrom := config.String("SMTP_FROM", "no-reply@lessondesk.pl")
	sender := email.NewSMTPSender(smtpHost, smtpPort, smtpFrom)

	builder := dispatch.Builder{
		AdminEmail: config.String("ADMIN_EMAIL", ""),
	}
	dedupe := dispatch.NewDedupeCache(config.Duration("DEDUPE_TTL", 10*time.Minute))
	dispatcher := dispatch.NewDispatcher(pool, builder, sender, notificationsRepo, outboxRepo, dedupe, logger)

	eventConsumer := consumer.New(logger, inboxRepo, consumer.Config{
		Brokers: kafkaBrokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topics: []string{
			lessons.EventLessonBooked,
			lessons.EventLessonCancelled,
			lessons.EventRoomCreate,
			lessons.EventRoomAvailable,
			lessons.EventAvailabilityDigest,
		},
	}, dispatcher.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMux(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(kafkaBrokers)},
	)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "notification")
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
