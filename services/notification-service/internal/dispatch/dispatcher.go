package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lessondesk/lessondesk/libs/db"
	"github.com/lessondesk/lessondesk/libs/outbox"
	"github.com/lessondesk/lessondesk/services/notification-service/internal/email"
	"github.com/lessondesk/lessondesk/services/notification-service/internal/storage"
)

// Dispatcher delivers the messages built from a lesson event, writes the
// audit row for each, and emits notification.sent/failed events.
type Dispatcher struct {
	pool    *db.Pool
	builder Builder
	sender  email.Sender
	repo    *storage.Repository
	outbox  *outbox.Repository
	dedupe  *DedupeCache
	logger  *slog.Logger
}

func NewDispatcher(pool *db.Pool, builder Builder, sender email.Sender, repo *storage.Repository, outboxRepo *outbox.Repository, dedupe *DedupeCache, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		pool:    pool,
		builder: builder,
		sender:  sender,
		repo:    repo,
		outbox:  outboxRepo,
		dedupe:  dedupe,
		logger:  logger,
	}
}

// Handle processes one consumed Kafka message. Send failures are recorded,
// not returned; a broken mailbox must not stall the whole topic.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	messages := d.builder.Build(msg.Topic, msg.Value)
	if len(messages) == 0 {
		d.logger.Info("event produced no messages", "topic", msg.Topic)
		return nil
	}

	for _, m := range messages {
		if d.dedupe.Seen(Fingerprint(m)) {
			d.logger.Info("duplicate message suppressed", "type", m.EventType, "recipient", m.Recipient)
			if err := d.audit(ctx, m, storage.StatusSuppressed); err != nil {
				return err
			}
			continue
		}

		status := storage.StatusSent
		var sendErr error
		if sendErr = d.sender.Send(m.Email); sendErr != nil {
			status = storage.StatusFailed
			d.logger.Error("email send failed", "err", sendErr, "recipient", m.Recipient, "type", m.EventType)
		}

		if err := d.audit(ctx, m, status); err != nil {
			return err
		}
		if err := d.enqueueResult(ctx, m, status, sendErr); err != nil {
			return err
		}

		d.logger.Info("notification processed", "type", m.EventType, "recipient_type", m.RecipientType, "status", status)
	}
	return nil
}

func (d *Dispatcher) audit(ctx context.Context, m Message, status string) error {
	return d.repo.Insert(ctx, storage.Notification{
		Type:          m.EventType,
		LessonID:      m.LessonID,
		RecipientType: m.RecipientType,
		Recipient:     m.Recipient,
		Subject:       m.Email.Subject,
		Status:        status,
	})
}

func (d *Dispatcher) enqueueResult(ctx context.Context, m Message, status string, sendErr error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	fields := map[string]any{
		"type":      m.EventType,
		"lesson_id": m.LessonID,
		"recipient": m.Recipient,
	}
	eventType := "notification.sent.v1"
	if status == storage.StatusFailed {
		eventType = "notification.failed.v1"
		fields["error_reason"] = sendErr.Error()
		fields["failed_at"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		fields["sent_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	if err := d.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   strconv.FormatInt(m.LessonID, 10),
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
