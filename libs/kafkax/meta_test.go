package kafkax

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestExtractEventMeta_PrefersHeaders(t *testing.T) {
	msg := kafka.Message{
		Topic: "lesson.booked.v1",
		Key:   []byte("42"),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte("abc-123")},
			{Key: "event_type", Value: []byte("lesson.cancelled.v1")},
		},
	}

	meta := ExtractEventMeta(msg)

	if meta.EventID != "abc-123" {
		t.Fatalf("event id = %q, want header value", meta.EventID)
	}
	if meta.EventType != "lesson.cancelled.v1" {
		t.Fatalf("event type = %q, want header value", meta.EventType)
	}
}

func TestExtractEventMeta_FallsBackToKeyAndTopic(t *testing.T) {
	msg := kafka.Message{
		Topic:   "lesson.booked.v1",
		Key:     []byte("42"),
		Headers: []kafka.Header{{Key: "event_id", Value: nil}},
	}

	meta := ExtractEventMeta(msg)

	if meta.EventID != "42" {
		t.Fatalf("event id = %q, want message key", meta.EventID)
	}
	if meta.EventType != "lesson.booked.v1" {
		t.Fatalf("event type = %q, want topic", meta.EventType)
	}
}

func TestSplitBrokers(t *testing.T) {
	if got := SplitBrokers(" kafka-1:9092 , ,kafka-2:9092"); len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("brokers = %v", got)
	}
	if got := SplitBrokers("  "); got != nil {
		t.Fatalf("brokers = %v, want nil for blank input", got)
	}
}
