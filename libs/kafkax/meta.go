package kafkax

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// EventMeta identifies a consumed event for inbox deduplication. The outbox
// publisher stamps event_id and event_type headers on every message; older
// producers without them fall back to the message key and topic.
type EventMeta struct {
	EventID   string
	EventType string
}

func ExtractEventMeta(msg kafka.Message) EventMeta {
	meta := EventMeta{
		EventID:   string(msg.Key),
		EventType: msg.Topic,
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case "event_id":
			if len(h.Value) > 0 {
				meta.EventID = string(h.Value)
			}
		case "event_type":
			if len(h.Value) > 0 {
				meta.EventType = string(h.Value)
			}
		}
	}
	return meta
}

// SplitBrokers parses the comma-separated KAFKA_BROKERS form into a broker
// list, dropping blanks.
func SplitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	if len(brokers) == 0 {
		return nil
	}
	return brokers
}
