package dispatch

import (
	"testing"
	"time"

	"github.com/lessondesk/lessondesk/services/notification-service/internal/email"
)

func TestDedupeCache_SuppressesWithinTTL(t *testing.T) {
	now := time.Now()
	c := NewDedupeCache(10 * time.Minute)
	c.now = func() time.Time { return now }

	if c.Seen("k") {
		t.Fatal("first sighting reported as seen")
	}
	if !c.Seen("k") {
		t.Fatal("second sighting within TTL not suppressed")
	}

	now = now.Add(11 * time.Minute)
	if c.Seen("k") {
		t.Fatal("sighting after TTL still suppressed")
	}
}

func TestFingerprint_DistinguishesContent(t *testing.T) {
	base := Message{
		Recipient: "jan@example.com",
		Email:     email.Message{Subject: "Lekcja odwołana", Body: "a"},
	}
	same := base
	other := base
	other.Email.Body = "b"

	if Fingerprint(base) != Fingerprint(same) {
		t.Fatal("identical messages got different fingerprints")
	}
	if Fingerprint(base) == Fingerprint(other) {
		t.Fatal("different bodies got the same fingerprint")
	}
}
