package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// DedupeCache suppresses identical messages sent within the TTL. Retried
// events and overlapping jobs occasionally produce the same email twice;
// the recipient should get it once.
type DedupeCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewDedupeCache(ttl time.Duration) *DedupeCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &DedupeCache{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Seen records the key and reports whether it was already present and
// unexpired.
func (c *DedupeCache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, at := range c.seen {
		if now.Sub(at) > c.ttl {
			delete(c.seen, k)
		}
	}

	if at, ok := c.seen[key]; ok && now.Sub(at) <= c.ttl {
		return true
	}
	c.seen[key] = now
	return false
}

// Fingerprint identifies a message by its visible content.
func Fingerprint(m Message) string {
	h := sha256.New()
	h.Write([]byte(m.Recipient))
	h.Write([]byte{0})
	h.Write([]byte(m.Email.Subject))
	h.Write([]byte{0})
	h.Write([]byte(m.Email.Body))
	return hex.EncodeToString(h.Sum(nil))
}
