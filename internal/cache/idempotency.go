package cache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// IdempotencyStore is a monotonic "seen key" set with a fixed window. It backs
// inbound event dedup, business-hash dedup, and callback semantic dedup.
type IdempotencyStore struct {
	cache *TTLCache[string, struct{}]
}

// NewIdempotencyStore builds a store with the given window and bound.
func NewIdempotencyStore(window time.Duration, maxSize int, clock Clock) (*IdempotencyStore, error) {
	if window <= 0 {
		window = 10 * time.Second
	}
	if maxSize <= 0 {
		maxSize = 2048
	}
	inner, err := NewTTLCache[string, struct{}](maxSize, window, clock)
	if err != nil {
		return nil, err
	}
	return &IdempotencyStore{cache: inner}, nil
}

// IsDuplicate reports whether key was marked within the window. It never
// extends the key's TTL.
func (s *IdempotencyStore) IsDuplicate(key string) bool {
	return s.cache.Contains(key)
}

// Mark records key as processed for the duration of the window.
func (s *IdempotencyStore) Mark(key string) {
	s.cache.Set(key, struct{}{})
}

// Remove drops key so a failed handler can allow a redelivery to retry.
func (s *IdempotencyStore) Remove(key string) {
	s.cache.Delete(key)
}

// CallbackKey derives the semantic dedup key for a card callback from the
// user, the action, and a deterministic hash of the payload.
func CallbackKey(userID, action string, payload map[string]any) string {
	return fmt.Sprintf("cb:%s:%s:%s", userID, action, payloadFingerprint(payload))
}

// BusinessKey derives the dedup key for a backend write from its locator and
// the changed field map.
func BusinessKey(tableID, recordID string, fields map[string]any) string {
	return fmt.Sprintf("biz:%s:%s:%s", tableID, recordID, payloadFingerprint(fields))
}

func payloadFingerprint(payload map[string]any) string {
	if len(payload) == 0 {
		payload = map[string]any{}
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, payload[k])
	}
	raw, err := json.Marshal(ordered)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", ordered))
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])[:12]
}
