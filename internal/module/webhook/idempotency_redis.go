package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradelane/payhook/internal/module/webhook/domain"
)

const idempotencyKeyPrefix = "payhook:webhook:idem:"

type redisIdempotencyValue struct {
	AppliedStatus domain.Status `json:"appliedStatus"`
	FirstSeenAt   time.Time     `json:"firstSeenAt"`
}

type redisIdempotencyStore struct {
	client redis.UniversalClient
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisIdempotencyStore creates a Redis-backed store. A zero ttl keeps
// keys forever.
func NewRedisIdempotencyStore(client redis.UniversalClient, ttl time.Duration) IdempotencyStore {
	return &redisIdempotencyStore{client: client, ttl: ttl, now: time.Now}
}

func (s *redisIdempotencyStore) key(p domain.Provider, eventID string) string {
	return idempotencyKeyPrefix + domain.IdempotencyKey(p, eventID)
}

func (s *redisIdempotencyStore) CheckAndMark(ctx context.Context, p domain.Provider, eventID string, status domain.Status) (bool, error) {
	value, err := json.Marshal(redisIdempotencyValue{AppliedStatus: status, FirstSeenAt: s.now().UTC()})
	if err != nil {
		return false, fmt.Errorf("encode idempotency value: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(p, eventID), value, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark idempotency key %s: %w", domain.IdempotencyKey(p, eventID), err)
	}
	return ok, nil
}

func (s *redisIdempotencyStore) Release(ctx context.Context, p domain.Provider, eventID string) error {
	if err := s.client.Del(ctx, s.key(p, eventID)).Err(); err != nil {
		return fmt.Errorf("release idempotency key %s: %w", domain.IdempotencyKey(p, eventID), err)
	}
	return nil
}
