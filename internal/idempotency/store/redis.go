package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"notary/internal/idempotency"
)

const keyPrefix = "notary:idempotency:"

// reserveAttempts bounds the retry when a key expires between SETNX and GET.
const reserveAttempts = 3

// Redis stores idempotency records so replicas share them.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Reserve(ctx context.Context, key, digest string, ttl time.Duration) (*idempotency.Record, bool, error) {
	pending, err := json.Marshal(idempotency.Record{Digest: digest, Pending: true})
	if err != nil {
		return nil, false, fmt.Errorf("marshal idempotency record: %w", err)
	}

	for range reserveAttempts {
		ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if ok {
			return nil, true, nil
		}

		raw, err := s.client.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("load idempotency record: %w", err)
		}
		var rec idempotency.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, false, fmt.Errorf("%w: %v", idempotency.ErrInvalidRecord, err)
		}
		return &rec, false, nil
	}
	return nil, false, fmt.Errorf("reserve idempotency key: key churned %d times", reserveAttempts)
}

func (s *Redis) Complete(ctx context.Context, key string, rec idempotency.Record, ttl time.Duration) error {
	rec.Pending = false
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal idempotency record: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency record: %w", err)
	}
	return nil
}

func (s *Redis) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}
