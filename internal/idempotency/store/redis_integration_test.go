//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"notary/internal/idempotency"
	"notary/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *Redis
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = NewRedis(s.redis.Client)
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestReserveCompleteReplay() {
	_, reserved, err := s.store.Reserve(s.ctx, "k1", "digest", time.Minute)
	s.Require().NoError(err)
	s.True(reserved)

	existing, reserved, err := s.store.Reserve(s.ctx, "k1", "digest", time.Minute)
	s.Require().NoError(err)
	s.False(reserved)
	s.True(existing.Pending)

	s.Require().NoError(s.store.Complete(s.ctx, "k1", idempotency.Record{
		Digest:      "digest",
		Status:      201,
		ContentType: "application/json",
		Body:        []byte(`{"document_id":4}`),
	}, time.Minute))

	existing, reserved, err = s.store.Reserve(s.ctx, "k1", "other", time.Minute)
	s.Require().NoError(err)
	s.False(reserved)
	s.Equal("digest", existing.Digest)
	s.Equal(201, existing.Status)
	s.JSONEq(`{"document_id":4}`, string(existing.Body))
}

func (s *RedisStoreSuite) TestTTLApplied() {
	_, _, err := s.store.Reserve(s.ctx, "k2", "digest", time.Minute)
	s.Require().NoError(err)

	ttl, err := s.redis.Client.TTL(s.ctx, keyPrefix+"k2").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 50*time.Second)
}

func (s *RedisStoreSuite) TestRelease() {
	_, _, err := s.store.Reserve(s.ctx, "k3", "digest", time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Release(s.ctx, "k3"))

	_, reserved, err := s.store.Reserve(s.ctx, "k3", "digest", time.Minute)
	s.Require().NoError(err)
	s.True(reserved)
}

func (s *RedisStoreSuite) TestConcurrentReserveHasOneWinner() {
	const n = 16
	results := make(chan bool, n)
	for range n {
		go func() {
			_, reserved, err := s.store.Reserve(s.ctx, "race", "digest", time.Minute)
			s.NoError(err)
			results <- reserved
		}()
	}
	winners := 0
	for range n {
		if <-results {
			winners++
		}
	}
	s.Equal(1, winners)
}
