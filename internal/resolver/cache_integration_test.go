//go:build integration

package resolver_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lumenpay/internal/identity/models"
	"lumenpay/internal/resolver"
	"lumenpay/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *resolver.RedisCache
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = resolver.NewRedisCache(s.redis.Client, time.Minute, nil)
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestRoundTrip() {
	ctx := context.Background()

	_, ok := s.cache.Get(ctx, "alice")
	s.False(ok)

	res := resolver.Resolution{
		Address: "GTESTADDRESS",
		Handle:  models.Handle("alice"),
		OwnerID: "owner-a",
	}
	s.cache.Set(ctx, "alice", res)

	got, ok := s.cache.Get(ctx, "alice")
	s.Require().True(ok)
	s.Equal(res, got)

	// Entries are keyed per handle.
	_, ok = s.cache.Get(ctx, "bob")
	s.False(ok)
}
