package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarian/groupjourney/pkg/cache"
)

type memberView struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewRedisCache(client, "test"), mr
}

func TestRedisCacheSetGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, cache.InstanceKey("inst-1"), memberView{ID: "inst-1", Name: "Ada"}, cache.TTLInstance)

	var got memberView
	err := c.Get(ctx, cache.InstanceKey("inst-1"), &got)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Name)
}

func TestRedisCacheMiss(t *testing.T) {
	c, _ := newTestCache(t)
	var got memberView
	err := c.Get(context.Background(), cache.InstanceKey("nonexistent"), &got)
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestRedisCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, cache.GroupActiveJourneyKey("group-1"), memberView{ID: "j-1"}, cache.TTLGroupActiveJourney)
	mr.FastForward(cache.TTLGroupActiveJourney + time.Second)

	var got memberView
	err := c.Get(ctx, cache.GroupActiveJourneyKey("group-1"), &got)
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestRedisCacheDel(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, cache.GroupKey("group-1"), memberView{ID: "group-1"}, cache.TTLGroup)
	c.Del(ctx, cache.GroupKey("group-1"))

	var got memberView
	err := c.Get(ctx, cache.GroupKey("group-1"), &got)
	assert.ErrorIs(t, err, cache.ErrMiss)
}

func TestRedisCacheDelPattern(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, cache.GroupJourneyKey("j-1"), memberView{ID: "j-1"}, cache.TTLGroupJourney)
	c.Set(ctx, cache.GroupJourneyFullKey("j-1"), memberView{ID: "j-1-full"}, cache.TTLGroupJourneyFull)
	c.Set(ctx, cache.GroupJourneyKey("j-2"), memberView{ID: "j-2"}, cache.TTLGroupJourney)

	c.DelPattern(ctx, cache.GroupJourneyPattern("j-1"))

	var got memberView
	assert.ErrorIs(t, c.Get(ctx, cache.GroupJourneyKey("j-1"), &got), cache.ErrMiss)
	assert.ErrorIs(t, c.Get(ctx, cache.GroupJourneyFullKey("j-1"), &got), cache.ErrMiss)

	err := c.Get(ctx, cache.GroupJourneyKey("j-2"), &got)
	require.NoError(t, err)
	assert.Equal(t, "j-2", got.ID)
}

// TestDisabledCacheAlwaysMisses documents the CACHE_DISABLE fallback: every
// Get is a miss and every Set/Del/DelPattern is a silent no-op.
func TestDisabledCacheAlwaysMisses(t *testing.T) {
	var c cache.Cache = cache.Disabled{}
	ctx := context.Background()

	c.Set(ctx, "anything", memberView{ID: "x"}, time.Minute)

	var got memberView
	err := c.Get(ctx, "anything", &got)
	assert.ErrorIs(t, err, cache.ErrMiss)

	c.Del(ctx, "anything")
	c.DelPattern(ctx, "any*")
}

func TestRedisCacheUnavailableDegradesToMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewRedisCache(client, "test")
	ctx := context.Background()

	c.Set(ctx, cache.InstanceKey("inst-1"), memberView{ID: "inst-1"}, cache.TTLInstance)
	mr.Close()
	_ = client.Close()

	newClient := redis.NewClient(&redis.Options{Addr: mr.Addr(), DialTimeout: 50 * time.Millisecond})
	degraded := cache.NewRedisCache(newClient, "test")
	defer func() { _ = newClient.Close() }()

	var got memberView
	err := degraded.Get(ctx, cache.InstanceKey("inst-1"), &got)
	assert.ErrorIs(t, err, cache.ErrMiss)

	degraded.Set(ctx, cache.InstanceKey("inst-2"), memberView{ID: "inst-2"}, cache.TTLInstance)
	degraded.Del(ctx, cache.InstanceKey("inst-2"))
	degraded.DelPattern(ctx, "instance:*")
}
