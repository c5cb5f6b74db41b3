package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sourcingdev/alibaba-visual-scout/internal/models"
)

// MockRedisClient is a mock for the Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewStringCmd(ctx)
	if args.Get(1) != nil {
		cmd.SetErr(args.Error(1))
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	if args.Get(0) != nil {
		cmd.SetErr(args.Error(0))
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func sampleResults() []models.ProductResult {
	return []models.ProductResult{
		{
			ID:         "ali-vis-1700000000000-0",
			Name:       "Stainless Steel Ring",
			Link:       "https://www.alibaba.com/product-detail/ring_123.html",
			ImageURL:   "https://s.alicdn.com/kf/abc.jpg",
			PriceRange: "$ 1.20",
			MOQ:        "50 Pieces",
			Source:     models.SourceVisual,
			Similarity: 0.98,
		},
	}
}

func TestImageDigest(t *testing.T) {
	// SHA-256 of "hello", stable across calls
	digest := ImageDigest([]byte("hello"))
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", digest)
	assert.Equal(t, digest, ImageDigest([]byte("hello")))
	assert.NotEqual(t, digest, ImageDigest([]byte("hello2")))
}

func TestResultCache_VisualRoundTrip(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	c := NewResultCache(mockRedis, time.Hour, slog.Default())

	digest := ImageDigest([]byte("image-bytes"))
	results := sampleResults()
	payload, err := json.Marshal(results)
	require.NoError(t, err)

	mockRedis.On("Set", ctx, "scout:visual:"+digest, mock.MatchedBy(func(v interface{}) bool {
		b, ok := v.([]byte)
		return ok && string(b) == string(payload)
	}), time.Hour).Return(nil)

	require.NoError(t, c.PutVisual(ctx, digest, results))

	mockRedis.On("Get", ctx, "scout:visual:"+digest).Return(string(payload), nil)

	got, hit, err := c.GetVisual(ctx, digest)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, results, got)

	mockRedis.AssertExpectations(t)
}

func TestResultCache_MissReturnsNoError(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	c := NewResultCache(mockRedis, time.Hour, slog.Default())

	mockRedis.On("Get", ctx, mock.Anything).Return("", redis.Nil)

	got, hit, err := c.GetVisual(ctx, "deadbeef")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}

func TestResultCache_CorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	c := NewResultCache(mockRedis, time.Hour, slog.Default())

	mockRedis.On("Get", ctx, mock.Anything).Return("{not json", nil)

	got, hit, err := c.GetVisual(ctx, "deadbeef")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}

func TestResultCache_RedisErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	c := NewResultCache(mockRedis, time.Hour, slog.Default())

	mockRedis.On("Get", ctx, mock.Anything).Return("", errors.New("connection refused"))

	_, hit, err := c.GetVisual(ctx, "deadbeef")
	require.Error(t, err)
	assert.False(t, hit)
}

func TestResultCache_TextKeysHashTheQuery(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	c := NewResultCache(mockRedis, time.Hour, slog.Default())

	wantKey := "scout:text:" + ImageDigest([]byte("gold ring"))
	mockRedis.On("Get", ctx, wantKey).Return("", redis.Nil)

	_, hit, err := c.GetText(ctx, "gold ring")
	require.NoError(t, err)
	assert.False(t, hit)

	mockRedis.AssertExpectations(t)
}
