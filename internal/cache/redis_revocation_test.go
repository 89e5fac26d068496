package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/connectin/internal/model"
)

func newTestStore(t *testing.T) *RedisRevocationStore {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}
	client, err := NewRedisClient(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisRevocationStore(client)
}

func TestRevokedKey(t *testing.T) {
	assert.Equal(t, "revoked:abc", revokedKey("abc"))
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}

func TestRedisRevocationStore_RevokeAndCheck(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	jti := uuid.New().String()

	revoked, err := store.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	err = store.Revoke(ctx, &model.RevokedToken{JTI: jti, UserID: "user-1", ExpiresAt: time.Now().Add(time.Minute)})
	require.NoError(t, err)

	revoked, err = store.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := store.client.TTL(ctx, revokedKey(jti)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisRevocationStore_ExpiredTokenIsNotStored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	jti := uuid.New().String()

	err := store.Revoke(ctx, &model.RevokedToken{JTI: jti, UserID: "user-1", ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)

	revoked, err := store.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)
}
