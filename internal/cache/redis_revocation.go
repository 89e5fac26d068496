// Package cache はRedisを使用した揮発性ストアを提供する。
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hitoshi/connectin/internal/model"
	"github.com/hitoshi/connectin/internal/repository"
)

const revokedKeyPrefix = "revoked:"

// NewRedisClient はURLからRedisクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// RedisRevocationStore はRedisを使用した失効トークンストア。
// キーはトークンの有効期限で自動的に消えるため、クリーンアップは不要。
type RedisRevocationStore struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisRevocationStore はRedisRevocationStoreを生成する。
func NewRedisRevocationStore(client redis.Cmdable) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, now: time.Now}
}

func revokedKey(jti string) string {
	return revokedKeyPrefix + jti
}

// Revoke はjtiを有効期限までのTTL付きで記録する。既に期限切れのトークンは記録しない。
func (s *RedisRevocationStore) Revoke(ctx context.Context, token *model.RevokedToken) error {
	ttl := token.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, revokedKey(token.JTI), token.UserID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked はjtiが失効済みかを返す。
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check revoked token: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ repository.RevokedTokenRepository = (*RedisRevocationStore)(nil)
