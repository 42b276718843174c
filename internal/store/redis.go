package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RemoteStore is the per-user layout document store. The redis-backed
// implementation is the production one; the reconciler only needs this
// surface.
type RemoteStore interface {
	Load(ctx context.Context, userID string) ([]byte, error)
	Save(ctx context.Context, userID string, doc []byte) error
	Close() error
}

// RedisStore keeps one layout document per user id.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects and pings so a bad url fails at startup, not at
// first save.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	url := strings.TrimSpace(redisURL)
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func layoutKey(userID string) string {
	return fmt.Sprintf("dashboard:layout:%s", strings.TrimSpace(userID))
}

// Load returns the stored document for a user; absent is (nil, nil).
func (s *RedisStore) Load(ctx context.Context, userID string) ([]byte, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("redis store is not connected")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user id is required")
	}
	data, err := s.client.Get(ctx, layoutKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// Save overwrites the user's document. Full-document overwrite keeps
// out-of-order writes harmless; last write wins.
func (s *RedisStore) Save(ctx context.Context, userID string, doc []byte) error {
	if s == nil || s.client == nil {
		return errors.New("redis store is not connected")
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	return s.client.Set(ctx, layoutKey(userID), doc, 0).Err()
}

// Close releases the connection.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
