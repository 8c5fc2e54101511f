package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for the redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces the bookmark hashes, so several deployments can
	// share one redis instance. Defaults to "shipstation:bookmarks".
	KeyPrefix string
}

// DefaultRedisConfig returns a config pointed at a local redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "shipstation:bookmarks",
	}
}

// RedisStore keeps bookmarks in redis hashes, one hash per stream. It is
// meant for deployments where the tap runs on ephemeral workers and a
// local state file would not survive rescheduling.
type RedisStore struct {
	client *redis.Client
	prefix string
	policy Policy
}

// NewRedisStore connects to redis and verifies the connection with a ping.
func NewRedisStore(ctx context.Context, cfg RedisConfig, policy Policy) (*RedisStore, error) {
	policy.normalize()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "shipstation:bookmarks"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}

	return &RedisStore{client: client, prefix: cfg.KeyPrefix, policy: policy}, nil
}

// Close releases the underlying redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) streamKey(stream string) string {
	return s.prefix + ":" + stream
}

// Bookmark implements Store.
func (s *RedisStore) Bookmark(ctx context.Context, stream string) (string, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.streamKey(stream)).Result()
	if err != nil {
		return "", false, fmt.Errorf("reading bookmark for %s: %w", stream, err)
	}
	v, ok := s.policy.lookup(fields)
	return v, ok, nil
}

// SetBookmark implements Store.
func (s *RedisStore) SetBookmark(ctx context.Context, stream, value string) error {
	if err := s.client.HSet(ctx, s.streamKey(stream), s.policy.BookmarkKey, value).Err(); err != nil {
		return fmt.Errorf("writing bookmark for %s: %w", stream, err)
	}
	return nil
}

// Snapshot implements Store.
func (s *RedisStore) Snapshot(ctx context.Context) (map[string]map[string]string, error) {
	keys, err := s.client.Keys(ctx, s.prefix+":*").Result()
	if err != nil {
		return nil, fmt.Errorf("listing bookmark keys: %w", err)
	}

	out := make(map[string]map[string]string, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("reading bookmark hash %s: %w", key, err)
		}
		stream := key[len(s.prefix)+1:]
		out[stream] = fields
	}
	return out, nil
}
