package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jo-hoe/ytscribe/internal/common"
)

// RedisConfig holds connection settings for the Redis backed store.
type RedisConfig struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// RedisStore keeps one hash per video URL.
type RedisStore struct {
	rdb    redis.Cmdable
	closer func() error
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps rdb. A zero ttl keeps entries forever.
func NewRedisStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = common.RedisKeyPrefix
	}
	s := &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
	if c, ok := rdb.(interface{ Close() error }); ok {
		s.closer = c.Close
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	res, err := s.rdb.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(res) == 0 {
		return Entry{}, false, nil
	}
	e, ok := entryFromHash(res)
	return e, ok, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, entry Entry) error {
	hk := s.key(key)

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, hk)
	pipe.HSet(ctx, hk, entryToHash(entry))
	if s.ttl > 0 {
		pipe.Expire(ctx, hk, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *RedisStore) key(videoURL string) string {
	return s.prefix + videoURL
}

func entryToHash(e Entry) map[string]any {
	cached := e.CachedDate
	if cached.IsZero() {
		cached = time.Now()
	}
	return map[string]any{
		"transcript":  e.Transcript,
		"title":       e.Title,
		"cached_date": cached.UTC().Format(time.RFC3339Nano),
	}
}

// entryFromHash rebuilds an Entry; a hash without a transcript field is
// treated as a miss.
func entryFromHash(h map[string]string) (Entry, bool) {
	transcript, ok := h["transcript"]
	if !ok {
		return Entry{}, false
	}
	e := Entry{
		Transcript: transcript,
		Title:      h["title"],
	}
	if v := h["cached_date"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			e.CachedDate = t
		}
	}
	return e, true
}
