package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/llm-chess-bot/internal/domain"
)

const (
	keyPrefix = "llmchess:session:"
	keyIndex  = "llmchess:sessions"
	// 만료 후에도 reaper가 보관 처리할 수 있도록 여유를 둔다.
	ttlGrace = 5 * time.Minute
)

// RedisStore keeps sessions as JSON values so several bot processes can share them.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

// NewRedisClient parses REDIS_URL and pings the server.
func NewRedisClient(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis session store")
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func sessionKey(userID string) string { return keyPrefix + strings.TrimSpace(userID) }

func (r *RedisStore) Get(ctx context.Context, userID string) (*domain.Session, error) {
	return r.load(ctx, r.rdb, sessionKey(userID))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisStore) load(ctx context.Context, c getter, key string) (*domain.Session, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var s domain.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Put runs under WATCH so a second process cannot overwrite a newer game state.
func (r *RedisStore) Put(ctx context.Context, s *domain.Session) error {
	key := sessionKey(s.UserID)
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := s.ExpiresAt.Sub(r.now()) + ttlGrace
	if ttl < time.Second {
		ttl = time.Second
	}
	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := r.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := checkReplace(cur, s); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			pipe.SAdd(ctx, keyIndex, s.UserID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConcurrentUpdate
	}
	return err
}

func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(userID))
		pipe.SRem(ctx, keyIndex, userID)
		return nil
	})
	return err
}

func (r *RedisStore) List(ctx context.Context) ([]*domain.Session, error) {
	users, err := r.rdb.SMembers(ctx, keyIndex).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list sessions: %w", err)
	}
	out := make([]*domain.Session, 0, len(users))
	for _, u := range users {
		s, err := r.Get(ctx, u)
		if err != nil {
			return nil, err
		}
		if s == nil {
			// TTL가 지난 키는 인덱스에서도 정리
			_ = r.rdb.SRem(ctx, keyIndex, u).Err()
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// parseRedisURL accepts redis:// and rediss:// (TLS) URLs, including query options
// such as dial_timeout or pool_size.
func parseRedisURL(raw string) (*redis.Options, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}
