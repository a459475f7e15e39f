// internal/store/redis_store.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	githubdomain "devsync-agent/internal/domain/github"
	sessiondomain "devsync-agent/internal/domain/session"
	xerrors "devsync-agent/internal/pkg/errors"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKey = "devsync:session"
	linkKey    = "devsync:link_request"

	redisOpTimeout = 5 * time.Second
)

// RedisStore keeps the durable records in Redis, for deployments where
// the agent state must survive the local filesystem.
type RedisStore struct {
	client  *redis.Client
	linkTTL time.Duration
}

func NewRedisStore(client *redis.Client, linkTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, linkTTL: linkTTL}
}

func (s *RedisStore) LoadSession() (*sessiondomain.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, sessionKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load session from redis: %w", err)
	}

	var sess sessiondomain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) SaveSession(sess *sessiondomain.Session) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	// Sessions without a known expiry persist until logout.
	var ttl time.Duration
	if sess.TokenExpiry != nil {
		ttl = time.Until(*sess.TokenExpiry)
		if ttl <= 0 {
			return fmt.Errorf("session already expired")
		}
	}

	if err := s.client.Set(ctx, sessionKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearSession() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("failed to delete session from redis: %w", err)
	}
	return nil
}

func (s *RedisStore) LoadLinkRequest() (*githubdomain.LinkRequest, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, linkKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load link request from redis: %w", err)
	}

	var req githubdomain.LinkRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link request: %w", err)
	}
	return &req, nil
}

func (s *RedisStore) SaveLinkRequest(req *githubdomain.LinkRequest) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal link request: %w", err)
	}

	if err := s.client.Set(ctx, linkKey, data, s.linkTTL).Err(); err != nil {
		return fmt.Errorf("failed to store link request in redis: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearLinkRequest() error {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	if err := s.client.Del(ctx, linkKey).Err(); err != nil {
		return fmt.Errorf("failed to delete link request from redis: %w", err)
	}
	return nil
}
