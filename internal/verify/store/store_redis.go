package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"medgate/internal/verify"
	"medgate/pkg/platform/sentinel"
)

const sessionKey = "medgate:verify:session"

// sessionTTL bounds how long a verified session is trusted without a fresh
// confirmation. The authority expires sessions server-side anyway; this keeps
// the store from replaying very old cookie bundles.
const sessionTTL = 12 * time.Hour

// RedisStore is the durable key-value implementation for production: the
// session survives process restarts so a solved challenge is not re-prompted
// on the next run.
type RedisStore struct {
	client *redis.Client
}

var _ SessionStore = (*RedisStore)(nil)

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Load(ctx context.Context) (verify.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return verify.Session{}, sentinel.ErrNotFound
	}
	if err != nil {
		return verify.Session{}, fmt.Errorf("load session: %w", err)
	}

	var sess verify.Session
	if err := json.Unmarshal(raw, &sess); err != nil || sess.Version != verify.SessionVersion {
		// A corrupt or outdated blob reads as absent; the caller starts fresh.
		_ = s.client.Del(ctx, sessionKey).Err()
		return verify.Session{}, sentinel.ErrNotFound
	}
	return sess, nil
}

func (s *RedisStore) Save(ctx context.Context, sess verify.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey, raw, sessionTTL).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, sessionKey).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
