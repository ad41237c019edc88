package templates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisSource reads prompt templates from Redis so operators can edit them
// without a redeploy.
type RedisSource struct {
	client *redis.Client
	prefix string
	log    *logrus.Logger
}

// NewRedisSource creates a Redis-backed template source.
func NewRedisSource(client *redis.Client, prefix string, log *logrus.Logger) *RedisSource {
	if prefix == "" {
		prefix = "stratforge:template:"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisSource{client: client, prefix: prefix, log: log}
}

// GetTemplate returns the template stored under id. A missing key maps to
// ErrNotFound; any other Redis failure is surfaced as-is.
func (s *RedisSource) GetTemplate(ctx context.Context, id string) (string, error) {
	text, err := s.client.Get(ctx, s.prefix+id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.log.WithField("template_id", id).Debug("Template miss in Redis")
			return "", ErrNotFound
		}
		s.log.WithError(err).WithField("template_id", id).Warn("Failed to get template from Redis")
		return "", fmt.Errorf("redis get template %s: %w", id, err)
	}
	return text, nil
}

// PutTemplate stores a template under id with an optional TTL (0 = no expiry).
func (s *RedisSource) PutTemplate(ctx context.Context, id, text string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+id, text, ttl).Err(); err != nil {
		s.log.WithError(err).WithField("template_id", id).Warn("Failed to set template in Redis")
		return fmt.Errorf("redis set template %s: %w", id, err)
	}
	return nil
}
