package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gradestack/submissions-api/internal/models"
)

// SubmissionCache is the explicit cache port for submission reads. Cache
// failures degrade to database reads and are never surfaced to callers.
type SubmissionCache interface {
	Get(ctx context.Context, uuid string) (models.Submission, bool)
	Set(ctx context.Context, submission models.Submission)
	Invalidate(ctx context.Context, uuid string)
}

type redisSubmissionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisSubmissionCache builds a redis-backed submission cache with the
// given TTL.
func NewRedisSubmissionCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) SubmissionCache {
	return &redisSubmissionCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "submission_cache").Logger(),
	}
}

func (c *redisSubmissionCache) Get(ctx context.Context, uuid string) (models.Submission, bool) {
	cached, err := c.client.Get(ctx, models.SubmissionCacheKey(uuid)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Str("uuid", uuid).Msg("failed to read submission cache")
		}
		return models.Submission{}, false
	}

	var submission models.Submission
	if err := json.Unmarshal([]byte(cached), &submission); err != nil {
		return models.Submission{}, false
	}

	return submission, true
}

func (c *redisSubmissionCache) Set(ctx context.Context, submission models.Submission) {
	payload, err := json.Marshal(submission)
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, submission.CacheKey(), payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("uuid", submission.UUID).Msg("failed to store submission cache")
	}
}

func (c *redisSubmissionCache) Invalidate(ctx context.Context, uuid string) {
	if err := c.client.Del(ctx, models.SubmissionCacheKey(uuid)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("uuid", uuid).Msg("failed to invalidate submission cache")
	}
}
