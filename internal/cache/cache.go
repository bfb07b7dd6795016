package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kiranshivaraju/callscore/pkg/models"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetAssessment(ctx context.Context, a *models.Assessment, ttl time.Duration) error
	GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, bool, error)
	SetFingerprint(ctx context.Context, workerID, fingerprint string, id uuid.UUID, ttl time.Duration) error
	GetFingerprint(ctx context.Context, workerID, fingerprint string) (uuid.UUID, bool, error)
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetAssessment(ctx context.Context, a *models.Assessment, ttl time.Duration) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding assessment: %w", err)
	}
	return c.Set(ctx, AssessmentKey(a.ID), data, ttl)
}

// GetAssessment returns a cached assessment. An entry that no longer decodes
// is deleted and reported as a miss.
func (c *RedisCache) GetAssessment(ctx context.Context, id uuid.UUID) (*models.Assessment, bool, error) {
	data, found, err := c.Get(ctx, AssessmentKey(id))
	if err != nil || !found {
		return nil, false, err
	}
	var a models.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		_ = c.Delete(ctx, AssessmentKey(id))
		return nil, false, nil
	}
	return &a, true, nil
}

func (c *RedisCache) SetFingerprint(ctx context.Context, workerID, fingerprint string, id uuid.UUID, ttl time.Duration) error {
	return c.client.Set(ctx, FingerprintKey(workerID, fingerprint), id.String(), ttl).Err()
}

func (c *RedisCache) GetFingerprint(ctx context.Context, workerID, fingerprint string) (uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, FingerprintKey(workerID, fingerprint)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, JobStatusKey(jobID), status, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, JobStatusKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
