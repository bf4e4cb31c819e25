package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/irfan-workspace/kakistorychannel/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All Redis operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	SetJobSnapshot(ctx context.Context, jobID uuid.UUID, snap models.JobSnapshot, ttl time.Duration) error
	GetJobSnapshot(ctx context.Context, jobID uuid.UUID) (models.JobSnapshot, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
	Decr(ctx context.Context, key string) error
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
	if err == redis.Nil {
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

// SetJobSnapshot caches the poll view of a job so status checks on
// non-terminal jobs skip the database.
func (c *RedisCache) SetJobSnapshot(ctx context.Context, jobID uuid.UUID, snap models.JobSnapshot, ttl time.Duration) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, JobSnapshotKey(jobID), b, ttl).Err()
}

func (c *RedisCache) GetJobSnapshot(ctx context.Context, jobID uuid.UUID) (models.JobSnapshot, bool, error) {
	val, err := c.client.Get(ctx, JobSnapshotKey(jobID)).Bytes()
	if err == redis.Nil {
		return models.JobSnapshot{}, false, nil
	}
	if err != nil {
		return models.JobSnapshot{}, false, err
	}
	var snap models.JobSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return models.JobSnapshot{}, false, err
	}
	return snap, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCache) Decr(ctx context.Context, key string) error {
	return c.client.Decr(ctx, key).Err()
}
