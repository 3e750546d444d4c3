package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// VersionCache publishes the latest saved snapshot version so that stream
// pollers on other instances can check for staleness without a full blob
// read. It is an accelerator only: a miss or a stale value just means the
// poller falls back to reading the store.
type VersionCache interface {
	SetVersion(ctx context.Context, eventID string, version int64) error
	GetVersion(ctx context.Context, eventID string) (int64, error)
}

type versionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewVersionCache creates a Redis-backed version cache
func NewVersionCache(client *redis.Client) VersionCache {
	return &versionCache{
		client: client,
		ttl:    24 * time.Hour, // one show day
	}
}

func (c *versionCache) key(eventID string) string {
	return fmt.Sprintf("show:%s:version", eventID)
}

func (c *versionCache) SetVersion(ctx context.Context, eventID string, version int64) error {
	return c.client.Set(ctx, c.key(eventID), version, c.ttl).Err()
}

// GetVersion returns the cached version, or 0 when nothing is cached
func (c *versionCache) GetVersion(ctx context.Context, eventID string) (int64, error) {
	val, err := c.client.Get(ctx, c.key(eventID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}
