package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RecentFeedKey holds the capped list of recently accepted matches,
// maintained by the worker and read by the API.
const RecentFeedKey = "faceattend:recent"

// RecentFeedSize caps the feed length.
const RecentFeedSize = 100

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// PushRecent prepends an attendance entry to the feed and trims it.
func (r *Redis) PushRecent(ctx context.Context, payload []byte) error {
	if err := r.Client.LPush(ctx, RecentFeedKey, payload).Err(); err != nil {
		return err
	}
	return r.Client.LTrim(ctx, RecentFeedKey, 0, RecentFeedSize-1).Err()
}

// Recent returns up to limit feed entries, newest first.
func (r *Redis) Recent(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 || limit > RecentFeedSize {
		limit = RecentFeedSize
	}
	return r.Client.LRange(ctx, RecentFeedKey, 0, int64(limit-1)).Result()
}
