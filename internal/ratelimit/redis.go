package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a sliding window counter shared by every API replica. Each
// key is a sorted set of request timestamps trimmed to the window.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	seq    atomic.Uint64
	now    func() time.Time
}

func NewRedisLimiter(redisURL string, perMinute int) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisLimiterWithClient(client, perMinute), nil
}

func NewRedisLimiterWithClient(client *redis.Client, perMinute int) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "rate_limit:writes:",
		limit:  perMinute,
		window: time.Minute,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := l.prefix + key
	now := l.now().UnixNano()
	windowStart := now - l.window.Nanoseconds()
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: member})
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit pipeline: %w", err)
	}
	return countCmd.Val() < int64(l.limit), nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
