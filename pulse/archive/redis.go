package archive

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/teranos/pulsed/errors"
	"github.com/teranos/pulsed/pulse/task"
)

// DefaultRedisKeyPrefix namespaces archived logs
const DefaultRedisKeyPrefix = "pulsed:logs:"

// redisSetter is the part of *redis.Client the archiver uses
type redisSetter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisArchiver stores each log under <prefix><taskID>, expiring after TTL.
// A zero TTL keeps logs forever.
type RedisArchiver struct {
	client   redisSetter
	logsPath string
	prefix   string
	ttl      time.Duration
}

func NewRedisArchiver(logsPath, addr, prefix string, ttl time.Duration) *RedisArchiver {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	return newRedisArchiver(rdb, logsPath, prefix, ttl)
}

func newRedisArchiver(client redisSetter, logsPath, prefix string, ttl time.Duration) *RedisArchiver {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisArchiver{client: client, logsPath: logsPath, prefix: prefix, ttl: ttl}
}

// Key returns the redis key for taskID
func (a *RedisArchiver) Key(taskID string) string {
	return a.prefix + taskID
}

func (a *RedisArchiver) Upload(ctx context.Context, t *task.Task) error {
	data, _, err := readLog(a.logsPath, t)
	if err != nil {
		return err
	}
	if err := a.client.Set(ctx, a.Key(t.ID), data, a.ttl).Err(); err != nil {
		return errors.WrapServiceUnavailable(err, "redis archive")
	}
	return nil
}

func (a *RedisArchiver) Close() error {
	return a.client.Close()
}
