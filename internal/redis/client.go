package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"cardiolens-data/internal/config"
)

// Client Redis 客户端类型别名
type Client = redis.Client

// NewRedisClient 创建 Redis 客户端
//
// ReadTimeout 必须大于 Stream 消费侧 XREADGROUP 的 5s 阻塞时长，
// 否则每轮空转都会以超时错误结束。
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		MinIdleConns: 2,
	})
}

// Ping 测试 Redis 连接
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close 关闭 Redis 连接
func Close(client *redis.Client) error {
	return client.Close()
}
