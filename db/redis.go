package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"suanming_maya/config"
)

// Redis 额度账本使用的Redis客户端，未配置时为nil
var Redis *redis.Client

// InitRedis 连接Redis并检查可用性
func InitRedis(ctx context.Context, cfg *config.Config) error {
	poolSize := cfg.Redis.PoolSize
	if poolSize <= 0 {
		poolSize = 20
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: poolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err)
	}
	Redis = client
	return nil
}

// CloseRedis 关闭Redis连接
func CloseRedis() error {
	if Redis == nil {
		return nil
	}
	return Redis.Close()
}
