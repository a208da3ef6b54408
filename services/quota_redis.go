package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// 检查并占位：清理过期预约后，已确认+预约数未达上限才写入
// KEYS[1] 已确认计数  KEYS[2] 预约集合（score为过期时间，毫秒）
// ARGV: token, limit, now_ms, expires_ms, key_ttl_sec
const quotaReserveScript = `
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", ARGV[3])
local committed = tonumber(redis.call("GET", KEYS[1]) or "0")
local reserved = redis.call("ZCARD", KEYS[2])
if committed + reserved >= tonumber(ARGV[2]) then
  return {0, committed, reserved}
end
redis.call("ZADD", KEYS[2], ARGV[4], ARGV[1])
redis.call("EXPIRE", KEYS[2], ARGV[5])
return {1, committed, reserved + 1}
`

// 确认：移除预约并累加计数
// ARGV: token, key_ttl_sec
const quotaCommitScript = `
redis.call("ZREM", KEYS[2], ARGV[1])
local n = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[2])
return n
`

// RedisQuotaStore 基于Redis Lua脚本的额度存储，多实例部署时共享计数
type RedisQuotaStore struct {
	client  redis.UniversalClient
	reserve *redis.Script
	commit  *redis.Script
}

func NewRedisQuotaStore(client redis.UniversalClient) *RedisQuotaStore {
	return &RedisQuotaStore{
		client:  client,
		reserve: redis.NewScript(quotaReserveScript),
		commit:  redis.NewScript(quotaCommitScript),
	}
}

// 两个键共享同一个hash tag，保证集群模式下落在同一个slot
func quotaKeys(key QuotaKey) []string {
	prefix := fmt.Sprintf("quota:{%s}:%s", key.RequesterID, key.Period)
	return []string{prefix + ":committed", prefix + ":reserved"}
}

func ttlSeconds(ttl time.Duration) int64 {
	sec := int64(ttl / time.Second)
	if sec < 1 {
		sec = 1
	}
	return sec
}

func (s *RedisQuotaStore) Reserve(ctx context.Context, key QuotaKey, token string, limit int, now, expiresAt time.Time, keyTTL time.Duration) (ReserveResult, error) {
	res, err := s.reserve.Run(ctx, s.client, quotaKeys(key),
		token, limit, now.UnixMilli(), expiresAt.UnixMilli(), ttlSeconds(keyTTL),
	).Int64Slice()
	if err != nil {
		return ReserveResult{}, err
	}
	if len(res) < 3 {
		return ReserveResult{}, errors.New("invalid quota script response")
	}
	return ReserveResult{OK: res[0] == 1, Committed: int(res[1]), Reserved: int(res[2])}, nil
}

func (s *RedisQuotaStore) Commit(ctx context.Context, key QuotaKey, token string, keyTTL time.Duration) error {
	return s.commit.Run(ctx, s.client, quotaKeys(key), token, ttlSeconds(keyTTL)).Err()
}

func (s *RedisQuotaStore) Release(ctx context.Context, key QuotaKey, token string) error {
	return s.client.ZRem(ctx, quotaKeys(key)[1], token).Err()
}

func (s *RedisQuotaStore) Usage(ctx context.Context, key QuotaKey, now time.Time) (int, int, error) {
	keys := quotaKeys(key)
	var committedCmd *redis.StringCmd
	var reservedCmd *redis.IntCmd
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		committedCmd = p.Get(ctx, keys[0])
		reservedCmd = p.ZCount(ctx, keys[1], "("+strconv.FormatInt(now.UnixMilli(), 10), "+inf")
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}

	committed := 0
	if v, err := committedCmd.Int(); err == nil {
		committed = v
	} else if !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}
	reserved, err := reservedCmd.Result()
	if err != nil {
		return 0, 0, err
	}
	return committed, int(reserved), nil
}
