package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/infra"
)

// StatsStore — кэш сводки по лицензиям организации.
//
// Version снимается до чтения из БД и передается в Set: если между ними
// прошла инвалидация, запись пропускается и устаревшая сводка не попадает в кэш.
type StatsStore interface {
	Get(ctx context.Context, organizationID string) (*domain.LicenseStats, bool)
	Version(ctx context.Context, organizationID string) (int64, bool)
	Set(ctx context.Context, organizationID string, st *domain.LicenseStats, version int64)
	Invalidate(ctx context.Context, organizationID string)
}

// setIfVersion: KEYS[1] версия, KEYS[2] сводка; ARGV версия, JSON, TTL в мс.
var setIfVersion = redis.NewScript(`
local current = redis.call("GET", KEYS[1]) or "0"
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[2], ARGV[2])
end
return 1
`)

// StatsCache хранит сводку в Redis с TTL. Redis здесь необязателен:
// при его недоступности запросы просто идут в Postgres.
type StatsCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewStatsCache(rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *StatsCache {
	return &StatsCache{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.Named("stats-cache"),
	}
}

func (c *StatsCache) Get(ctx context.Context, organizationID string) (*domain.LicenseStats, bool) {
	raw, err := c.rdb.Get(ctx, infra.StatsCacheKey(organizationID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("stats cache read failed", zap.String("organization_id", organizationID), zap.Error(err))
		}
		return nil, false
	}

	var st domain.LicenseStats
	if err := json.Unmarshal(raw, &st); err != nil {
		c.logger.Warn("stats cache entry is corrupted", zap.String("organization_id", organizationID), zap.Error(err))
		return nil, false
	}
	return &st, true
}

// Version возвращает текущий счетчик инвалидаций; false, если Redis недоступен.
func (c *StatsCache) Version(ctx context.Context, organizationID string) (int64, bool) {
	v, err := c.rdb.Get(ctx, infra.StatsVersionKey(organizationID)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, true
	case err != nil:
		c.logger.Warn("stats cache version read failed", zap.String("organization_id", organizationID), zap.Error(err))
		return 0, false
	}
	return v, true
}

func (c *StatsCache) Set(ctx context.Context, organizationID string, st *domain.LicenseStats, version int64) {
	raw, err := json.Marshal(st)
	if err != nil {
		c.logger.Warn("stats cache encode failed", zap.Error(err))
		return
	}
	keys := []string{infra.StatsVersionKey(organizationID), infra.StatsCacheKey(organizationID)}
	stored, err := setIfVersion.Run(ctx, c.rdb, keys, version, raw, c.ttl.Milliseconds()).Int()
	if err != nil {
		c.logger.Warn("stats cache write failed", zap.String("organization_id", organizationID), zap.Error(err))
		return
	}
	if stored == 0 {
		c.logger.Debug("stats cache write skipped, invalidated during read", zap.String("organization_id", organizationID))
	}
}

func (c *StatsCache) Invalidate(ctx context.Context, organizationID string) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, infra.StatsVersionKey(organizationID))
		pipe.Del(ctx, infra.StatsCacheKey(organizationID))
		return nil
	})
	if err != nil {
		c.logger.Warn("stats cache invalidation failed", zap.String("organization_id", organizationID), zap.Error(err))
	}
}
