package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "omnisme"
)

// Ключи блокировок
const (
	RedisKeyLockLicenseExpiry = RedisNamespace + ":lock:licenses:expiry"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanRequestDecisions — канал решений по заявкам на лицензии.
	RedisChanRequestDecisions = RedisNamespace + ":requests:decisions"
)

// StatsCacheKey — ключ кэша сводки по лицензиям организации.
func StatsCacheKey(organizationID string) string {
	return fmt.Sprintf("%s:stats:licenses:%s", RedisNamespace, organizationID)
}

// StatsVersionKey — счетчик инвалидаций сводки; запись в кэш проходит,
// только если он не изменился с начала чтения из БД.
func StatsVersionKey(organizationID string) string {
	return fmt.Sprintf("%s:stats:licenses:version:%s", RedisNamespace, organizationID)
}
