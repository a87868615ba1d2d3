package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/audit"
	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/infra"
)

// expiryLockTTL — сколько держим лок на один проход.
const expiryLockTTL = 30 * time.Second

// releaseLock удаляет лок, только если он все еще наш: после истечения TTL
// его мог взять другой инстанс.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type LicenseExpirer interface {
	ExpireLicenses(ctx context.Context, now time.Time) ([]*domain.License, error)
}

// ExpirySweeper периодически переводит просроченные ACTIVE лицензии в EXPIRED.
// Проход выполняет только инстанс, взявший распределенный лок (SetNX).
type ExpirySweeper struct {
	repo     LicenseExpirer
	rdb      redis.Cmdable
	stats    StatsStore
	auditor  audit.Auditor
	metrics  *infra.Metrics
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewExpirySweeper(
	repo LicenseExpirer,
	rdb redis.Cmdable,
	stats StatsStore,
	auditor audit.Auditor,
	metrics *infra.Metrics,
	interval time.Duration,
	logger *zap.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		repo:     repo,
		rdb:      rdb,
		stats:    stats,
		auditor:  auditor,
		metrics:  metrics,
		interval: interval,
		logger:   logger.Named("license-expiry"),
		now:      time.Now,
	}
}

func (s *ExpirySweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("license expiry sweeper disabled")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("license expiry sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

func (s *ExpirySweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep выполняет один проход. Возвращает число переведенных лицензий;
// 0 без ошибки, если лок держит другой инстанс.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, infra.RedisKeyLockLicenseExpiry, token, expiryLockTTL).Result()
	if err != nil || !ok {
		return 0, err
	}
	defer func() {
		err := releaseLock.Run(context.WithoutCancel(ctx), s.rdb, []string{infra.RedisKeyLockLicenseExpiry}, token).Err()
		if err != nil {
			s.logger.Warn("failed to release expiry lock", zap.Error(err))
		}
	}()

	expired, err := s.repo.ExpireLicenses(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if len(expired) == 0 {
		return 0, nil
	}

	orgs := make(map[string]struct{})
	for _, l := range expired {
		orgs[l.OrganizationID] = struct{}{}
		s.auditor.Log(audit.SystemEntry(l.OrganizationID, domain.ActionLicenseExpired, audit.ResourceLicense, l.ID,
			map[string]any{"userId": l.UserID, "softwareId": l.SoftwareID}))
	}
	for org := range orgs {
		s.stats.Invalidate(ctx, org)
	}
	s.metrics.LicensesExpired.Add(float64(len(expired)))

	s.logger.Info("licenses expired",
		zap.Int("count", len(expired)),
		zap.Int("organizations", len(orgs)))
	return len(expired), nil
}
