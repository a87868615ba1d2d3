package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName — имя сервиса в grpc.health.v1. Пустое имя отражает сервер целиком.
const ServiceName = "omnisme.portal"

const pingTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor держит статус grpc.health.v1 в соответствии с доступностью базы.
type Monitor struct {
	srv      *health.Server
	db       Pinger
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	serving bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(db Pinger, interval time.Duration, logger *zap.Logger) *Monitor {
	m := &Monitor{
		srv:      health.NewServer(),
		db:       db,
		interval: interval,
		logger:   logger.Named("health"),
	}
	// До первой проверки считаем, что не готовы
	m.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return m
}

func (m *Monitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.srv)
}

// Check пингует базу и обновляет статус. Возвращает ошибку пинга.
func (m *Monitor) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := m.db.Ping(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case err != nil && m.serving:
		m.logger.Warn("database unreachable, reporting NOT_SERVING", zap.Error(err))
	case err == nil && !m.serving:
		m.logger.Info("database reachable, reporting SERVING")
	}
	m.serving = err == nil
	if m.serving {
		m.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		m.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return err
}

func (m *Monitor) set(status healthpb.HealthCheckResponse_ServingStatus) {
	m.srv.SetServingStatus("", status)
	m.srv.SetServingStatus(ServiceName, status)
}

func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	_ = m.Check(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = m.Check(ctx)
			}
		}
	}()
}

// Stop останавливает опрос и переводит все сервисы в NOT_SERVING.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.srv.Shutdown()
}
