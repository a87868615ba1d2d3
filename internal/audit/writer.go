package audit

/*
Writer — асинхронный журнал действий портала.

- Log не блокирует HTTP-обработчик: событие уходит в буферизованный канал.
- При переполнении буфера событие сбрасывается (Load Shedding) с записью в лог и метрику.
- Воркер копит пачку и пишет её одним INSERT по таймеру или по достижении BatchSize.
- Stop закрывает вход, воркер вычитывает остаток канала и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/domain"
	"github.com/xela07ax/omnisme/internal/infra"
)

// Storage определяет, куда физически будут сохраняться записи
type Storage interface {
	WriteAuditBatch(ctx context.Context, entries []domain.AuditEntry) error
}

type Auditor interface {
	Log(entry domain.AuditEntry)
}

type Writer struct {
	cfg     infra.AuditConfig
	ch      chan domain.AuditEntry
	repo    Storage
	metrics *infra.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup

	// mu защищает закрытие канала от гонки с Log
	mu     sync.RWMutex
	closed bool
}

func NewWriter(repo Storage, cfg infra.AuditConfig, metrics *infra.Metrics, logger *zap.Logger) *Writer {
	return &Writer{
		cfg:     cfg,
		ch:      make(chan domain.AuditEntry, cfg.BufferSize),
		repo:    repo,
		metrics: metrics,
		logger:  logger.Named("audit"),
	}
}

func (w *Writer) Start() {
	w.wg.Add(1)
	go w.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (w *Writer) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	w.logger.Info("stopping auditor: flushing buffer")
	w.wg.Wait()
	w.logger.Info("auditor stopped gracefully")
}

func (w *Writer) Log(entry domain.AuditEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn("audit entry dropped: auditor is stopping", zap.String("action", string(entry.Action)))
		return
	}

	select {
	case w.ch <- entry:
		w.metrics.AuditBufferFill.Set(float64(len(w.ch)))
	default:
		w.metrics.AuditDropped.Inc()
		w.logger.Error("audit_buffer_overflow",
			zap.String("action", string(entry.Action)),
			zap.String("organization_id", entry.OrganizationID),
			zap.String("resource_id", entry.ResourceID),
		)
	}
}

func (w *Writer) worker() {
	defer w.wg.Done()

	batch := make([]domain.AuditEntry, 0, w.cfg.BatchSize)
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: контекст запроса к этому моменту уже завершен
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.repo.WriteAuditBatch(ctx, batch); err != nil {
			w.logger.Error("audit flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		w.metrics.AuditBufferFill.Set(float64(len(w.ch)))
	}

	for {
		select {
		case entry, ok := <-w.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= w.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
