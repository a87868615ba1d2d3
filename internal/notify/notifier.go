package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/infra"
)

// Publisher — часть redis.Cmdable, нужная для Pub/Sub.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Notifier рассылает решения по заявкам: сразу в Redis канал и в фоне на вебхук.
// Ошибки доставки не возвращаются вызывающему: API ответ от них не зависит.
type Notifier struct {
	pub     Publisher
	channel string
	webhook Sender // nil — вебхук не настроен
	queue   chan []byte
	metrics *infra.Metrics
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewNotifier(pub Publisher, webhook Sender, cfg infra.NotifyConfig, metrics *infra.Metrics, logger *zap.Logger) *Notifier {
	ctx, cancel := context.WithCancel(context.Background())
	return &Notifier{
		pub:     pub,
		channel: infra.RedisChanRequestDecisions,
		webhook: webhook,
		queue:   make(chan []byte, cfg.QueueSize),
		metrics: metrics,
		logger:  logger.Named("notify"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (n *Notifier) Start() {
	if n.webhook == nil {
		return
	}
	n.wg.Add(1)
	go n.worker()
}

// Stop закрывает очередь и ждет доставки остатка. Если ctx истек раньше,
// текущие отправки отменяются.
func (n *Notifier) Stop(ctx context.Context) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		n.logger.Warn("notify drain timed out, cancelling pending deliveries", zap.Int("left", len(n.queue)))
		n.cancel()
		<-done
	}
	n.cancel()
}

// NotifyDecision публикует событие. Не блокирует дольше, чем Redis PUBLISH.
func (n *Notifier) NotifyDecision(ctx context.Context, ev DecisionEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("marshal decision event", zap.Error(err))
		return
	}

	if err := n.pub.Publish(ctx, n.channel, payload).Err(); err != nil {
		n.metrics.Notifications.WithLabelValues("redis", "error").Inc()
		n.logger.Warn("publish decision failed",
			zap.String("request_id", ev.RequestID), zap.Error(err))
	} else {
		n.metrics.Notifications.WithLabelValues("redis", "ok").Inc()
	}

	if n.webhook == nil {
		return
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.metrics.Notifications.WithLabelValues("webhook", "dropped").Inc()
		return
	}
	select {
	case n.queue <- payload:
	default:
		n.metrics.Notifications.WithLabelValues("webhook", "dropped").Inc()
		n.logger.Error("notify_queue_overflow", zap.String("request_id", ev.RequestID))
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for payload := range n.queue {
		if err := n.webhook.Send(n.ctx, payload); err != nil {
			n.metrics.Notifications.WithLabelValues("webhook", "error").Inc()
			n.logger.Warn("webhook delivery failed", zap.Error(err))
			continue
		}
		n.metrics.Notifications.WithLabelValues("webhook", "ok").Inc()
	}
}
