package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/omnisme/internal/infra"
)

// Пауза перед переподпиской после обрыва соединения с Redis
var resubscribeDelay = 5 * time.Second

// Subscribe слушает канал решений по заявкам до отмены ctx.
// Обрыв соединения не фатален: подписка восстанавливается.
func Subscribe(ctx context.Context, rdb *redis.Client, logger *zap.Logger, onEvent func(DecisionEvent)) {
	logger = logger.Named("notify-subscriber")
	channel := infra.RedisChanRequestDecisions

	for {
		pubsub := rdb.Subscribe(ctx, channel)

		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			logger.Error("failed to subscribe", zap.String("chan", channel), zap.Error(err))
			if !sleep(ctx, resubscribeDelay) {
				return
			}
			continue
		}
		logger.Info("subscribed", zap.String("chan", channel))

		ch := pubsub.Channel()
	loop:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break loop // канал закрыт, переподключаемся
				}
				var ev DecisionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Error("invalid decision event", zap.String("payload", msg.Payload), zap.Error(err))
					continue
				}
				onEvent(ev)
			}
		}

		_ = pubsub.Close()
		if !sleep(ctx, time.Second) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
