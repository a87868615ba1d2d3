package infra

import (
	"context"
	"encoding/json"
	"maps"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// IPRateLimiter держит отдельный token bucket на каждый IP клиента.
type IPRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	logSometimes *rate.Sometimes
	logger       *zap.Logger
}

func NewIPRateLimiter(perSecond float64, burst int, logger *zap.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		limit:        rate.Limit(perSecond),
		burst:        burst,
		limiters:     make(map[string]*rate.Limiter),
		logSometimes: &rate.Sometimes{Interval: 10 * time.Second},
		logger:       logger.Named("ip_limiter"),
	}
}

// Allow списывает токен для ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Prune удаляет лимитеры, которые полностью восстановились.
func (l *IPRateLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := len(l.limiters)
	maps.DeleteFunc(l.limiters, func(_ string, lim *rate.Limiter) bool {
		return int(lim.Tokens()) >= lim.Burst()
	})
	return before - len(l.limiters)
}

// Run периодически чистит лимитеры до отмены ctx.
func (l *IPRateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Prune(); n > 0 {
				l.logger.Debug("pruned idle limiters", zap.Int("count", n))
			}
		}
	}
}

func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !l.Allow(ip) {
			l.logSometimes.Do(func() {
				l.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", r.URL.Path))
			})
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "60")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many attempts, please try again later"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RemoteAddr уже переписан middleware.RealIP, порт может отсутствовать.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
