// ratelimit.go — ограничение частоты запросов по IP клиента (token bucket).
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	apierrors "github.com/arturkryukov/hostportal/internal/api/errors"
)

// IPRateLimiter — отдельный token bucket на каждый IP.
// Неактивные IP вытесняются из LRU по ttl.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	rps      rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewIPRateLimiter создаёт limiter: rps запросов в секунду, всплеск burst.
// maxClients — предел числа отслеживаемых IP.
func NewIPRateLimiter(rps float64, burst, maxClients int, ttl time.Duration, logger *slog.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxClients, nil, ttl),
		rps:      rate.Limit(rps),
		burst:    burst,
		logger:   logger.With(slog.String("component", "rate_limit")),
	}
}

// Allow расходует токен клиента ip.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters.Get(ip)
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters.Add(ip, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Middleware отвечает 429, если bucket клиента пуст.
func (l *IPRateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !l.Allow(ip) {
				l.logger.Warn("Превышен лимит запросов",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				apierrors.TooManyRequests(w, "Слишком много запросов")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP возвращает IP из RemoteAddr (X-Forwarded-For разбирает chi RealIP выше по цепочке).
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
