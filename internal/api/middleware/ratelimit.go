// ratelimit.go — ограничение частоты запросов по IP клиента.
// Каждому клиенту соответствует набор token bucket, по одному на окно
// (например 25/minute; 50/hour; 75/day). Запрос проходит, только если
// его пропускают все окна.
package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/goartstore/asset-proxy/internal/api/errors"
	"github.com/bigkaa/goartstore/asset-proxy/internal/config"
)

// Число одновременно отслеживаемых клиентов.
const rateLimitClients = 10000

// rateLimitedTotal — запросы, отклонённые лимитом.
var rateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ap_rate_limited_total",
		Help: "Запросы, отклонённые ограничением частоты",
	},
	[]string{"limit"},
)

// RateLimiter — ограничитель частоты запросов по IP.
type RateLimiter struct {
	limits         []config.RateLimit
	trustForwarded bool
	logger         *slog.Logger
	now            func() time.Time

	mu      sync.Mutex
	clients *expirable.LRU[string, []*rate.Limiter]
}

// NewRateLimiter создаёт ограничитель. trustForwarded — брать IP клиента
// из первого адреса X-Forwarded-For (только за доверенным прокси).
func NewRateLimiter(limits []config.RateLimit, trustForwarded bool, logger *slog.Logger) *RateLimiter {
	// Клиент, не приходивший дольше самого длинного окна, начинает с полных bucket.
	var ttl time.Duration
	for _, l := range limits {
		ttl = max(ttl, l.Per)
	}
	return &RateLimiter{
		limits:         limits,
		trustForwarded: trustForwarded,
		logger:         logger,
		now:            time.Now,
		clients:        expirable.NewLRU[string, []*rate.Limiter](rateLimitClients, nil, ttl),
	}
}

// Middleware возвращает HTTP middleware. Health-эндпоинты и /metrics
// не ограничиваются.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health/") || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			client := rl.clientIP(r)
			wait, exceeded, ok := rl.allow(client)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			rateLimitedTotal.WithLabelValues(exceeded.String()).Inc()
			rl.logger.Warn("Превышен лимит запросов",
				slog.String("client", client),
				slog.String("limit", exceeded.String()),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			apierrors.TooManyRequests(w, "Превышен лимит запросов: "+exceeded.String())
		})
	}
}

// allow резервирует по токену во всех окнах клиента. При отказе любого
// окна резервы отменяются; возвращается ожидание до освобождения
// и окно, которое отказало.
func (rl *RateLimiter) allow(client string) (time.Duration, config.RateLimit, bool) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiters, found := rl.clients.Get(client)
	if !found {
		limiters = make([]*rate.Limiter, len(rl.limits))
		for i, l := range rl.limits {
			limiters[i] = rate.NewLimiter(rate.Every(l.Per/time.Duration(l.Requests)), l.Requests)
		}
		rl.clients.Add(client, limiters)
	}

	var (
		wait     time.Duration
		exceeded config.RateLimit
		denied   bool
	)
	reservations := make([]*rate.Reservation, 0, len(limiters))
	for i, lim := range limiters {
		res := lim.ReserveN(now, 1)
		reservations = append(reservations, res)
		if d := res.DelayFrom(now); d > 0 && d > wait {
			wait, exceeded, denied = d, rl.limits[i], true
		}
	}
	if !denied {
		return 0, config.RateLimit{}, true
	}
	for _, res := range reservations {
		res.CancelAt(now)
	}
	return wait, exceeded, false
}

// clientIP — адрес клиента: первый X-Forwarded-For при доверенном прокси,
// иначе хост из RemoteAddr.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	if rl.trustForwarded {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
