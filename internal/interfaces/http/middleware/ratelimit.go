package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per key
type KeyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewKeyedLimiter allows perSecond events per key with the given burst.
// A non-positive rate disables limiting.
func NewKeyedLimiter(perSecond float64, burst int) *KeyedLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &KeyedLimiter{limiters: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

func (l *KeyedLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}

// Reserve takes a token for key. It returns zero when the event may proceed,
// otherwise the wait until a token frees up.
func (l *KeyedLimiter) Reserve(key string) time.Duration {
	r := l.get(key).Reserve()
	if !r.OK() {
		return time.Second
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
	}
	return delay
}

// Allow reports whether an event for key may happen now
func (l *KeyedLimiter) Allow(key string) bool {
	return l.Reserve(key) == 0
}

// RateLimitByKey limits requests by the key keyFunc extracts. Rejected
// requests get 429 with Retry-After.
func RateLimitByKey(limiter *KeyedLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		wait := limiter.Reserve(keyFunc(c))
		if wait > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			abort(c, dto.ErrCodeRateLimited, "too many requests, retry later")
			return
		}
		c.Next()
	}
}

// RateLimitByParam limits requests per value of a path parameter, such as the
// webhook source name
func RateLimitByParam(limiter *KeyedLimiter, param string) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string { return c.Param(param) })
}
