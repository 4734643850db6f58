package api

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// limiterIdleTTL drops a client's limiter after this long without use.
const limiterIdleTTL = 10 * time.Minute

// clientLimiter holds one token bucket per client key.
type clientLimiter struct {
	perMinute int
	mu        sync.Mutex
	buckets   *cache.Cache
}

func newClientLimiter(perMinute int) *clientLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &clientLimiter{
		perMinute: perMinute,
		buckets:   cache.New(limiterIdleTTL, limiterIdleTTL),
	}
}

// Allow reports whether key may send a command now.
func (l *clientLimiter) Allow(key string) bool {
	l.mu.Lock()
	var lim *rate.Limiter
	if v, ok := l.buckets.Get(key); ok {
		lim = v.(*rate.Limiter) //nolint:forcetypeassert // only limiters are stored
	} else {
		burst := l.perMinute / 6
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), burst)
	}
	l.buckets.Set(key, lim, cache.DefaultExpiration)
	l.mu.Unlock()

	return lim.Allow()
}
