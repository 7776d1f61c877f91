package taskauth

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/minus-twelve/taskauth/types"
	"golang.org/x/time/rate"
)

const limiterIdle = 5 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per key. Limit requests are allowed
// per Period, all of them available as a burst.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mutex    sync.Mutex
	every    rate.Limit
	burst    int
	now      func() time.Time
}

func NewRateLimiter(cfg types.Rate) *RateLimiter {
	limit, period := cfg.Limit, cfg.Period
	if limit <= 0 {
		limit = 5
	}
	if period <= 0 {
		period = time.Minute
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		every:    rate.Every(period / time.Duration(limit)),
		burst:    limit,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.every, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	for key, e := range rl.limiters {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(rl.limiters, key)
		}
	}
}

// Run drops idle buckets until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterIdle)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

// ParseTrustedProxies accepts CIDRs and bare addresses; invalid entries are
// skipped.
func ParseTrustedProxies(proxies []string) []net.IPNet {
	trusted := make([]net.IPNet, 0, len(proxies))
	for _, proxy := range proxies {
		_, ipnet, err := net.ParseCIDR(proxy)
		if err != nil {
			ip := net.ParseIP(proxy)
			if ip == nil {
				continue
			}
			mask := net.CIDRMask(32, 32)
			if ip.To4() == nil {
				mask = net.CIDRMask(128, 128)
			}
			ipnet = &net.IPNet{IP: ip, Mask: mask}
		}
		trusted = append(trusted, *ipnet)
	}
	return trusted
}

// ClientIP honours X-Forwarded-For only when the peer is a trusted proxy.
func ClientIP(r *http.Request, trusted []net.IPNet) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded == "" {
		return ip
	}
	peer := net.ParseIP(ip)
	if peer == nil {
		return ip
	}
	for _, network := range trusted {
		if network.Contains(peer) {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	return ip
}

func RateLimitMiddleware(rl *RateLimiter, trusted []net.IPNet) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(ClientIP(c.Request, trusted)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
