package mw

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lockstats/internal/config"
	"lockstats/internal/security"
	rds "lockstats/internal/stores/redis"
	"lockstats/pkg/httputil"

	"github.com/redis/go-redis/v9"
	"gitlab.com/nevasik7/alerting/logger"
)

const keyPrefix = "lockstats:rl:"

type RateLimitMiddleware struct {
	Cfg      *config.RateLimitConfig
	Rdb      *rds.Client
	Verifier *security.RS256Verifier // optional, used when the JWT middleware did not run first
	log      logger.Logger
}

func NewRateLimit(log logger.Logger, cfg *config.RateLimitConfig, rdb *rds.Client, verifier *security.RS256Verifier) (*RateLimitMiddleware, error) {
	if cfg == nil {
		return nil, errors.New("rate limit config cannot be nil")
	}
	if rdb == nil || rdb.Client == nil {
		return nil, errors.New("redis client is required to the rate limiter")
	}

	c := *cfg
	// sane defaults
	if c.ByJWT.TTL == 0 {
		c.ByJWT.TTL = 2 * time.Minute
	}
	if c.ByIP.TTL == 0 {
		c.ByIP.TTL = 2 * time.Minute
	}

	return &RateLimitMiddleware{Cfg: &c, Rdb: rdb, Verifier: verifier, log: log}, nil
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := time.Now()

		ip := extractClientIP(r, m.Cfg.TrustedProxies)
		okIP, leftIP := m.allow(ctx, keyPrefix+"ip:"+ip, now, m.Cfg.ByIP)
		setLimitHeaders(w, "IP", m.Cfg.ByIP, leftIP)

		okJWT := true
		if sub := m.subject(r); sub != "" {
			var leftJWT int64
			okJWT, leftJWT = m.allow(ctx, keyPrefix+"jwt:"+sub, now, m.Cfg.ByJWT)
			setLimitHeaders(w, "JWT", m.Cfg.ByJWT, leftJWT)
		}

		if !(okIP && okJWT) {
			w.Header().Set("Retry-After", strconv.Itoa(m.calculateRetryAfter(okIP, okJWT)))
			if err := httputil.Error(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded", nil); err != nil {
				m.log.Errorf("Rate limit write error: %v", err)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) subject(r *http.Request) string {
	if sub := subjectFromContext(r); sub != "" {
		return sub
	}
	if m.Verifier == nil || r.Header.Get("Authorization") == "" {
		return ""
	}
	if c, err := m.Verifier.VerifyBearer(r.Header.Get("Authorization")); err == nil {
		return c.Subject
	}
	return ""
}

func setLimitHeaders(w http.ResponseWriter, suffix string, b config.RateBucket, left int64) {
	w.Header().Set("X-RateLimit-Limit-"+suffix, strconv.Itoa(b.Burst))
	if left < 0 {
		left = 0
	}
	w.Header().Set("X-RateLimit-Remaining-"+suffix, strconv.FormatInt(left, 10))
}

// seconds until one token is back in the slowest exhausted bucket
func (m *RateLimitMiddleware) calculateRetryAfter(okIP, okJWT bool) int {
	wait := 0.0
	if !okIP && m.Cfg.ByIP.RefillPerSec > 0 {
		wait = math.Max(wait, 1/float64(m.Cfg.ByIP.RefillPerSec))
	}
	if !okJWT && m.Cfg.ByJWT.RefillPerSec > 0 {
		wait = math.Max(wait, 1/float64(m.Cfg.ByJWT.RefillPerSec))
	}
	return max(1, int(math.Ceil(wait)))
}

// --- redis token-bucket (Lua) for atomic and one query ---
var luaTokenBucket = redis.NewScript(`
-- KEYS[1] = key
-- ARGV[1] = now_ms
-- ARGV[2] = refill_per_sec (integer)
-- ARGV[3] = burst (integer)
-- ARGV[4] = ttl_seconds
local key   = KEYS[1]
local now   = tonumber(ARGV[1])
local rate  = tonumber(ARGV[2])
local burst = tonumber(ARGV[3])
local ttl   = tonumber(ARGV[4])

local last_ms = tonumber(redis.call('HGET', key, 'ts') or now)
local tokens  = tonumber(redis.call('HGET', key, 'tok') or burst)

if now > last_ms then
  local delta = (now - last_ms) / 1000.0
  tokens = math.min(burst, tokens + (delta * rate))
end

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call('HSET', key, 'tok', tokens, 'ts', now)
redis.call('EXPIRE', key, ttl)

return {allowed, math.floor(tokens)}
`)

// allow fails open: a broken limiter must not take the read API down
func (m *RateLimitMiddleware) allow(ctx context.Context, key string, now time.Time, b config.RateBucket) (bool, int64) {
	ttl := int(b.TTL.Seconds())
	if ttl <= 0 {
		ttl = 120
	}

	res, err := luaTokenBucket.Run(ctx, m.Rdb, []string{key},
		now.UnixMilli(),
		b.RefillPerSec,
		b.Burst,
		ttl,
	).Int64Slice()
	if err != nil {
		m.log.Warnf("Rate limiter unavailable, allowing request: %v", err)
		return true, int64(b.Burst)
	}
	if len(res) < 2 {
		return true, int64(b.Burst)
	}

	return res[0] == 1, res[1]
}

// extractClientIP trusts forwarding headers when no proxy list is configured
// or when the direct peer is a trusted proxy
func extractClientIP(r *http.Request, trusted []string) string {
	peer := remoteAddrIP(r.RemoteAddr)

	if len(trusted) > 0 && !isTrusted(peer, trusted) {
		return peer
	}

	if hops := parseXFF(r.Header.Get("X-Forwarded-For")); len(hops) > 0 {
		if len(trusted) == 0 {
			return hops[0]
		}
		// right to left, first hop that is not one of ours
		for i := len(hops) - 1; i >= 0; i-- {
			if !isTrusted(hops[i], trusted) {
				return hops[i]
			}
		}
		return hops[0]
	}

	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xrip) != nil {
		return xrip
	}

	return peer
}

func parseXFF(xff string) []string {
	out := []string{}
	for _, p := range strings.Split(xff, ",") {
		p = strings.TrimSpace(p)
		if net.ParseIP(p) != nil {
			out = append(out, p)
		}
	}
	return out
}

func remoteAddrIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if net.ParseIP(addr) == nil {
		return "unknown"
	}
	return addr
}

// isTrusted matches exact IPs and CIDR ranges
func isTrusted(ip string, trusted []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, t := range trusted {
		if strings.Contains(t, "/") {
			if _, cidr, err := net.ParseCIDR(t); err == nil && cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if tip := net.ParseIP(t); tip != nil && tip.Equal(parsed) {
			return true
		}
	}
	return false
}
