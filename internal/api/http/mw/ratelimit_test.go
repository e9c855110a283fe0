package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lockstats/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(http.StatusOK)
	})
}

func request(remote, auth string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/users/x", nil)
	req.RemoteAddr = remote
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

func TestNewRateLimit(t *testing.T) {
	_, rdb := setupTestRedis(t)

	_, err := NewRateLimit(newTestLogger(), nil, rdb, nil)
	assert.Error(t, err)

	_, err = NewRateLimit(newTestLogger(), &config.RateLimitConfig{}, nil, nil)
	assert.Error(t, err)

	cfg := &config.RateLimitConfig{}
	m, err := NewRateLimit(newTestLogger(), cfg, rdb, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, m.Cfg.ByIP.TTL)
	assert.Equal(t, 2*time.Minute, m.Cfg.ByJWT.TTL)
	assert.Zero(t, cfg.ByIP.TTL, "caller config is not mutated")
}

func TestRateLimit_IPBurst(t *testing.T) {
	_, rdb := setupTestRedis(t)

	m, err := NewRateLimit(newTestLogger(), &config.RateLimitConfig{
		ByIP:  config.RateBucket{RefillPerSec: 1, Burst: 3, TTL: time.Minute},
		ByJWT: config.RateBucket{RefillPerSec: 100, Burst: 100, TTL: time.Minute},
	}, rdb, nil)
	require.NoError(t, err)

	calls := 0
	handler := m.Handler(okHandler(&calls))

	for i := 1; i <= 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request("192.168.1.100:12345", ""))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit-IP"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Remaining-IP"))
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit-JWT"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request("192.168.1.100:12345", ""))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, 3, calls)

	// another client has its own bucket
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, request("192.168.1.101:12345", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_JWTBucket(t *testing.T) {
	_, rdb := setupTestRedis(t)
	verifier, key := newTestVerifier(t, "")

	m, err := NewRateLimit(newTestLogger(), &config.RateLimitConfig{
		ByIP:  config.RateBucket{RefillPerSec: 100, Burst: 100, TTL: time.Minute},
		ByJWT: config.RateBucket{RefillPerSec: 1, Burst: 2, TTL: time.Minute},
	}, rdb, verifier)
	require.NoError(t, err)

	calls := 0
	handler := m.Handler(okHandler(&calls))

	alice := "Bearer " + createTestToken(t, key, "alice", "", time.Hour)
	bob := "Bearer " + createTestToken(t, key, "bob", "", time.Hour)

	// the subject bucket follows the token across IPs
	for i, remote := range []string{"10.1.1.1:1", "10.1.1.2:1"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request(remote, alice))
		assert.Equal(t, http.StatusOK, rec.Code, "request %d", i)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit-JWT"))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request("10.1.1.3:1", alice))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, request("10.1.1.3:1", bob))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 3, calls)
}

func TestRateLimit_FailOpen(t *testing.T) {
	mr, rdb := setupTestRedis(t)

	m, err := NewRateLimit(newTestLogger(), &config.RateLimitConfig{
		ByIP: config.RateBucket{RefillPerSec: 1, Burst: 1},
	}, rdb, nil)
	require.NoError(t, err)

	calls := 0
	handler := m.Handler(okHandler(&calls))

	mr.Close()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, request("192.168.1.100:12345", ""))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 3, calls)
}

func TestCalculateRetryAfter(t *testing.T) {
	m := &RateLimitMiddleware{Cfg: &config.RateLimitConfig{
		ByIP:  config.RateBucket{RefillPerSec: 10},
		ByJWT: config.RateBucket{RefillPerSec: 0},
	}}
	assert.Equal(t, 1, m.calculateRetryAfter(false, true))
	assert.Equal(t, 1, m.calculateRetryAfter(true, false))

	m.Cfg.ByJWT.RefillPerSec = 1
	m.Cfg.ByIP.RefillPerSec = 1
	assert.Equal(t, 1, m.calculateRetryAfter(false, false))
}

func TestExtractClientIP(t *testing.T) {
	testCases := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		trusted    []string
		expectedIP string
	}{
		{name: "simple_remote_addr", remoteAddr: "192.168.1.100:12345", expectedIP: "192.168.1.100"},
		{
			name:       "xff_first_hop_without_proxy_list",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.1, 203.0.113.2"},
			expectedIP: "203.0.113.1",
		},
		{
			name:       "x_real_ip",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Real-IP": "203.0.113.50"},
			expectedIP: "203.0.113.50",
		},
		{
			name:       "untrusted_peer_cannot_spoof",
			remoteAddr: "198.51.100.7:443",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4"},
			trusted:    []string{"10.0.0.0/8"},
			expectedIP: "198.51.100.7",
		},
		{
			name:       "trusted_chain_right_to_left",
			remoteAddr: "10.0.0.1:12345",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4, 203.0.113.9, 10.0.0.5"},
			trusted:    []string{"10.0.0.0/8"},
			expectedIP: "203.0.113.9",
		},
		{name: "remote_addr_without_port", remoteAddr: "192.168.1.100", expectedIP: "192.168.1.100"},
		{name: "invalid_remote_addr", remoteAddr: "invalid", expectedIP: "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.expectedIP, extractClientIP(req, tc.trusted))
		})
	}
}

func TestIsTrusted(t *testing.T) {
	assert.True(t, isTrusted("192.168.1.1", []string{"192.168.1.1", "10.0.0.1"}))
	assert.False(t, isTrusted("203.0.113.1", []string{"192.168.1.1"}))
	assert.True(t, isTrusted("192.168.1.50", []string{"192.168.1.0/24"}))
	assert.False(t, isTrusted("192.168.2.50", []string{"192.168.1.0/24"}))
	assert.False(t, isTrusted("192.168.1.1", nil))
	assert.False(t, isTrusted("invalid", []string{"192.168.1.0/24"}))
}

func TestParseXFF(t *testing.T) {
	assert.Equal(t, []string{"192.168.1.1", "10.0.0.1"}, parseXFF("  192.168.1.1  , invalid,  10.0.0.1  "))
	assert.Equal(t, []string{}, parseXFF(""))
}

func TestRemoteAddrIP(t *testing.T) {
	assert.Equal(t, "192.168.1.1", remoteAddrIP("  192.168.1.1:12345  "))
	assert.Equal(t, "2001:db8::1", remoteAddrIP("[2001:db8::1]:8080"))
	assert.Equal(t, "unknown", remoteAddrIP("invalid"))
}
