package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lockstats/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cvx = "0x4e3fbd56cd56c3e72c1403e103b45db9da5b9d2b"

func TestStatic(t *testing.T) {
	s, err := NewStatic(map[string]config.StaticToken{
		"0x4E3FBD56CD56c3e72c1403e103b45Db9da5B9D2B": {Decimals: 18, Symbol: "CVX", USDRate: "2.5"},
		"0xnoquote": {Decimals: 6, Symbol: "NQ"},
	})
	require.NoError(t, err)

	ctx := context.Background()

	rate, err := s.USDRate(ctx, cvx)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("2.5")))

	meta, err := s.TokenMetadata(ctx, cvx)
	require.NoError(t, err)
	assert.Equal(t, Metadata{Decimals: 18, Symbol: "CVX"}, meta)

	_, err = s.USDRate(ctx, "0xnoquote")
	assert.ErrorIs(t, err, ErrNoQuote)

	_, err = s.TokenMetadata(ctx, "0xmissing")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestStatic_InvalidConfig(t *testing.T) {
	_, err := NewStatic(map[string]config.StaticToken{"0x1": {Decimals: 18, USDRate: "abc"}})
	assert.Error(t, err)

	_, err = NewStatic(map[string]config.StaticToken{"0x1": {Decimals: -1}})
	assert.Error(t, err)
}

func newOracleServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/prices/"+cvx, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"usd":"2.35"}`))
	})
	mux.HandleFunc("/tokens/"+cvx, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"decimals":18,"symbol":"CVX"}`))
	})
	mux.HandleFunc("/prices/0xbroken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	mux.HandleFunc("/tokens/0xnodecimals", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"X"}`))
	})
	mux.HandleFunc("/tokens/0xnegative", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"decimals":-6,"symbol":"NEG"}`))
	})
	mux.HandleFunc("/tokens/0xhuge", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"decimals":78,"symbol":"HUGE"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTP_USDRate(t *testing.T) {
	srv := newOracleServer(t)
	h, err := NewHTTP(srv.URL+"/", time.Second)
	require.NoError(t, err)

	ctx := context.Background()

	rate, err := h.USDRate(ctx, cvx)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("2.35")))

	_, err = h.USDRate(ctx, "0xunknown")
	assert.ErrorIs(t, err, ErrNoQuote)

	_, err = h.USDRate(ctx, "0xbroken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoQuote)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTP_TokenMetadata(t *testing.T) {
	srv := newOracleServer(t)
	h, err := NewHTTP(srv.URL, time.Second)
	require.NoError(t, err)

	ctx := context.Background()

	meta, err := h.TokenMetadata(ctx, cvx)
	require.NoError(t, err)
	assert.Equal(t, int32(18), meta.Decimals)
	assert.Equal(t, "CVX", meta.Symbol)

	_, err = h.TokenMetadata(ctx, "0xunknown")
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = h.TokenMetadata(ctx, "0xnodecimals")
	assert.Error(t, err)

	_, err = h.TokenMetadata(ctx, "0xnegative")
	assert.ErrorContains(t, err, "out of range")

	_, err = h.TokenMetadata(ctx, "0xhuge")
	assert.ErrorContains(t, err, "out of range")
}

func TestNewHTTP_InvalidURL(t *testing.T) {
	_, err := NewHTTP("not a url", time.Second)
	assert.Error(t, err)
}
