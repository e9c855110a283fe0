package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"lockstats/internal/config"
	"lockstats/internal/domain"
	"lockstats/internal/metrics"
	"lockstats/internal/oracle"
	"lockstats/internal/store"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

var (
	// no decimals -> no token; the event must be retried, never guessed
	ErrMetadataUnavailable = errors.New("token metadata unavailable")
	// only returned with the "fail" fallback
	ErrRateUnavailable = errors.New("usd rate unavailable")
)

type cachedRate struct {
	rate      decimal.Decimal
	fetchedAt time.Time
}

// Resolver lazily creates Token entities and converts raw amounts to USD
type Resolver struct {
	log      logger.Logger
	store    store.Store
	meta     oracle.MetadataProvider
	prices   oracle.PriceOracle
	fallback config.RateFallback
	rateTTL  time.Duration
	now      func() time.Time

	mu    sync.Mutex
	rates map[string]cachedRate
}

func NewResolver(
	log logger.Logger,
	cfg *config.OracleConfig,
	st store.Store,
	meta oracle.MetadataProvider,
	prices oracle.PriceOracle,
) (*Resolver, error) {
	if cfg == nil {
		return nil, errors.New("oracle config is required to the token resolver")
	}
	if st == nil {
		return nil, errors.New("store is required to the token resolver")
	}
	if meta == nil || prices == nil {
		return nil, errors.New("metadata provider and price oracle are required to the token resolver")
	}

	fallback := cfg.Fallback
	if fallback == "" {
		fallback = config.RateFallbackZero
	}

	return &Resolver{
		log:      log,
		store:    st,
		meta:     meta,
		prices:   prices,
		fallback: fallback,
		rateTTL:  cfg.RateTTL,
		now:      time.Now,
		rates:    make(map[string]cachedRate, 16),
	}, nil
}

// Resolve returns the stored token or fetches metadata once and persists it
func (r *Resolver) Resolve(ctx context.Context, address string) (*domain.Token, error) {
	tok, created, err := store.GetOrCreate(ctx, r.store, address, newToken)
	if err != nil {
		return nil, fmt.Errorf("load token %s: %w", address, err)
	}
	if !created {
		return tok, nil
	}

	meta, err := r.meta.TokenMetadata(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %w", ErrMetadataUnavailable, address, err)
	}

	tok.Decimals = meta.Decimals
	tok.Symbol = meta.Symbol

	if err = r.store.Save(ctx, tok); err != nil {
		return nil, fmt.Errorf("save token %s: %w", address, err)
	}

	r.log.Infof("Created token %s (%s, decimals=%d)", tok.ID, tok.Symbol, tok.Decimals)
	return tok, nil
}

// USDValue = rate(token) * raw / 10^decimals
func (r *Resolver) USDValue(ctx context.Context, address string, raw *big.Int) (decimal.Decimal, error) {
	tok, err := r.Resolve(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}

	rate, err := r.rate(ctx, address)
	if err != nil {
		return decimal.Zero, err
	}

	return Convert(raw, tok.Decimals, rate), nil
}

// Convert scales a raw integer amount by 10^-decimals and applies the rate
func Convert(raw *big.Int, decimals int32, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals).Mul(rate)
}

func (r *Resolver) rate(ctx context.Context, address string) (decimal.Decimal, error) {
	if rate, ok := r.cached(address); ok {
		return rate, nil
	}

	rate, err := r.prices.USDRate(ctx, address)
	if err == nil {
		r.remember(address, rate)
		return rate, nil
	}

	if ctx.Err() != nil {
		return decimal.Zero, ctx.Err()
	}

	if r.fallback == config.RateFallbackFail {
		return decimal.Zero, fmt.Errorf("%w for %s: %w", ErrRateUnavailable, address, err)
	}

	reason := "error"
	if errors.Is(err, oracle.ErrNoQuote) {
		reason = "no_quote"
	}
	metrics.RateFallbacks.WithLabelValues(reason).Inc()
	r.log.Warnf("No USD rate for %s, recording zero: %v", address, err)

	return decimal.Zero, nil
}

func (r *Resolver) cached(address string) (decimal.Decimal, bool) {
	if r.rateTTL <= 0 {
		return decimal.Zero, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rates[address]
	if !ok || r.now().Sub(c.fetchedAt) >= r.rateTTL {
		return decimal.Zero, false
	}
	return c.rate, true
}

func (r *Resolver) remember(address string, rate decimal.Decimal) {
	if r.rateTTL <= 0 {
		return
	}

	r.mu.Lock()
	r.rates[address] = cachedRate{rate: rate, fetchedAt: r.now()}
	r.mu.Unlock()
}

func newToken(id string) *domain.Token {
	return &domain.Token{ID: id}
}
