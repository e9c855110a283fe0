package oracle

import (
	"context"
	"fmt"
	"strings"

	"lockstats/internal/config"

	"github.com/shopspring/decimal"
)

type staticEntry struct {
	meta Metadata
	rate *decimal.Decimal
}

// Static serves metadata and rates from config; used for dev and replays
type Static struct {
	tokens map[string]staticEntry
}

var (
	_ PriceOracle      = (*Static)(nil)
	_ MetadataProvider = (*Static)(nil)
)

func NewStatic(tokens map[string]config.StaticToken) (*Static, error) {
	s := &Static{tokens: make(map[string]staticEntry, len(tokens))}

	for addr, t := range tokens {
		if !validDecimals(t.Decimals) {
			return nil, fmt.Errorf("token %s: decimals %d out of range", addr, t.Decimals)
		}

		e := staticEntry{meta: Metadata{Decimals: t.Decimals, Symbol: t.Symbol}}
		if t.USDRate != "" {
			rate, err := decimal.NewFromString(t.USDRate)
			if err != nil {
				return nil, fmt.Errorf("token %s: invalid usd_rate %q: %w", addr, t.USDRate, err)
			}
			e.rate = &rate
		}

		s.tokens[strings.ToLower(addr)] = e
	}

	return s, nil
}

func (s *Static) USDRate(_ context.Context, token string) (decimal.Decimal, error) {
	e, ok := s.tokens[strings.ToLower(token)]
	if !ok || e.rate == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, token)
	}
	return *e.rate, nil
}

func (s *Static) TokenMetadata(_ context.Context, token string) (Metadata, error) {
	e, ok := s.tokens[strings.ToLower(token)]
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return e.meta, nil
}
