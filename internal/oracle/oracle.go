package oracle

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNoQuote      = errors.New("no usd quote for token")
	ErrUnknownToken = errors.New("unknown token")
)

// PriceOracle returns the current USD rate of one whole token
type PriceOracle interface {
	USDRate(ctx context.Context, token string) (decimal.Decimal, error)
}

// uint256 holds at most 78 decimal digits
const MaxDecimals = 77

func validDecimals(d int32) bool {
	return d >= 0 && d <= MaxDecimals
}

type Metadata struct {
	Decimals int32
	Symbol   string
}

// MetadataProvider returns ERC-20 precision and symbol
type MetadataProvider interface {
	TokenMetadata(ctx context.Context, token string) (Metadata, error)
}
