package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

/*
	HTTP collaborator:
		GET {base}/tokens/{address} -> {"decimals": 18, "symbol": "CVX"}
		GET {base}/prices/{address} -> {"usd": "2.35"}
	404 means unknown token / no quote.
*/

type HTTP struct {
	base   string
	client *http.Client
}

var (
	_ PriceOracle      = (*HTTP)(nil)
	_ MetadataProvider = (*HTTP)(nil)
)

func NewHTTP(baseURL string, timeout time.Duration) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid oracle base url %q", baseURL)
	}

	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HTTP{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
	}, nil
}

type priceResponse struct {
	USD *decimal.Decimal `json:"usd"`
}

type tokenResponse struct {
	Decimals *int32 `json:"decimals"`
	Symbol   string `json:"symbol"`
}

func (h *HTTP) USDRate(ctx context.Context, token string) (decimal.Decimal, error) {
	var resp priceResponse
	if err := h.get(ctx, "/prices/"+url.PathEscape(token), &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, token)
		}
		return decimal.Zero, err
	}

	if resp.USD == nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoQuote, token)
	}
	return *resp.USD, nil
}

func (h *HTTP) TokenMetadata(ctx context.Context, token string) (Metadata, error) {
	var resp tokenResponse
	if err := h.get(ctx, "/tokens/"+url.PathEscape(token), &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrUnknownToken, token)
		}
		return Metadata{}, err
	}

	if resp.Decimals == nil {
		return Metadata{}, fmt.Errorf("oracle returned no decimals for %s", token)
	}
	if !validDecimals(*resp.Decimals) {
		return Metadata{}, fmt.Errorf("oracle returned decimals %d out of range for %s", *resp.Decimals, token)
	}
	return Metadata{Decimals: *resp.Decimals, Symbol: resp.Symbol}, nil
}

var errNotFound = errors.New("not found")

func (h *HTTP) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build oracle request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("oracle request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return errNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("oracle %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err = json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode oracle response %s: %w", path, err)
	}
	return nil
}
