// Package oracle supplies current market prices for asset symbols.
//
// The settlement engine treats a price fetch failure as a retry condition,
// never as a settled outcome, so implementations must return
// ErrPriceUnavailable rather than a stale or guessed price.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"options-core/pkg/cache"

	"go.uber.org/zap"
)

// ErrPriceUnavailable reports that no sufficiently fresh price exists for a
// symbol at the point of call.
var ErrPriceUnavailable = errors.New("price unavailable")

// PriceOracle answers "what is symbol worth right now".
type PriceOracle interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// RESTOracle fetches spot prices from the Binance public ticker endpoint and
// keeps a short-lived cache so a settlement sweep over many trades on the same
// asset costs one upstream call.
type RESTOracle struct {
	BaseURL    string
	HTTPClient *http.Client
	Cache      *cache.PriceCache
	MaxAge     time.Duration
}

// NewRESTOracle builds a REST oracle; baseURL defaults to the public API.
func NewRESTOracle(baseURL string, maxAge time.Duration) *RESTOracle {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Second
	}
	return &RESTOracle{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Cache:      cache.NewPriceCache(),
		MaxAge:     maxAge,
	}
}

// Price returns the current price for symbol, serving from cache while the
// entry is younger than MaxAge.
func (o *RESTOracle) Price(ctx context.Context, symbol string) (float64, error) {
	if p, age, ok := o.Cache.GetWithAge(symbol); ok && age < o.MaxAge {
		return p, nil
	}

	p, err := o.fetch(ctx, symbol)
	if err != nil {
		zap.L().Warn("oracle fetch failed",
			zap.String("symbol", symbol), zap.Error(err))
		return 0, fmt.Errorf("%w: %s", ErrPriceUnavailable, symbol)
	}
	o.Cache.Set(symbol, p)
	return p, nil
}

func (o *RESTOracle) fetch(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	u := fmt.Sprintf("%s/api/v3/ticker/price?%s", o.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}

	res, err := o.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ticker status %d", res.StatusCode)
	}

	var body struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, err
	}

	p, err := strconv.ParseFloat(body.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", body.Price, err)
	}
	if p <= 0 {
		return 0, fmt.Errorf("non-positive price %v", p)
	}
	return p, nil
}
