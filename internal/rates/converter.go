package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Moxx-Company/Nomadly2-sub000/internal/entities"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/metrics"
)

// fallbackRates is the static last-resort table. Stale pricing is accepted:
// reconciliation acts on these rather than stalling orders when the live
// quote service is down.
var fallbackRates = map[string]float64{
	"btc":        67000,
	"eth":        3657,
	"ltc":        85,
	"doge":       0.32,
	"trx":        0.18,
	"bch":        480,
	"usdt":       1.0,
	"usdt_erc20": 1.0,
	"usdt_trc20": 1.0,
}

// Converter prices crypto amounts in USD. Live quotes come from a
// FastForex-style API and are cached for a short TTL; on any failure the
// static fallback table is used and the result is flagged as such.
type Converter struct {
	logger *slog.Logger
	apiKey string
	apiURL string
	client *http.Client

	cacheTTL time.Duration
	mu       sync.RWMutex
	cache    map[string]entities.ConversionQuote
}

func NewConverter(logger *slog.Logger, apiKey, apiURL string, timeout, cacheTTL time.Duration) *Converter {
	if apiURL == "" {
		apiURL = "https://api.fastforex.io"
	}

	if apiKey == "" {
		logger.Warn("Rate service API key is empty, conversions will use fallback rates")
	}

	return &Converter{
		logger:   logger,
		apiKey:   apiKey,
		apiURL:   strings.TrimRight(apiURL, "/"),
		client:   &http.Client{Timeout: timeout},
		cacheTTL: cacheTTL,
		cache:    make(map[string]entities.ConversionQuote),
	}
}

// ToUSD converts a crypto amount to USD cents. It never fails: a missing or
// unreachable live rate degrades to the fallback table, and an unknown
// currency degrades to a zero rate. The returned source lets callers treat
// fallback-derived values as lower-confidence.
func (c *Converter) ToUSD(ctx context.Context, currency string, amount float64) (entities.Cents, string) {
	quote := c.quote(ctx, currency)

	usd := entities.CentsFromUSD(amount * quote.USDRate)

	if quote.Source == entities.RateSourceFallback {
		metrics.FallbackRateUses.Inc()
		c.logger.WarnContext(ctx, "Converted with fallback rate",
			"currency", currency, "amount", amount, "rate", quote.USDRate, "usd", usd.String())
	} else {
		c.logger.InfoContext(ctx, "Converted with live rate",
			"currency", currency, "amount", amount, "rate", quote.USDRate, "usd", usd.String())
	}

	return usd, quote.Source
}

// Quote returns the current per-unit USD rate for the currency.
func (c *Converter) Quote(ctx context.Context, currency string) entities.ConversionQuote {
	return c.quote(ctx, currency)
}

func (c *Converter) quote(ctx context.Context, currency string) entities.ConversionQuote {
	key := strings.ToLower(currency)

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()

	if ok && time.Since(cached.FetchedAt) < c.cacheTTL {
		return cached
	}

	rate, err := c.fetchLiveRate(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "Live rate fetch failed, using fallback",
			"currency", key, "error", err)
		return c.fallbackQuote(key)
	}

	quote := entities.ConversionQuote{
		Currency:  key,
		USDRate:   rate,
		FetchedAt: time.Now(),
		Source:    entities.RateSourceLive,
	}

	c.mu.Lock()
	c.cache[key] = quote
	c.mu.Unlock()

	return quote
}

func (c *Converter) fallbackQuote(currency string) entities.ConversionQuote {
	rate, ok := fallbackRates[currency]
	if !ok {
		// Unsupported currency: degrade to zero so reconciliation holds the
		// order instead of inventing value.
		c.logger.Error("No fallback rate for currency, degrading to zero", "currency", currency)
		rate = 0
	}

	return entities.ConversionQuote{
		Currency:  currency,
		USDRate:   rate,
		FetchedAt: time.Now(),
		Source:    entities.RateSourceFallback,
	}
}

type liveRateResponse struct {
	Price float64 `json:"price"`
	Error string  `json:"error"`
}

func (c *Converter) fetchLiveRate(ctx context.Context, currency string) (float64, error) {
	if c.apiKey == "" {
		return 0, fmt.Errorf("rate service not configured")
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("pair", strings.ToUpper(baseSymbol(currency))+"/USD")

	endpoint := fmt.Sprintf("%s/crypto/fetch-prices?%s", c.apiURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate service returned status %d", resp.StatusCode)
	}

	var result liveRateResponse
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode rate response: %w", err)
	}

	if result.Error != "" {
		return 0, fmt.Errorf("rate service error: %s", result.Error)
	}
	if result.Price <= 0 {
		return 0, fmt.Errorf("rate service returned non-positive price %f", result.Price)
	}

	return result.Price, nil
}

// baseSymbol strips network suffixes like usdt_trc20 down to the quoted asset.
func baseSymbol(currency string) string {
	if i := strings.Index(currency, "_"); i > 0 {
		return currency[:i]
	}
	return currency
}

// StartRefreshing keeps the cache warm so reconciliation rarely waits on a
// live quote. Refresh is independently timed, not gated by reconciliation.
func (c *Converter) StartRefreshing(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	currencies := make([]string, 0, len(fallbackRates))
	for currency := range fallbackRates {
		currencies = append(currencies, currency)
	}

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Rate refresh loop stopped")
			return
		case <-ticker.C:
			for _, currency := range currencies {
				c.quote(ctx, currency)
			}
		}
	}
}
