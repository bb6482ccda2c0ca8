package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// RateProvider looks up the exchange rate from a foreign currency into the
// base currency. The returned rate is always rateToBase: units of base
// currency per 1 unit of the foreign currency.
type RateProvider interface {
	RateToBase(ctx context.Context, code string) (float64, error)
}

// APIRateProvider fetches rates from an exchangerate-api style endpoint
// (GET {url}/latest/{base}) and caches the full rate table for a TTL. It is
// safe for concurrent use.
type APIRateProvider struct {
	url    string
	base   string
	client *http.Client
	ttl    time.Duration

	mu      sync.RWMutex
	rates   map[string]float64
	fetched time.Time
}

// NewAPIRateProvider creates a rate provider for the given API base URL and
// base currency
func NewAPIRateProvider(url, base string) *APIRateProvider {
	return &APIRateProvider{
		url:  url,
		base: base,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		ttl: 1 * time.Hour,
	}
}

// RateToBase returns the rate from code into the provider's base currency.
// Same-currency lookups return 1 without touching the network. Cached tables
// older than the TTL are refreshed; if the refresh fails a still-populated
// cache is used rather than failing the caller.
func (p *APIRateProvider) RateToBase(ctx context.Context, code string) (float64, error) {
	if code == p.base {
		return 1, nil
	}

	p.mu.RLock()
	rates, age := p.rates, time.Since(p.fetched)
	p.mu.RUnlock()

	if rates == nil || age >= p.ttl {
		if err := p.refresh(ctx); err != nil {
			if rates == nil {
				return 0, err
			}
			slog.Warn("Rate refresh failed, using cached table", "age", age, "error", err)
		}
		p.mu.RLock()
		rates = p.rates
		p.mu.RUnlock()
	}

	perBase, ok := rates[code]
	if !ok || perBase <= 0 {
		return 0, fmt.Errorf("no rate for currency %s", code)
	}

	// The API reports base->foreign rates; invert once here so everything
	// downstream carries rateToBase.
	return InverseRate(perBase), nil
}

func (p *APIRateProvider) refresh(ctx context.Context) error {
	url := fmt.Sprintf("%s/latest/%s", p.url, p.base)
	slog.Info("Fetching exchange rates", "base", p.base)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("building rates request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rates API returned status %d", resp.StatusCode)
	}

	var body struct {
		ConversionRates map[string]float64 `json:"conversion_rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding rates response: %w", err)
	}
	if len(body.ConversionRates) == 0 {
		return fmt.Errorf("rates response contained no rates")
	}

	p.mu.Lock()
	p.rates = body.ConversionRates
	p.fetched = time.Now()
	p.mu.Unlock()

	return nil
}

// StaticRateProvider serves rates from a fixed table; used when no rates API
// is configured. Lookups for the base currency always succeed with rate 1.
type StaticRateProvider struct {
	Base  string
	Rates map[string]float64 // code -> rateToBase
}

// RateToBase returns the configured rate for code
func (p *StaticRateProvider) RateToBase(_ context.Context, code string) (float64, error) {
	if code == p.Base {
		return 1, nil
	}
	rate, ok := p.Rates[code]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no rate configured for currency %s", code)
	}
	return rate, nil
}
