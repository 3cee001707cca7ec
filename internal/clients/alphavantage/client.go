// Package alphavantage provides the Alpha Vantage source fetcher.
//
// The free tier allows 25 requests per day; the client tracks a daily counter
// and refuses to burn requests it knows will be rejected.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/domain"
)

const dailyRequestLimit = 25

// ErrRateLimitExceeded is returned when the daily request budget is spent.
type ErrRateLimitExceeded struct{}

func (e ErrRateLimitExceeded) Error() string {
	return fmt.Sprintf("Alpha Vantage daily request limit of %d exceeded", dailyRequestLimit)
}

// Client is an Alpha Vantage API client implementing domain.SourceFetcher.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	mu           sync.Mutex
	requestCount int
	countDay     string // YYYY-MM-DD the counter belongs to
}

// NewClient creates a new Alpha Vantage client
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: "https://www.alphavantage.co",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "alphavantage").Logger(),
	}
}

// Source returns the source identity for the fetcher registry.
func (c *Client) Source() domain.Source {
	return domain.SourceAlphaVantage
}

// GetRemainingRequests returns how many requests are left today.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollCounterLocked()
	return dailyRequestLimit - c.requestCount
}

// checkRateLimit consumes one request from the daily budget.
func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollCounterLocked()
	if c.requestCount >= dailyRequestLimit {
		return ErrRateLimitExceeded{}
	}
	c.requestCount++
	return nil
}

// rollCounterLocked resets the counter when the UTC day changes.
func (c *Client) rollCounterLocked() {
	today := time.Now().UTC().Format("2006-01-02")
	if c.countDay != today {
		c.countDay = today
		c.requestCount = 0
	}
}

// Fetch retrieves daily OHLCV bars for one symbol. Alpha Vantage's free
// endpoints only serve daily bars; other timeframes degrade to daily.
func (c *Client) Fetch(ctx context.Context, symbol string, timeframe domain.Timeframe, window domain.FetchRange) (*domain.Frame, error) {
	if err := c.checkRateLimit(); err != nil {
		return nil, &domain.SourceUnavailableError{Source: domain.SourceAlphaVantage, Symbol: symbol, Err: err}
	}

	params := url.Values{}
	params.Add("function", "TIME_SERIES_DAILY")
	params.Add("symbol", symbol)
	params.Add("outputsize", "full")
	params.Add("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.SourceUnavailableError{Source: domain.SourceAlphaVantage, Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &domain.SourceUnavailableError{
			Source: domain.SourceAlphaVantage,
			Symbol: symbol,
			Err:    fmt.Errorf("Alpha Vantage API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.SourceUnavailableError{Source: domain.SourceAlphaVantage, Symbol: symbol, Err: err}
	}

	var result struct {
		ErrorMessage string                       `json:"Error Message"`
		Note         string                       `json:"Note"`
		TimeSeries   map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &domain.SourceUnavailableError{
			Source: domain.SourceAlphaVantage,
			Symbol: symbol,
			Err:    fmt.Errorf("failed to parse response: %w", err),
		}
	}

	// "Error Message" means the symbol is unknown; "Note" means throttling
	if result.ErrorMessage != "" {
		return nil, &domain.SymbolNotFoundError{Source: domain.SourceAlphaVantage, Symbol: symbol}
	}
	if result.Note != "" {
		return nil, &domain.SourceUnavailableError{
			Source: domain.SourceAlphaVantage,
			Symbol: symbol,
			Err:    fmt.Errorf("Alpha Vantage throttled the request: %s", result.Note),
		}
	}

	// Map keys are dates; sort ascending for a chronological frame
	dates := make([]string, 0, len(result.TimeSeries))
	for d := range result.TimeSeries {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	frame := domain.NewFrame(domain.PriceColumns...)
	for _, d := range dates {
		date, err := time.Parse("2006-01-02", d)
		if err != nil {
			continue
		}
		if !window.Contains(date) {
			continue
		}

		bar := result.TimeSeries[d]
		open, err1 := strconv.ParseFloat(bar["1. open"], 64)
		high, err2 := strconv.ParseFloat(bar["2. high"], 64)
		low, err3 := strconv.ParseFloat(bar["3. low"], 64)
		closePrice, err4 := strconv.ParseFloat(bar["4. close"], 64)
		volume, err5 := strconv.ParseInt(bar["5. volume"], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			c.log.Warn().Str("symbol", symbol).Str("date", d).Msg("Skipping malformed bar")
			continue
		}

		if err := frame.AppendRow(date.UTC(), open, high, low, closePrice, volume, symbol); err != nil {
			return nil, err
		}
	}

	c.log.Info().
		Str("symbol", symbol).
		Int("bars", frame.NumRows()).
		Int("requests_remaining", c.GetRemainingRequests()).
		Msg("Fetched daily series")

	return frame, nil
}
