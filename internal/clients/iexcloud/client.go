// Package iexcloud provides the IEX Cloud source fetcher.
package iexcloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/domain"
)

// Client is an IEX Cloud API client implementing domain.SourceFetcher.
type Client struct {
	token   string
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new IEX Cloud client
func NewClient(token string, log zerolog.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: "https://cloud.iexapis.com/stable",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "iexcloud").Logger(),
	}
}

// Source returns the source identity for the fetcher registry.
func (c *Client) Source() domain.Source {
	return domain.SourceIEX
}

// chartRange picks the IEX chart range covering the requested window.
func chartRange(window domain.FetchRange) string {
	if window.IsZero() {
		return "1y"
	}
	span := time.Since(window.Start)
	switch {
	case span <= 31*24*time.Hour:
		return "1m"
	case span <= 93*24*time.Hour:
		return "3m"
	case span <= 186*24*time.Hour:
		return "6m"
	case span <= 366*24*time.Hour:
		return "1y"
	case span <= 2*366*24*time.Hour:
		return "2y"
	default:
		return "5y"
	}
}

// Fetch retrieves daily OHLCV bars for one symbol.
func (c *Client) Fetch(ctx context.Context, symbol string, timeframe domain.Timeframe, window domain.FetchRange) (*domain.Frame, error) {
	reqURL := fmt.Sprintf("%s/stock/%s/chart/%s?token=%s",
		c.baseURL, url.PathEscape(symbol), chartRange(window), url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.SourceUnavailableError{Source: domain.SourceIEX, Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	// IEX returns 404 for unknown symbols
	if resp.StatusCode == http.StatusNotFound {
		return nil, &domain.SymbolNotFoundError{Source: domain.SourceIEX, Symbol: symbol}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &domain.SourceUnavailableError{
			Source: domain.SourceIEX,
			Symbol: symbol,
			Err:    fmt.Errorf("IEX Cloud API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.SourceUnavailableError{Source: domain.SourceIEX, Symbol: symbol, Err: err}
	}

	var bars []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	}
	if err := json.Unmarshal(body, &bars); err != nil {
		return nil, &domain.SourceUnavailableError{
			Source: domain.SourceIEX,
			Symbol: symbol,
			Err:    fmt.Errorf("failed to parse response: %w", err),
		}
	}

	frame := domain.NewFrame(domain.PriceColumns...)
	for _, bar := range bars {
		date, err := time.Parse("2006-01-02", bar.Date)
		if err != nil {
			continue
		}
		if !window.Contains(date) {
			continue
		}
		if err := frame.AppendRow(date.UTC(), bar.Open, bar.High, bar.Low, bar.Close, bar.Volume, symbol); err != nil {
			return nil, err
		}
	}

	c.log.Info().
		Str("symbol", symbol).
		Int("bars", frame.NumRows()).
		Msg("Fetched chart data")

	return frame, nil
}
