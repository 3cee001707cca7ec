// Package yahoo provides the Yahoo Finance source fetcher.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/domain"
)

// Client is a Yahoo Finance API client implementing domain.SourceFetcher.
// Uses the chart API which returns JSON (more reliable than CSV download).
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Yahoo Finance client
func NewClient(log zerolog.Logger) *Client {
	return &Client{
		baseURL: "https://query1.finance.yahoo.com",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With().Str("client", "yahoo").Logger(),
	}
}

// Source returns the source identity for the fetcher registry.
func (c *Client) Source() domain.Source {
	return domain.SourceYahoo
}

// intervalFor maps provider-neutral timeframes to Yahoo chart intervals.
func intervalFor(tf domain.Timeframe) string {
	switch tf {
	case domain.Timeframe1Min:
		return "1m"
	case domain.Timeframe5Min:
		return "5m"
	case domain.Timeframe1Hour:
		return "1h"
	case domain.Timeframe1Week:
		return "1wk"
	default:
		return "1d"
	}
}

// Fetch retrieves OHLCV bars for one symbol. Without an explicit window,
// Yahoo's 1y range applies.
func (c *Client) Fetch(ctx context.Context, symbol string, timeframe domain.Timeframe, window domain.FetchRange) (*domain.Frame, error) {
	reqURL := c.baseURL + "/v8/finance/chart/" + url.QueryEscape(symbol)

	params := url.Values{}
	params.Add("interval", intervalFor(timeframe))
	if window.IsZero() {
		params.Add("range", "1y")
	} else {
		// Either bound may be omitted: an open start reaches back to the
		// epoch, an open end extends to now.
		start := int64(0)
		if !window.Start.IsZero() {
			start = window.Start.Unix()
		}
		end := time.Now().Unix()
		if !window.End.IsZero() {
			end = window.End.Unix()
		}
		params.Add("period1", strconv.FormatInt(start, 10))
		params.Add("period2", strconv.FormatInt(end, 10))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers to mimic browser
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.SourceUnavailableError{Source: domain.SourceYahoo, Symbol: symbol, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, &domain.SymbolNotFoundError{Source: domain.SourceYahoo, Symbol: symbol}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &domain.SourceUnavailableError{
			Source: domain.SourceYahoo,
			Symbol: symbol,
			Err:    fmt.Errorf("Yahoo Finance API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.SourceUnavailableError{Source: domain.SourceYahoo, Symbol: symbol, Err: err}
	}

	var result struct {
		Chart struct {
			Result []struct {
				Timestamp  []int64 `json:"timestamp"`
				Indicators struct {
					Quote []struct {
						Open   []float64 `json:"open"`
						High   []float64 `json:"high"`
						Low    []float64 `json:"low"`
						Close  []float64 `json:"close"`
						Volume []int64   `json:"volume"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
			Error *struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		} `json:"chart"`
	}

	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &domain.SourceUnavailableError{
			Source: domain.SourceYahoo,
			Symbol: symbol,
			Err:    fmt.Errorf("failed to parse response: %w", err),
		}
	}

	if apiErr := result.Chart.Error; apiErr != nil {
		// "Not Found" errors identify unknown symbols; anything else is upstream trouble
		if apiErr.Code == "Not Found" {
			return nil, &domain.SymbolNotFoundError{Source: domain.SourceYahoo, Symbol: symbol}
		}
		return nil, &domain.SourceUnavailableError{
			Source: domain.SourceYahoo,
			Symbol: symbol,
			Err:    fmt.Errorf("Yahoo Finance API error: %s: %s", apiErr.Code, apiErr.Description),
		}
	}

	frame := domain.NewFrame(domain.PriceColumns...)
	if len(result.Chart.Result) == 0 || len(result.Chart.Result[0].Indicators.Quote) == 0 {
		c.log.Warn().Str("symbol", symbol).Msg("No historical data returned")
		return frame, nil
	}

	chartData := result.Chart.Result[0]
	quote := chartData.Indicators.Quote[0]

	for i := range chartData.Timestamp {
		if i >= len(quote.Open) || i >= len(quote.High) || i >= len(quote.Low) || i >= len(quote.Close) {
			continue
		}
		// Yahoo sometimes returns null values
		if quote.Open[i] == 0 && quote.High[i] == 0 && quote.Low[i] == 0 && quote.Close[i] == 0 {
			continue
		}

		volume := int64(0)
		if i < len(quote.Volume) {
			volume = quote.Volume[i]
		}

		if err := frame.AppendRow(
			time.Unix(chartData.Timestamp[i], 0).UTC(),
			quote.Open[i],
			quote.High[i],
			quote.Low[i],
			quote.Close[i],
			volume,
			symbol,
		); err != nil {
			return nil, err
		}
	}

	c.log.Info().
		Str("symbol", symbol).
		Int("bars", frame.NumRows()).
		Msg("Fetched historical prices")

	return frame, nil
}
