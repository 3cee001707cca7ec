package domain

import (
	"context"
	"time"
)

// Source identifies an external data provider strategy. The set is closed:
// both the UI option list and the fetcher registry are built from AllSources,
// so a dropdown label can never drift from the registry keys.
type Source string

const (
	SourceYahoo        Source = "yahoo"
	SourceAlphaVantage Source = "alpha_vantage"
	SourceIEX          Source = "iex"
	SourceMock         Source = "mock"
)

// AllSources lists every valid source, in UI display order.
var AllSources = []Source{SourceYahoo, SourceAlphaVantage, SourceIEX, SourceMock}

// ParseSource validates a free-form source name (e.g. from an HTTP request)
// against the closed enumeration.
func ParseSource(name string) (Source, error) {
	for _, s := range AllSources {
		if string(s) == name {
			return s, nil
		}
	}
	return "", &UnknownSourceError{Name: name}
}

// Timeframe is a bar interval in provider-neutral notation.
type Timeframe string

const (
	Timeframe1Min  Timeframe = "1m"
	Timeframe5Min  Timeframe = "5m"
	Timeframe1Hour Timeframe = "1h"
	Timeframe1Day  Timeframe = "1d"
	Timeframe1Week Timeframe = "1wk"
)

// AllTimeframes is the closed set of supported bar intervals.
var AllTimeframes = []Timeframe{
	Timeframe1Min,
	Timeframe5Min,
	Timeframe1Hour,
	Timeframe1Day,
	Timeframe1Week,
}

// ParseTimeframe validates a timeframe string against the supported set.
func ParseTimeframe(name string) (Timeframe, error) {
	for _, tf := range AllTimeframes {
		if string(tf) == name {
			return tf, nil
		}
	}
	return "", &UnknownTimeframeError{Name: name}
}

// FetchRange is an optional date window for a fetch. Zero times mean
// "provider default period".
type FetchRange struct {
	Start time.Time
	End   time.Time
}

// IsZero reports whether no explicit window was requested.
func (r FetchRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether t falls inside the window. Each bound is
// optional; a zero bound leaves that side of the window open.
func (r FetchRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// SourceFetcher is the per-source strategy: obtain a price frame for one
// symbol. Implementations return SourceUnavailableError for transient
// upstream failures and SymbolNotFoundError for unknown symbols; the caller
// decides how those affect a multi-symbol batch.
//
// Fetch must honour ctx cancellation - the access manager imposes a fetch
// timeout so a hung provider cannot block a UI callback indefinitely.
type SourceFetcher interface {
	Source() Source
	Fetch(ctx context.Context, symbol string, timeframe Timeframe, window FetchRange) (*Frame, error)
}
