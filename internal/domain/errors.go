package domain

import "fmt"

// DatasetNotFoundError indicates a dataset id is not present in the store.
// Surfaced to the caller on explicit single-id lookups, never retried.
type DatasetNotFoundError struct {
	ID string
}

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("dataset not found: %s", e.ID)
}

// InvalidDatasetError indicates a payload failed structural validation at
// registration time. The payload is rejected immediately, never partially
// stored.
type InvalidDatasetError struct {
	Reason string
}

func (e *InvalidDatasetError) Error() string {
	return fmt.Sprintf("invalid dataset: %s", e.Reason)
}

// UnknownSourceError indicates a source name is not in the fetcher registry.
// This is a caller or configuration bug, not a transient condition.
type UnknownSourceError struct {
	Name string
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown data source: %s", e.Name)
}

// UnknownTimeframeError indicates a bar interval outside the supported set.
type UnknownTimeframeError struct {
	Name string
}

func (e *UnknownTimeframeError) Error() string {
	return fmt.Sprintf("unknown timeframe: %s", e.Name)
}

// SourceUnavailableError indicates a transient upstream failure (network,
// auth, rate limit, timeout). Batch fetches log and omit the affected symbol
// instead of failing the whole request.
type SourceUnavailableError struct {
	Source Source
	Symbol string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable for %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// SymbolNotFoundError indicates the upstream reports the symbol does not
// exist. Treated like SourceUnavailableError for batch purposes.
type SymbolNotFoundError struct {
	Source Source
	Symbol string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol %s not found on %s", e.Symbol, e.Source)
}
