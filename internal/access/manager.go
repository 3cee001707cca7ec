package access

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/domain"
	"github.com/tradepulse/datahub/internal/events"
	"github.com/tradepulse/datahub/internal/fetchcache"
)

// Manager is the single entry point for data reads: it composes the fetch
// cache, the source fetchers and the dataset store. One instance is shared by
// all modules - that sharing is what makes data survive across panel
// switches.
type Manager struct {
	store        *datasets.Store
	cache        *fetchcache.Cache
	fetchers     map[domain.Source]domain.SourceFetcher
	fetchTimeout time.Duration
	bus          *events.Bus
	log          zerolog.Logger

	// inflight de-duplicates concurrent fetches per fingerprint, preserving
	// the at-most-one-fetch-per-fingerprint-per-TTL-window guarantee without
	// holding a lock across network I/O.
	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// NewManager creates the shared data access manager. The fetcher registry is
// keyed by each fetcher's declared source, so a registry entry can never
// disagree with the closed source enumeration.
func NewManager(
	store *datasets.Store,
	cache *fetchcache.Cache,
	fetchers []domain.SourceFetcher,
	fetchTimeout time.Duration,
	bus *events.Bus,
	log zerolog.Logger,
) *Manager {
	registry := make(map[domain.Source]domain.SourceFetcher, len(fetchers))
	for _, f := range fetchers {
		registry[f.Source()] = f
	}
	return &Manager{
		store:        store,
		cache:        cache,
		fetchers:     registry,
		fetchTimeout: fetchTimeout,
		bus:          bus,
		log:          log.With().Str("component", "data_access").Logger(),
		inflight:     make(map[string]chan struct{}),
	}
}

// Store exposes the shared dataset store for collaborators that register or
// export datasets (upload ingestion, export, derived-data services).
func (m *Manager) Store() *datasets.Store {
	return m.store
}

// Sources lists the registered source names, in enumeration order.
func (m *Manager) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(m.fetchers))
	for _, s := range domain.AllSources {
		if _, ok := m.fetchers[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// GetAPIData fetches per-symbol frames from one source, cache-first. A
// failing symbol is logged and omitted from the result; it never aborts the
// rest of the batch. An unregistered source is a configuration bug and
// returns UnknownSourceError.
func (m *Manager) GetAPIData(ctx context.Context, symbols []string, source domain.Source, timeframe domain.Timeframe, window domain.FetchRange) (map[string]*domain.Frame, error) {
	fetcher, ok := m.fetchers[source]
	if !ok {
		return nil, &domain.UnknownSourceError{Name: string(source)}
	}

	result := make(map[string]*domain.Frame, len(symbols))
	for _, symbol := range symbols {
		frame, err := m.fetchOne(ctx, fetcher, symbol, timeframe, window)
		if err != nil {
			m.log.Warn().
				Err(err).
				Str("source", string(source)).
				Str("symbol", symbol).
				Msg("Omitting symbol from batch")
			continue
		}
		result[symbol] = frame
	}
	return result, nil
}

// fetchOne resolves a single symbol, checking the cache first and
// de-duplicating concurrent fetches for the same fingerprint.
func (m *Manager) fetchOne(ctx context.Context, fetcher domain.SourceFetcher, symbol string, timeframe domain.Timeframe, window domain.FetchRange) (*domain.Frame, error) {
	fingerprint := fetchcache.Fingerprint(fetcher.Source(), []string{symbol}, timeframe, window)

	for {
		if cached, err := m.cache.Get(fingerprint); err != nil {
			m.log.Error().Err(err).Str("fingerprint", fingerprint).Msg("Cache read failed, fetching fresh")
		} else if cached != nil {
			m.log.Debug().Str("fingerprint", fingerprint).Msg("Cache hit")
			return cached, nil
		}

		m.mu.Lock()
		if wait, exists := m.inflight[fingerprint]; exists {
			m.mu.Unlock()
			// Another caller is fetching this fingerprint; wait and re-check
			// the cache instead of issuing a duplicate upstream call.
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, &domain.SourceUnavailableError{Source: fetcher.Source(), Symbol: symbol, Err: ctx.Err()}
			}
		}
		done := make(chan struct{})
		m.inflight[fingerprint] = done
		m.mu.Unlock()

		frame, err := m.doFetch(ctx, fetcher, symbol, timeframe, window, fingerprint)

		m.mu.Lock()
		delete(m.inflight, fingerprint)
		m.mu.Unlock()
		close(done)

		return frame, err
	}
}

// doFetch performs the upstream call under the fetch timeout and caches the
// result.
func (m *Manager) doFetch(ctx context.Context, fetcher domain.SourceFetcher, symbol string, timeframe domain.Timeframe, window domain.FetchRange, fingerprint string) (*domain.Frame, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	frame, err := fetcher.Fetch(fetchCtx, symbol, timeframe, window)
	if err != nil {
		// A hung provider surfaces as unavailable, not as a stuck UI callback
		if fetchCtx.Err() == context.DeadlineExceeded {
			return nil, &domain.SourceUnavailableError{Source: fetcher.Source(), Symbol: symbol, Err: fetchCtx.Err()}
		}
		return nil, err
	}

	if err := m.cache.Put(fingerprint, frame); err != nil {
		// Failing to cache costs a future fetch, not correctness
		m.log.Error().Err(err).Str("fingerprint", fingerprint).Msg("Failed to cache fetch result")
	}
	return frame, nil
}

// GetUploadedData returns stored datasets by id. With no ids it returns every
// dataset in the store. Unknown ids are silently omitted: the UI polls this
// opportunistically and a missing id is not an error.
func (m *Manager) GetUploadedData(ids []string) map[string]*domain.Frame {
	if ids == nil {
		ids = m.store.IDs()
	}

	result := make(map[string]*domain.Frame, len(ids))
	for _, id := range ids {
		payload, _, err := m.store.Get(id)
		if err != nil {
			continue
		}
		result[id] = payload
	}
	return result
}

// GetCombinedData unions API data and uploaded datasets into one mapping.
// Symbols and dataset ids live in disjoint namespaces (dataset ids carry the
// "dataset_" prefix), so no collision handling is needed.
func (m *Manager) GetCombinedData(ctx context.Context, symbols []string, datasetIDs []string, source domain.Source, timeframe domain.Timeframe) (map[string]*domain.Frame, error) {
	apiData, err := m.GetAPIData(ctx, symbols, source, timeframe, domain.FetchRange{})
	if err != nil {
		return nil, err
	}

	combined := make(map[string]*domain.Frame, len(apiData)+len(datasetIDs))
	for symbol, frame := range apiData {
		combined[symbol] = frame
	}
	for id, frame := range m.GetUploadedData(datasetIDs) {
		combined[id] = frame
	}
	return combined, nil
}

// ClearCache drops all fetch cache entries (explicit refresh action).
// Uploaded datasets are unaffected; the store is the canonical copy and is
// never cached.
func (m *Manager) ClearCache() error {
	if err := m.cache.Clear(); err != nil {
		return err
	}
	if m.bus != nil {
		m.bus.Publish(events.CacheCleared, "data_access", nil)
	}
	return nil
}

// CacheStats reports fetch cache statistics for observability surfaces.
func (m *Manager) CacheStats() (fetchcache.Stats, error) {
	return m.cache.Stats()
}
