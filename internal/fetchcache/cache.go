// Package fetchcache provides time-bounded memoization of upstream fetch
// results. Entries are stored as msgpack blobs in cache.db with expiration
// timestamps, keyed by a deterministic request fingerprint, so identical
// requests within the TTL window never hit the provider twice.
package fetchcache

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/tradepulse/datahub/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS fetch_cache (
	fingerprint TEXT PRIMARY KEY,
	payload     BLOB NOT NULL,
	created_at  INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_cache_expires ON fetch_cache(expires_at);
`

// Cache is the shared fetch-result cache. TTL is fixed per instance and
// supplied at construction so tests can use short windows.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
	log zerolog.Logger
}

// New creates a cache over the given database, creating the schema if needed.
func New(db *sql.DB, ttl time.Duration, log zerolog.Logger) (*Cache, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create fetch_cache schema: %w", err)
	}
	return &Cache{
		db:  db,
		ttl: ttl,
		now: time.Now,
		log: log.With().Str("component", "fetch_cache").Logger(),
	}, nil
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Fingerprint derives the cache key for a fetch request. Symbols are sorted
// before encoding, so [A,B] and [B,A] produce the same key. Same inputs
// always produce the same fingerprint.
func Fingerprint(source domain.Source, symbols []string, timeframe domain.Timeframe, window domain.FetchRange) string {
	sorted := make([]string, len(symbols))
	copy(sorted, symbols)
	sort.Strings(sorted)

	start, end := "", ""
	if !window.Start.IsZero() {
		start = window.Start.UTC().Format("2006-01-02")
	}
	if !window.End.IsZero() {
		end = window.End.UTC().Format("2006-01-02")
	}

	return strings.Join([]string{
		string(source),
		strings.Join(sorted, ","),
		string(timeframe),
		start,
		end,
	}, "|")
}

// Get returns the cached frame for a fingerprint, or nil on miss. An entry
// whose expiration has passed is treated as absent.
func (c *Cache) Get(fingerprint string) (*domain.Frame, error) {
	now := c.now().Unix()

	var blob []byte
	err := c.db.QueryRow(
		"SELECT payload FROM fetch_cache WHERE fingerprint = ? AND expires_at > ?",
		fingerprint, now,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fetch cache: %w", err)
	}

	var frame domain.Frame
	if err := msgpack.Unmarshal(blob, &frame); err != nil {
		// A corrupt blob is treated as a miss; the next Put overwrites it.
		c.log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Discarding undecodable cache entry")
		return nil, nil
	}
	return &frame, nil
}

// Put inserts or replaces an entry with the current timestamp.
func (c *Cache) Put(fingerprint string, frame *domain.Frame) error {
	blob, err := msgpack.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	now := c.now()
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO fetch_cache (fingerprint, payload, created_at, expires_at) VALUES (?, ?, ?, ?)",
		fingerprint, blob, now.Unix(), now.Add(c.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store fetch cache entry: %w", err)
	}
	return nil
}

// Clear drops all entries. Used for explicit cache-busting (refresh actions).
func (c *Cache) Clear() error {
	if _, err := c.db.Exec("DELETE FROM fetch_cache"); err != nil {
		return fmt.Errorf("failed to clear fetch cache: %w", err)
	}
	c.log.Info().Msg("Fetch cache cleared")
	return nil
}

// DeleteExpired removes rows whose expiration has passed. Returns the number
// of rows deleted. Scheduled via CleanupJob.
func (c *Cache) DeleteExpired() (int64, error) {
	result, err := c.db.Exec("DELETE FROM fetch_cache WHERE expires_at < ?", c.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Stats describes the cache for observability surfaces. No correctness
// implications.
type Stats struct {
	EntryCount     int           `json:"entry_count"`
	OldestEntryAge time.Duration `json:"oldest_entry_age"`
	TTL            time.Duration `json:"ttl"`
}

// Stats returns entry count and the age of the oldest live entry.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{TTL: c.ttl}
	now := c.now().Unix()

	var count int
	var oldest sql.NullInt64
	err := c.db.QueryRow(
		"SELECT COUNT(*), MIN(created_at) FROM fetch_cache WHERE expires_at > ?",
		now,
	).Scan(&count, &oldest)
	if err != nil {
		return stats, fmt.Errorf("failed to read cache stats: %w", err)
	}

	stats.EntryCount = count
	if oldest.Valid {
		stats.OldestEntryAge = time.Duration(now-oldest.Int64) * time.Second
	}
	return stats, nil
}
