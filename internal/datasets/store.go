// Package datasets provides the process-wide dataset registry. One Store
// instance is created at startup and shared by every module, so panels
// observe the same data no matter which one registered it.
package datasets

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/domain"
)

// Store is the authoritative registry for all datasets regardless of origin.
// Payloads are copied on the way in and on the way out: consumers can never
// mutate the canonical copy.
type Store struct {
	mu       sync.RWMutex
	payloads map[string]*domain.Frame
	metadata map[string]domain.DatasetMeta
	order    []string // Insertion order, for stable List output
	now      func() time.Time
	log      zerolog.Logger
}

// NewStore creates an empty dataset store.
func NewStore(log zerolog.Logger) *Store {
	return &Store{
		payloads: make(map[string]*domain.Frame),
		metadata: make(map[string]domain.DatasetMeta),
		now:      time.Now,
		log:      log.With().Str("component", "dataset_store").Logger(),
	}
}

// Register validates and stores a payload, returning the generated dataset id.
// The id embeds the sanitized name and a timestamp; a numeric suffix keeps ids
// unique when two registrations land in the same second.
func (s *Store) Register(name string, payload *domain.Frame, kind domain.SourceKind) (string, error) {
	if payload == nil || payload.NumCols() == 0 {
		return "", &domain.InvalidDatasetError{Reason: "payload has zero columns"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	base := fmt.Sprintf("dataset_%s_%s", sanitizeName(name), now.Format("20060102_150405"))
	id := base
	for n := 2; ; n++ {
		if _, exists := s.metadata[id]; !exists {
			break
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}

	stored := payload.Copy()
	s.payloads[id] = stored
	s.metadata[id] = buildMeta(id, name, stored, kind, now)
	s.order = append(s.order, id)

	s.log.Info().
		Str("dataset_id", id).
		Int("rows", stored.NumRows()).
		Int("columns", stored.NumCols()).
		Str("kind", string(kind)).
		Msg("Dataset registered")

	return id, nil
}

// Get returns a defensive copy of the payload plus its metadata.
func (s *Store) Get(id string) (*domain.Frame, domain.DatasetMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payload, ok := s.payloads[id]
	if !ok {
		return nil, domain.DatasetMeta{}, &domain.DatasetNotFoundError{ID: id}
	}
	return payload.Copy(), s.metadata[id], nil
}

// Meta returns metadata without copying the payload.
func (s *Store) Meta(id string) (domain.DatasetMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metadata[id]
	if !ok {
		return domain.DatasetMeta{}, &domain.DatasetNotFoundError{ID: id}
	}
	return meta, nil
}

// List returns metadata for all datasets in registration order.
func (s *Store) List() []domain.DatasetMeta {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.DatasetMeta, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.metadata[id])
	}
	return out
}

// IDs returns all dataset ids in registration order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Remove deletes a dataset. Returns false for unknown ids, never errors:
// UI deletion flows treat "already gone" as success.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.payloads[id]; !ok {
		return false
	}
	delete(s.payloads, id)
	delete(s.metadata, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.log.Info().Str("dataset_id", id).Msg("Dataset removed")
	return true
}

// Update replaces a payload in place, refreshing metadata. The id, name,
// kind and creation time are preserved.
func (s *Store) Update(id string, payload *domain.Frame) error {
	if payload == nil || payload.NumCols() == 0 {
		return &domain.InvalidDatasetError{Reason: "payload has zero columns"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.metadata[id]
	if !ok {
		return &domain.DatasetNotFoundError{ID: id}
	}

	stored := payload.Copy()
	s.payloads[id] = stored

	meta := buildMeta(id, old.Name, stored, old.Kind, old.CreatedAt)
	s.metadata[id] = meta

	s.log.Info().
		Str("dataset_id", id).
		Int("rows", stored.NumRows()).
		Msg("Dataset payload replaced")

	return nil
}

// Stats summarises the store for status surfaces.
type Stats struct {
	DatasetCount int                     `json:"dataset_count"`
	TotalRows    int                     `json:"total_rows"`
	TotalBytes   int64                   `json:"total_bytes"`
	ByCategory   map[domain.Category]int `json:"by_category"`
}

// Stats returns aggregate counts over all stored datasets.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{ByCategory: make(map[domain.Category]int)}
	for _, meta := range s.metadata {
		stats.DatasetCount++
		stats.TotalRows += meta.RowCount
		stats.TotalBytes += meta.SizeBytes
		stats.ByCategory[meta.Category]++
	}
	return stats
}

func buildMeta(id, name string, payload *domain.Frame, kind domain.SourceKind, createdAt time.Time) domain.DatasetMeta {
	columns := make([]string, len(payload.Columns))
	copy(columns, payload.Columns)
	return domain.DatasetMeta{
		ID:          id,
		Name:        name,
		RowCount:    payload.NumRows(),
		Columns:     columns,
		ColumnCount: payload.NumCols(),
		SizeBytes:   payload.SizeBytes(),
		CreatedAt:   createdAt,
		Kind:        kind,
		Category:    domain.CategoryForKind(kind),
	}
}

// sanitizeName reduces a user-visible dataset name to id-safe characters.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		out = "unnamed"
	}
	return out
}
