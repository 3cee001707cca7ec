// Package analytics computes descriptive statistics over stored datasets for
// status and summary panels.
package analytics

import (
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/domain"
)

// ColumnStats summarizes one numeric column.
type ColumnStats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	Max    float64 `json:"max"`
}

// Description is the describe output for one dataset.
type Description struct {
	DatasetID string             `json:"dataset_id"`
	Name      string             `json:"name"`
	RowCount  int                `json:"row_count"`
	Columns   []string           `json:"columns"`
	Numeric   []ColumnStats      `json:"numeric_columns"`
	Meta      domain.DatasetMeta `json:"meta"`
}

// Service computes dataset statistics.
type Service struct {
	store *datasets.Store
	log   zerolog.Logger
}

// NewService creates a new analytics service.
func NewService(store *datasets.Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("service", "analytics").Logger(),
	}
}

// Describe computes per-column statistics for a stored dataset. Non-numeric
// columns are listed but not summarized.
func (s *Service) Describe(datasetID string) (Description, error) {
	frame, meta, err := s.store.Get(datasetID)
	if err != nil {
		return Description{}, err
	}

	desc := Description{
		DatasetID: datasetID,
		Name:      meta.Name,
		RowCount:  meta.RowCount,
		Columns:   frame.Columns,
		Numeric:   []ColumnStats{},
		Meta:      meta,
	}

	for _, column := range frame.Columns {
		values, err := frame.Float64Column(column)
		if err != nil || len(values) == 0 {
			continue
		}
		desc.Numeric = append(desc.Numeric, describeColumn(column, values))
	}
	return desc, nil
}

func describeColumn(column string, values []float64) ColumnStats {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	stats := ColumnStats{
		Column: column,
		Count:  len(values),
		Mean:   stat.Mean(values, nil),
		Min:    sorted[0],
		P25:    stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P75:    stat.Quantile(0.75, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
	if len(values) > 1 {
		stats.StdDev = stat.StdDev(values, nil)
	}
	return stats
}
