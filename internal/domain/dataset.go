package domain

import "time"

// SourceKind records how a dataset came to exist.
type SourceKind string

const (
	KindUploaded SourceKind = "uploaded"
	KindAPI      SourceKind = "api"
	KindDerived  SourceKind = "derived"
)

// Category is the permission unit: modules are granted access to categories,
// not to individual datasets.
type Category string

const (
	CategoryUploaded Category = "uploaded_datasets"
	CategoryPrice    Category = "price_data"
	CategoryDerived  Category = "derived_datasets"
)

// CategoryForKind maps a dataset's origin to its permission category.
func CategoryForKind(kind SourceKind) Category {
	switch kind {
	case KindAPI:
		return CategoryPrice
	case KindDerived:
		return CategoryDerived
	default:
		return CategoryUploaded
	}
}

// DatasetMeta describes a stored dataset. The payload itself lives in the
// dataset store; metadata is cheap to copy and safe to hand to UI surfaces.
type DatasetMeta struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	RowCount    int        `json:"row_count"`
	Columns     []string   `json:"columns"`
	ColumnCount int        `json:"column_count"`
	SizeBytes   int64      `json:"size_bytes"`
	CreatedAt   time.Time  `json:"created_at"`
	Kind        SourceKind `json:"source_kind"`
	Category    Category   `json:"category"`
}
