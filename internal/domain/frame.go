// Package domain holds the core data model shared by all modules: tabular
// frames, dataset metadata, source definitions and the error taxonomy.
package domain

import (
	"fmt"
	"time"
)

// Standard column names for price frames. Fetchers normalize provider
// responses into this layout so consumers never deal with per-provider
// column naming.
const (
	ColDate   = "Date"
	ColOpen   = "Open"
	ColHigh   = "High"
	ColLow    = "Low"
	ColClose  = "Close"
	ColVolume = "Volume"
	ColSymbol = "Symbol"
)

// PriceColumns is the canonical OHLCV column layout.
var PriceColumns = []string{ColDate, ColOpen, ColHigh, ColLow, ColClose, ColVolume, ColSymbol}

// Frame is a row-major tabular payload: named columns plus rows of cells.
// A cell is one of string, float64, int64 or time.Time.
//
// Frames cross module boundaries by value semantics: the dataset store and
// the fetch cache hand out deep copies, so a consumer can mutate what it
// received without corrupting shared state.
type Frame struct {
	Columns []string `json:"columns" msgpack:"columns"`
	Rows    [][]any  `json:"rows" msgpack:"rows"`
}

// NewFrame creates an empty frame with the given column layout.
func NewFrame(columns ...string) *Frame {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Frame{Columns: cols}
}

// AppendRow adds a row. The cell count must match the column count.
func (f *Frame) AppendRow(cells ...any) error {
	if len(cells) != len(f.Columns) {
		return fmt.Errorf("row has %d cells, frame has %d columns", len(cells), len(f.Columns))
	}
	row := make([]any, len(cells))
	copy(row, cells)
	f.Rows = append(f.Rows, row)
	return nil
}

// NumRows returns the row count.
func (f *Frame) NumRows() int {
	if f == nil {
		return 0
	}
	return len(f.Rows)
}

// NumCols returns the column count.
func (f *Frame) NumCols() int {
	if f == nil {
		return 0
	}
	return len(f.Columns)
}

// Empty reports whether the frame has no rows.
func (f *Frame) Empty() bool {
	return f.NumRows() == 0
}

// ColumnIndex returns the index of a named column, or -1 if absent.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Copy returns a deep copy of the frame. Cell values are value types, so
// copying the row slices is sufficient.
func (f *Frame) Copy() *Frame {
	if f == nil {
		return nil
	}
	out := &Frame{
		Columns: make([]string, len(f.Columns)),
		Rows:    make([][]any, len(f.Rows)),
	}
	copy(out.Columns, f.Columns)
	for i, row := range f.Rows {
		r := make([]any, len(row))
		copy(r, row)
		out.Rows[i] = r
	}
	return out
}

// Float64Column extracts a column as float64 values. Integer cells are
// widened; any other cell type is an error.
func (f *Frame) Float64Column(name string) ([]float64, error) {
	idx := f.ColumnIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]float64, len(f.Rows))
	for i, row := range f.Rows {
		switch v := row[idx].(type) {
		case float64:
			out[i] = v
		case float32:
			out[i] = float64(v)
		case int:
			out[i] = float64(v)
		case int64:
			out[i] = float64(v)
		default:
			return nil, fmt.Errorf("column %q row %d: cell %T is not numeric", name, i, row[idx])
		}
	}
	return out, nil
}

// SizeBytes returns a rough in-memory size estimate, used for dataset
// metadata and status surfaces. Not an accounting-grade number.
func (f *Frame) SizeBytes() int64 {
	if f == nil {
		return 0
	}
	var size int64
	for _, c := range f.Columns {
		size += int64(len(c))
	}
	for _, row := range f.Rows {
		for _, cell := range row {
			switch v := cell.(type) {
			case string:
				size += int64(len(v)) + 16
			case time.Time:
				size += 24
			default:
				size += 16
			}
		}
	}
	return size
}

// Equal reports structural equality: same columns in the same order and
// cell-wise equal rows. time.Time cells compare with Time.Equal.
func (f *Frame) Equal(other *Frame) bool {
	if f.NumRows() != other.NumRows() || f.NumCols() != other.NumCols() {
		return false
	}
	for i, c := range f.Columns {
		if other.Columns[i] != c {
			return false
		}
	}
	for i, row := range f.Rows {
		for j, cell := range row {
			if !cellEqual(cell, other.Rows[i][j]) {
				return false
			}
		}
	}
	return true
}

func cellEqual(a, b any) bool {
	at, aok := a.(time.Time)
	bt, bok := b.(time.Time)
	if aok || bok {
		return aok && bok && at.Equal(bt)
	}
	return a == b
}
