// Package export writes stored datasets to files for download and backup.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/domain"
)

// Format selects the on-disk encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat maps a request string to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON, FormatParquet:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format: %s", s)
	}
}

// barRecord is the Parquet schema for OHLCV exports.
type barRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// Service exports datasets to the export directory.
type Service struct {
	store *datasets.Store
	dir   string
	log   zerolog.Logger
}

// NewService creates an export service writing under dir.
func NewService(store *datasets.Store, dir string, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		dir:   dir,
		log:   log.With().Str("service", "export").Logger(),
	}
}

// Dir returns the export directory.
func (s *Service) Dir() string {
	return s.dir
}

// Export writes one dataset in the requested format and returns the path of
// the written file.
func (s *Service) Export(datasetID string, format Format) (string, error) {
	frame, meta, err := s.store.Get(datasetID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s.%s", datasetID, format))
	switch format {
	case FormatCSV:
		err = writeCSV(path, frame)
	case FormatJSON:
		err = writeJSON(path, meta, frame)
	case FormatParquet:
		err = writeParquet(path, frame)
	default:
		return "", fmt.Errorf("unknown export format: %s", format)
	}
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("dataset_id", datasetID).
		Str("format", string(format)).
		Str("path", path).
		Msg("Dataset exported")
	return path, nil
}

func writeCSV(path string, frame *domain.Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(frame.Columns); err != nil {
		return err
	}
	record := make([]string, frame.NumCols())
	for _, row := range frame.Rows {
		for i, cell := range row {
			record[i] = formatCell(cell)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatCell(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// jsonDocument is the JSON export envelope: metadata plus the tabular payload
// in the same shape the upload endpoint accepts, so an export can be
// re-imported as-is.
type jsonDocument struct {
	Meta    domain.DatasetMeta `json:"meta"`
	Columns []string           `json:"columns"`
	Rows    [][]any            `json:"rows"`
}

func writeJSON(path string, meta domain.DatasetMeta, frame *domain.Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonDocument{Meta: meta, Columns: frame.Columns, Rows: frame.Rows})
}

// writeParquet exports an OHLCV dataset. Parquet needs a fixed schema, so
// only frames carrying the standard price columns qualify.
func writeParquet(path string, frame *domain.Frame) error {
	var (
		dateIdx   = frame.ColumnIndex(domain.ColDate)
		symbolIdx = frame.ColumnIndex(domain.ColSymbol)
	)
	if dateIdx < 0 {
		return &domain.InvalidDatasetError{Reason: "parquet export requires price data with a Date column"}
	}

	opens, err := frame.Float64Column(domain.ColOpen)
	if err != nil {
		return &domain.InvalidDatasetError{Reason: fmt.Sprintf("parquet export requires OHLCV columns: %v", err)}
	}
	highs, err := frame.Float64Column(domain.ColHigh)
	if err != nil {
		return &domain.InvalidDatasetError{Reason: fmt.Sprintf("parquet export requires OHLCV columns: %v", err)}
	}
	lows, err := frame.Float64Column(domain.ColLow)
	if err != nil {
		return &domain.InvalidDatasetError{Reason: fmt.Sprintf("parquet export requires OHLCV columns: %v", err)}
	}
	closes, err := frame.Float64Column(domain.ColClose)
	if err != nil {
		return &domain.InvalidDatasetError{Reason: fmt.Sprintf("parquet export requires OHLCV columns: %v", err)}
	}
	volumes, err := frame.Float64Column(domain.ColVolume)
	if err != nil {
		return &domain.InvalidDatasetError{Reason: fmt.Sprintf("parquet export requires OHLCV columns: %v", err)}
	}

	records := make([]barRecord, 0, frame.NumRows())
	for i, row := range frame.Rows {
		rec := barRecord{
			Open:   opens[i],
			High:   highs[i],
			Low:    lows[i],
			Close:  closes[i],
			Volume: volumes[i],
		}
		if ts, ok := row[dateIdx].(time.Time); ok {
			rec.Timestamp = ts.UnixMilli()
		}
		if symbolIdx >= 0 {
			if sym, ok := row[symbolIdx].(string); ok {
				rec.Symbol = sym
			}
		}
		records = append(records, rec)
	}

	return parquet.WriteFile(path, records)
}
