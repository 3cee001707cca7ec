// Package indicators derives technical indicator datasets from stored price
// data. Derived datasets are registered back into the store under the
// "derived" kind so permission filtering applies to them like any other
// dataset.
package indicators

import (
	"fmt"
	"strings"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/domain"
)

// Indicator identifies a supported derivation.
type Indicator string

const (
	SMA    Indicator = "sma"
	EMA    Indicator = "ema"
	RSI    Indicator = "rsi"
	MACD   Indicator = "macd"
	BBands Indicator = "bbands"
)

// AllIndicators lists the supported derivations in UI display order.
var AllIndicators = []Indicator{SMA, EMA, RSI, MACD, BBands}

// ParseIndicator maps a request string to an Indicator.
func ParseIndicator(s string) (Indicator, error) {
	for _, ind := range AllIndicators {
		if string(ind) == strings.ToLower(strings.TrimSpace(s)) {
			return ind, nil
		}
	}
	return "", fmt.Errorf("unknown indicator: %s", s)
}

// Params holds derivation parameters. Zero values fall back to the
// conventional defaults per indicator.
type Params struct {
	Period int     `json:"period"`
	Fast   int     `json:"fast"`
	Slow   int     `json:"slow"`
	Signal int     `json:"signal"`
	StdDev float64 `json:"std_dev"`
}

func (p Params) withDefaults(indicator Indicator) Params {
	if p.Period == 0 {
		switch indicator {
		case RSI:
			p.Period = 14
		default:
			p.Period = 20
		}
	}
	if p.Fast == 0 {
		p.Fast = 12
	}
	if p.Slow == 0 {
		p.Slow = 26
	}
	if p.Signal == 0 {
		p.Signal = 9
	}
	if p.StdDev == 0 {
		p.StdDev = 2
	}
	return p
}

// Service computes indicator datasets.
type Service struct {
	store *datasets.Store
	log   zerolog.Logger
}

// NewService creates a new indicators service.
func NewService(store *datasets.Store, log zerolog.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With().Str("service", "indicators").Logger(),
	}
}

// Derive computes an indicator over the Close column of a stored price
// dataset and registers the result as a new derived dataset. Returns the new
// dataset's id and metadata.
func (s *Service) Derive(datasetID string, indicator Indicator, params Params) (string, domain.DatasetMeta, error) {
	source, sourceMeta, err := s.store.Get(datasetID)
	if err != nil {
		return "", domain.DatasetMeta{}, err
	}

	closes, err := source.Float64Column(domain.ColClose)
	if err != nil {
		return "", domain.DatasetMeta{}, &domain.InvalidDatasetError{Reason: fmt.Sprintf("dataset %s has no usable Close column: %v", datasetID, err)}
	}

	params = params.withDefaults(indicator)
	derived, err := compute(source, closes, indicator, params)
	if err != nil {
		return "", domain.DatasetMeta{}, err
	}

	name := derivedName(sourceMeta.Name, indicator, params)
	id, err := s.store.Register(name, derived, domain.KindDerived)
	if err != nil {
		return "", domain.DatasetMeta{}, err
	}

	meta, err := s.store.Meta(id)
	if err != nil {
		return "", domain.DatasetMeta{}, err
	}

	s.log.Info().
		Str("source_dataset", datasetID).
		Str("indicator", string(indicator)).
		Str("derived_dataset", id).
		Int("rows", meta.RowCount).
		Msg("Derived indicator dataset")
	return id, meta, nil
}

func derivedName(sourceName string, indicator Indicator, params Params) string {
	switch indicator {
	case MACD:
		return fmt.Sprintf("%s_macd_%d_%d_%d", sourceName, params.Fast, params.Slow, params.Signal)
	case BBands:
		return fmt.Sprintf("%s_bbands_%d", sourceName, params.Period)
	default:
		return fmt.Sprintf("%s_%s_%d", sourceName, indicator, params.Period)
	}
}

// compute builds the derived frame: Date and Close carried over from the
// source, indicator columns appended, warm-up rows dropped.
func compute(source *domain.Frame, closes []float64, indicator Indicator, params Params) (*domain.Frame, error) {
	var (
		columns  []string
		series   [][]float64
		lookback int
	)

	switch indicator {
	case SMA:
		if len(closes) < params.Period {
			return nil, &domain.InvalidDatasetError{Reason: fmt.Sprintf("need at least %d rows for sma(%d), have %d", params.Period, params.Period, len(closes))}
		}
		columns = []string{fmt.Sprintf("SMA_%d", params.Period)}
		series = [][]float64{talib.Sma(closes, params.Period)}
		lookback = params.Period - 1
	case EMA:
		if len(closes) < params.Period {
			return nil, &domain.InvalidDatasetError{Reason: fmt.Sprintf("need at least %d rows for ema(%d), have %d", params.Period, params.Period, len(closes))}
		}
		columns = []string{fmt.Sprintf("EMA_%d", params.Period)}
		series = [][]float64{talib.Ema(closes, params.Period)}
		lookback = params.Period - 1
	case RSI:
		if len(closes) < params.Period+1 {
			return nil, &domain.InvalidDatasetError{Reason: fmt.Sprintf("need at least %d rows for rsi(%d), have %d", params.Period+1, params.Period, len(closes))}
		}
		columns = []string{fmt.Sprintf("RSI_%d", params.Period)}
		series = [][]float64{talib.Rsi(closes, params.Period)}
		lookback = params.Period
	case MACD:
		minRows := params.Slow + params.Signal - 1
		if len(closes) < minRows {
			return nil, &domain.InvalidDatasetError{Reason: fmt.Sprintf("need at least %d rows for macd(%d,%d,%d), have %d", minRows, params.Fast, params.Slow, params.Signal, len(closes))}
		}
		macd, signal, hist := talib.Macd(closes, params.Fast, params.Slow, params.Signal)
		columns = []string{"MACD", "MACD_Signal", "MACD_Hist"}
		series = [][]float64{macd, signal, hist}
		lookback = minRows - 1
	case BBands:
		if len(closes) < params.Period {
			return nil, &domain.InvalidDatasetError{Reason: fmt.Sprintf("need at least %d rows for bbands(%d), have %d", params.Period, params.Period, len(closes))}
		}
		// MAType 0 = SMA
		upper, middle, lower := talib.BBands(closes, params.Period, params.StdDev, params.StdDev, 0)
		columns = []string{"BB_Upper", "BB_Middle", "BB_Lower"}
		series = [][]float64{upper, middle, lower}
		lookback = params.Period - 1
	default:
		return nil, fmt.Errorf("unknown indicator: %s", indicator)
	}

	dateIdx := source.ColumnIndex(domain.ColDate)
	closeIdx := source.ColumnIndex(domain.ColClose)

	out := domain.NewFrame(append([]string{domain.ColDate, domain.ColClose}, columns...)...)
	for i := lookback; i < len(closes); i++ {
		cells := make([]any, 0, 2+len(series))
		if dateIdx >= 0 {
			cells = append(cells, source.Rows[i][dateIdx])
		} else {
			cells = append(cells, nil)
		}
		cells = append(cells, source.Rows[i][closeIdx])
		skip := false
		for _, s := range series {
			v := s[i]
			if isNaN(v) {
				skip = true
				break
			}
			cells = append(cells, v)
		}
		if skip {
			continue
		}
		if err := out.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func isNaN(f float64) bool {
	return f != f
}
