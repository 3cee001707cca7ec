package indicators

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/domain"
)

func priceDataset(t *testing.T, store *datasets.Store, rows int) string {
	t.Helper()
	frame := domain.NewFrame(domain.ColDate, domain.ColClose)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < rows; i++ {
		require.NoError(t, frame.AppendRow(day.AddDate(0, 0, i), float64(i+1)))
	}
	id, err := store.Register("aapl_1d", frame, domain.KindAPI)
	require.NoError(t, err)
	return id
}

func TestDeriveSMA(t *testing.T) {
	store := datasets.NewStore(zerolog.Nop())
	service := NewService(store, zerolog.Nop())
	sourceID := priceDataset(t, store, 30)

	id, meta, err := service.Derive(sourceID, SMA, Params{Period: 5})
	require.NoError(t, err)

	assert.Equal(t, domain.KindDerived, meta.Kind)
	assert.Equal(t, domain.CategoryDerived, meta.Category)
	assert.Equal(t, 26, meta.RowCount, "warm-up rows are dropped")

	frame, _, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.ColDate, domain.ColClose, "SMA_5"}, frame.Columns)

	// Closes are 1..30, so the first window 1..5 averages to 3.
	sma, err := frame.Float64Column("SMA_5")
	require.NoError(t, err)
	assert.InDelta(t, 3.0, sma[0], 1e-9)
	assert.InDelta(t, 28.0, sma[len(sma)-1], 1e-9)
}

func TestDeriveRSIMonotonicSeries(t *testing.T) {
	store := datasets.NewStore(zerolog.Nop())
	service := NewService(store, zerolog.Nop())
	sourceID := priceDataset(t, store, 40)

	id, meta, err := service.Derive(sourceID, RSI, Params{})
	require.NoError(t, err)
	assert.Contains(t, meta.Name, "rsi_14")

	frame, _, err := store.Get(id)
	require.NoError(t, err)
	rsi, err := frame.Float64Column("RSI_14")
	require.NoError(t, err)

	// A strictly rising series has no losses, so RSI pins at 100.
	for _, v := range rsi {
		assert.InDelta(t, 100.0, v, 1e-6)
	}
}

func TestDeriveMACDColumns(t *testing.T) {
	store := datasets.NewStore(zerolog.Nop())
	service := NewService(store, zerolog.Nop())
	sourceID := priceDataset(t, store, 60)

	id, meta, err := service.Derive(sourceID, MACD, Params{})
	require.NoError(t, err)
	assert.Contains(t, meta.Name, "macd_12_26_9")

	frame, _, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.ColDate, domain.ColClose, "MACD", "MACD_Signal", "MACD_Hist"}, frame.Columns)
	assert.Equal(t, 60-(26+9-1)+1, frame.NumRows())
}

func TestDeriveBBandsMiddleTracksSMA(t *testing.T) {
	store := datasets.NewStore(zerolog.Nop())
	service := NewService(store, zerolog.Nop())
	sourceID := priceDataset(t, store, 30)

	id, _, err := service.Derive(sourceID, BBands, Params{Period: 5})
	require.NoError(t, err)

	frame, _, err := store.Get(id)
	require.NoError(t, err)
	middle, err := frame.Float64Column("BB_Middle")
	require.NoError(t, err)
	upper, err := frame.Float64Column("BB_Upper")
	require.NoError(t, err)
	lower, err := frame.Float64Column("BB_Lower")
	require.NoError(t, err)

	assert.InDelta(t, 3.0, middle[0], 1e-9)
	for i := range middle {
		assert.Greater(t, upper[i], middle[i])
		assert.Less(t, lower[i], middle[i])
	}
}

func TestDeriveInsufficientRows(t *testing.T) {
	store := datasets.NewStore(zerolog.Nop())
	service := NewService(store, zerolog.Nop())
	sourceID := priceDataset(t, store, 5)

	_, _, err := service.Derive(sourceID, SMA, Params{Period: 20})
	var invalidErr *domain.InvalidDatasetError
	require.ErrorAs(t, err, &invalidErr)
}

func TestDeriveMissingCloseColumn(t *testing.T) {
	store := datasets.NewStore(zerolog.Nop())
	service := NewService(store, zerolog.Nop())

	frame := domain.NewFrame("Symbol", "Qty")
	require.NoError(t, frame.AppendRow("AAPL", 10.0))
	id, err := store.Register("trades", frame, domain.KindUploaded)
	require.NoError(t, err)

	_, _, err = service.Derive(id, SMA, Params{})
	var invalidErr *domain.InvalidDatasetError
	require.ErrorAs(t, err, &invalidErr)
}

func TestDeriveUnknownDataset(t *testing.T) {
	service := NewService(datasets.NewStore(zerolog.Nop()), zerolog.Nop())

	_, _, err := service.Derive("dataset_missing_20240101_000000", SMA, Params{})
	var notFoundErr *domain.DatasetNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}

func TestParseIndicator(t *testing.T) {
	ind, err := ParseIndicator(" RSI ")
	require.NoError(t, err)
	assert.Equal(t, RSI, ind)

	_, err = ParseIndicator("vwap")
	require.Error(t, err)
}
