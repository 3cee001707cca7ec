package analytics

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/domain"
)

func TestDescribe(t *testing.T) {
	store := datasets.NewStore(zerolog.Nop())
	service := NewService(store, zerolog.Nop())

	frame := domain.NewFrame("Symbol", "Qty", "Price")
	for i := 1; i <= 5; i++ {
		require.NoError(t, frame.AppendRow("AAPL", float64(i), float64(i)*10))
	}
	id, err := store.Register("trades", frame, domain.KindUploaded)
	require.NoError(t, err)

	desc, err := service.Describe(id)
	require.NoError(t, err)

	assert.Equal(t, id, desc.DatasetID)
	assert.Equal(t, "trades", desc.Name)
	assert.Equal(t, 5, desc.RowCount)
	assert.Equal(t, []string{"Symbol", "Qty", "Price"}, desc.Columns)

	// Symbol is text, so only Qty and Price get statistics.
	require.Len(t, desc.Numeric, 2)

	qty := desc.Numeric[0]
	assert.Equal(t, "Qty", qty.Column)
	assert.Equal(t, 5, qty.Count)
	assert.InDelta(t, 3.0, qty.Mean, 1e-9)
	assert.InDelta(t, 1.0, qty.Min, 1e-9)
	assert.InDelta(t, 5.0, qty.Max, 1e-9)
	assert.InDelta(t, 3.0, qty.Median, 1e-9)
	assert.InDelta(t, math.Sqrt(2.5), qty.StdDev, 1e-9)

	price := desc.Numeric[1]
	assert.Equal(t, "Price", price.Column)
	assert.InDelta(t, 30.0, price.Mean, 1e-9)
}

func TestDescribeSingleRow(t *testing.T) {
	store := datasets.NewStore(zerolog.Nop())
	service := NewService(store, zerolog.Nop())

	frame := domain.NewFrame("Value")
	require.NoError(t, frame.AppendRow(42.0))
	id, err := store.Register("one", frame, domain.KindUploaded)
	require.NoError(t, err)

	desc, err := service.Describe(id)
	require.NoError(t, err)
	require.Len(t, desc.Numeric, 1)
	assert.InDelta(t, 42.0, desc.Numeric[0].Mean, 1e-9)
	assert.Zero(t, desc.Numeric[0].StdDev)
}

func TestDescribeUnknownDataset(t *testing.T) {
	service := NewService(datasets.NewStore(zerolog.Nop()), zerolog.Nop())

	_, err := service.Describe("dataset_missing_20240101_000000")
	var notFoundErr *domain.DatasetNotFoundError
	require.ErrorAs(t, err, &notFoundErr)
}
