package access

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/datahub/internal/domain"
)

func testModule(t *testing.T, module string, manager *Manager) *ModuleAccess {
	t.Helper()
	return NewModuleAccess(module, manager, DefaultPermissions(), zerolog.Nop())
}

func registerFrame(t *testing.T, manager *Manager, name string, kind domain.SourceKind, rows int) string {
	t.Helper()
	frame := domain.NewFrame("Symbol", "Value")
	for i := 0; i < rows; i++ {
		require.NoError(t, frame.AppendRow(fmt.Sprintf("SYM%d", i%5), float64(i)))
	}
	id, err := manager.Store().Register(name, frame, kind)
	require.NoError(t, err)
	return id
}

func TestAvailableDatasetsFiltersByCategory(t *testing.T) {
	manager := testManager(t, time.Minute, newStubFetcher(domain.SourceMock))
	uploadedID := registerFrame(t, manager, "holdings", domain.KindUploaded, 3)
	registerFrame(t, manager, "aapl_1d", domain.KindAPI, 3)

	system := testModule(t, "system", manager)

	available := system.AvailableDatasets()
	require.Len(t, available, 1, "system sees uploaded datasets only")
	assert.Equal(t, uploadedID, available[0].ID)
	for _, meta := range available {
		assert.NotEqual(t, domain.CategoryPrice, meta.Category)
	}
}

func TestGetUploadedDataHidesForbiddenCategories(t *testing.T) {
	manager := testManager(t, time.Minute, newStubFetcher(domain.SourceMock))
	uploadedID := registerFrame(t, manager, "holdings", domain.KindUploaded, 3)
	priceID := registerFrame(t, manager, "aapl_1d", domain.KindAPI, 3)

	system := testModule(t, "system", manager)

	// Explicit request for a forbidden dataset is silently omitted.
	result := system.GetUploadedData([]string{uploadedID, priceID})
	assert.Len(t, result, 1)
	assert.Contains(t, result, uploadedID)

	// nil ids resolves to the visible set only.
	all := system.GetUploadedData(nil)
	assert.Len(t, all, 1)
	assert.Contains(t, all, uploadedID)
}

func TestPortfolioSeesPriceAndUploaded(t *testing.T) {
	manager := testManager(t, time.Minute, newStubFetcher(domain.SourceMock))
	registerFrame(t, manager, "holdings", domain.KindUploaded, 3)
	registerFrame(t, manager, "aapl_1d", domain.KindAPI, 3)
	registerFrame(t, manager, "aapl_sma", domain.KindDerived, 3)

	portfolio := testModule(t, "portfolio", manager)
	assert.Len(t, portfolio.AvailableDatasets(), 2, "portfolio reads price and uploaded, not derived")

	models := testModule(t, "models", manager)
	assert.Len(t, models.AvailableDatasets(), 3)
}

func TestActivateDataset(t *testing.T) {
	manager := testManager(t, time.Minute, newStubFetcher(domain.SourceMock))
	id := registerFrame(t, manager, "holdings", domain.KindUploaded, 3)
	priceID := registerFrame(t, manager, "aapl_1d", domain.KindAPI, 3)

	system := testModule(t, "system", manager)

	assert.True(t, system.ActivateDataset(id))
	assert.False(t, system.ActivateDataset("dataset_missing_20240101_000000"))
	assert.False(t, system.ActivateDataset(priceID), "forbidden category must not activate")

	active := system.ActiveDatasets()
	require.Len(t, active, 1)
	assert.Contains(t, active, id)

	assert.True(t, system.DeactivateDataset(id))
	assert.False(t, system.DeactivateDataset(id), "second deactivate is a no-op")
	assert.Empty(t, system.ActiveDatasets())
}

func TestActiveDatasetsSurvivesRemoval(t *testing.T) {
	manager := testManager(t, time.Minute, newStubFetcher(domain.SourceMock))
	keep := registerFrame(t, manager, "keep", domain.KindUploaded, 2)
	gone := registerFrame(t, manager, "gone", domain.KindUploaded, 2)

	portfolio := testModule(t, "portfolio", manager)
	require.True(t, portfolio.ActivateDataset(keep))
	require.True(t, portfolio.ActivateDataset(gone))

	require.True(t, manager.Store().Remove(gone))

	active := portfolio.ActiveDatasets()
	assert.Len(t, active, 1)
	assert.Contains(t, active, keep)
	assert.NotContains(t, active, gone)
}

func TestResetClearsActiveSet(t *testing.T) {
	manager := testManager(t, time.Minute, newStubFetcher(domain.SourceMock))
	id := registerFrame(t, manager, "holdings", domain.KindUploaded, 2)

	charts := testModule(t, "charts", manager)
	require.True(t, charts.ActivateDataset(id))
	charts.Reset()

	assert.Empty(t, charts.ActiveDatasets())
	assert.Equal(t, 0, charts.DataSummary().ActiveCount)
}

func TestIsDataAccessAvailable(t *testing.T) {
	detached := NewModuleAccess("charts", nil, DefaultPermissions(), zerolog.Nop())
	assert.False(t, detached.IsDataAccessAvailable())

	manager := testManager(t, time.Minute, newStubFetcher(domain.SourceMock))
	assert.True(t, testModule(t, "charts", manager).IsDataAccessAvailable())
}

func TestDataSummary(t *testing.T) {
	manager := testManager(t, time.Minute, newStubFetcher(domain.SourceMock))
	id := registerFrame(t, manager, "trades", domain.KindUploaded, 2500)
	registerFrame(t, manager, "aapl_1d", domain.KindAPI, 250)

	models := testModule(t, "models", manager)
	require.True(t, models.ActivateDataset(id))

	summary := models.DataSummary()
	assert.Equal(t, "models", summary.Module)
	assert.Equal(t, 2, summary.DatasetCount)
	assert.Equal(t, 2750, summary.TotalRows)
	assert.Equal(t, 1, summary.ActiveCount)
	assert.ElementsMatch(t, []domain.Category{domain.CategoryUploaded, domain.CategoryPrice}, summary.CategoriesPresent)
}

func TestModuleCombinedData(t *testing.T) {
	manager := testManager(t, time.Minute, newStubFetcher(domain.SourceMock))
	id := registerFrame(t, manager, "trades", domain.KindUploaded, 10)

	models := testModule(t, "models", manager)
	combined, err := models.GetCombinedData(context.Background(), []string{"AAPL"}, []string{id}, domain.SourceMock, domain.Timeframe1Day)
	require.NoError(t, err)

	require.Len(t, combined, 2)
	assert.Contains(t, combined, "AAPL")
	assert.Contains(t, combined, id)
	assert.Equal(t, 10, combined[id].NumRows())
}
