package access

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/domain"
)

// ModuleAccess is the per-module view of the shared data access manager.
// It enforces the category permissions of its module and tracks which
// datasets the module has activated. UI panels talk to their ModuleAccess
// exclusively and never reach the store or cache directly.
type ModuleAccess struct {
	module  string
	manager *Manager
	perms   Permissions
	log     zerolog.Logger

	mu     sync.Mutex
	active map[string]struct{}
}

// NewModuleAccess creates the façade for one module.
func NewModuleAccess(module string, manager *Manager, perms Permissions, log zerolog.Logger) *ModuleAccess {
	return &ModuleAccess{
		module:  module,
		manager: manager,
		perms:   perms,
		log:     log.With().Str("module", module).Logger(),
		active:  make(map[string]struct{}),
	}
}

// Module returns the module name.
func (a *ModuleAccess) Module() string {
	return a.module
}

// IsDataAccessAvailable reports whether the shared manager was wired in.
// UI surfaces hide data-dependent controls instead of crashing when it
// was not.
func (a *ModuleAccess) IsDataAccessAvailable() bool {
	return a.manager != nil
}

// AvailableDatasets lists metadata for every stored dataset whose category
// this module may read, in registration order.
func (a *ModuleAccess) AvailableDatasets() []domain.DatasetMeta {
	out := []domain.DatasetMeta{}
	for _, meta := range a.manager.Store().List() {
		if a.perms.Allows(a.module, meta.Category) {
			out = append(out, meta)
		}
	}
	return out
}

// GetAPIData fetches price frames through the shared manager.
func (a *ModuleAccess) GetAPIData(ctx context.Context, symbols []string, source domain.Source, timeframe domain.Timeframe) (map[string]*domain.Frame, error) {
	return a.manager.GetAPIData(ctx, symbols, source, timeframe, domain.FetchRange{})
}

// GetUploadedData returns the requested datasets, restricted to categories
// this module may read. With no ids it returns everything visible to the
// module.
func (a *ModuleAccess) GetUploadedData(ids []string) map[string]*domain.Frame {
	if ids == nil {
		for _, meta := range a.AvailableDatasets() {
			ids = append(ids, meta.ID)
		}
	}

	result := make(map[string]*domain.Frame, len(ids))
	for _, id := range ids {
		payload, meta, err := a.manager.Store().Get(id)
		if err != nil || !a.perms.Allows(a.module, meta.Category) {
			continue
		}
		result[id] = payload
	}
	return result
}

// GetCombinedData unions API data and visible uploaded datasets.
func (a *ModuleAccess) GetCombinedData(ctx context.Context, symbols []string, datasetIDs []string, source domain.Source, timeframe domain.Timeframe) (map[string]*domain.Frame, error) {
	apiData, err := a.GetAPIData(ctx, symbols, source, timeframe)
	if err != nil {
		return nil, err
	}

	combined := make(map[string]*domain.Frame, len(apiData)+len(datasetIDs))
	for symbol, frame := range apiData {
		combined[symbol] = frame
	}
	for id, frame := range a.GetUploadedData(datasetIDs) {
		combined[id] = frame
	}
	return combined, nil
}

// ActivateDataset marks a dataset as selected for this module. Returns false
// when the dataset does not exist or its category is not permitted - never an
// error, because activation flows treat a vanished dataset as a benign race.
func (a *ModuleAccess) ActivateDataset(id string) bool {
	meta, err := a.manager.Store().Meta(id)
	if err != nil {
		a.log.Warn().Str("dataset_id", id).Msg("Cannot activate unknown dataset")
		return false
	}
	if !a.perms.Allows(a.module, meta.Category) {
		a.log.Warn().
			Str("dataset_id", id).
			Str("category", string(meta.Category)).
			Msg("Cannot activate dataset outside permitted categories")
		return false
	}

	a.mu.Lock()
	a.active[id] = struct{}{}
	a.mu.Unlock()

	a.log.Info().Str("dataset_id", id).Msg("Dataset activated")
	return true
}

// DeactivateDataset removes a dataset from the active set. Returns false if
// it was not active.
func (a *ModuleAccess) DeactivateDataset(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.active[id]; !ok {
		return false
	}
	delete(a.active, id)
	a.log.Info().Str("dataset_id", id).Msg("Dataset deactivated")
	return true
}

// ActiveDatasets resolves the active set against the store. A dataset
// removed after activation is silently dropped from the result - no dangling
// references surface to callers.
func (a *ModuleAccess) ActiveDatasets() map[string]*domain.Frame {
	a.mu.Lock()
	ids := make([]string, 0, len(a.active))
	for id := range a.active {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	result := make(map[string]*domain.Frame, len(ids))
	for _, id := range ids {
		payload, _, err := a.manager.Store().Get(id)
		if err != nil {
			continue
		}
		result[id] = payload
	}
	return result
}

// Reset clears the module's active set.
func (a *ModuleAccess) Reset() {
	a.mu.Lock()
	a.active = make(map[string]struct{})
	a.mu.Unlock()
}

// Summary aggregates the module's data view for status panels.
type Summary struct {
	Module            string            `json:"module"`
	DatasetCount      int               `json:"dataset_count"`
	TotalRows         int               `json:"total_rows"`
	CategoriesPresent []domain.Category `json:"categories_present"`
	ActiveCount       int               `json:"active_count"`
}

// DataSummary reports what this module can currently see.
func (a *ModuleAccess) DataSummary() Summary {
	available := a.AvailableDatasets()

	seen := make(map[domain.Category]bool)
	summary := Summary{Module: a.module, CategoriesPresent: []domain.Category{}}
	for _, meta := range available {
		summary.DatasetCount++
		summary.TotalRows += meta.RowCount
		if !seen[meta.Category] {
			seen[meta.Category] = true
			summary.CategoriesPresent = append(summary.CategoriesPresent, meta.Category)
		}
	}

	a.mu.Lock()
	summary.ActiveCount = len(a.active)
	a.mu.Unlock()

	return summary
}
