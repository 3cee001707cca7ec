// Package di provides dependency injection type definitions.
//
// The Container is the single source of truth for all service instances and
// is passed to handlers for access to services.
package di

import (
	"github.com/tradepulse/datahub/internal/access"
	"github.com/tradepulse/datahub/internal/config"
	"github.com/tradepulse/datahub/internal/database"
	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/events"
	"github.com/tradepulse/datahub/internal/export"
	"github.com/tradepulse/datahub/internal/fetchcache"
	"github.com/tradepulse/datahub/internal/modules/analytics"
	"github.com/tradepulse/datahub/internal/modules/indicators"
	"github.com/tradepulse/datahub/internal/reliability"
	"github.com/tradepulse/datahub/internal/scheduler"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config

	// Storage
	CacheDB *database.DB
	Store   *datasets.Store
	Cache   *fetchcache.Cache

	// Data access
	Manager *access.Manager
	Modules map[string]*access.ModuleAccess

	// Services
	Indicators *indicators.Service
	Analytics  *analytics.Service
	Exporter   *export.Service
	Backup     *reliability.BackupService // nil when backups are disabled

	// Infrastructure
	Bus       *events.Bus
	Scheduler *scheduler.Scheduler
}

// Module returns the access façade for one module, or nil when the module
// name is unknown.
func (c *Container) Module(name string) *access.ModuleAccess {
	return c.Modules[name]
}

// Close releases held resources. Safe to call once during shutdown.
func (c *Container) Close() error {
	if c.CacheDB != nil {
		return c.CacheDB.Close()
	}
	return nil
}
