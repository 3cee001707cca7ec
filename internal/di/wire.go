package di

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/access"
	"github.com/tradepulse/datahub/internal/clients/alphavantage"
	"github.com/tradepulse/datahub/internal/clients/iexcloud"
	"github.com/tradepulse/datahub/internal/clients/mock"
	"github.com/tradepulse/datahub/internal/clients/yahoo"
	"github.com/tradepulse/datahub/internal/config"
	"github.com/tradepulse/datahub/internal/database"
	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/domain"
	"github.com/tradepulse/datahub/internal/events"
	"github.com/tradepulse/datahub/internal/export"
	"github.com/tradepulse/datahub/internal/fetchcache"
	"github.com/tradepulse/datahub/internal/modules/analytics"
	"github.com/tradepulse/datahub/internal/modules/indicators"
	"github.com/tradepulse/datahub/internal/reliability"
	"github.com/tradepulse/datahub/internal/scheduler"
)

const cacheCleanupSchedule = "@every 10m"

// Wire builds the full dependency graph from configuration.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	cacheDB, err := database.New(database.Config{
		Path:    cfg.CacheDBPath(),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	cache, err := fetchcache.New(cacheDB.Conn(), cfg.CacheTTL, log)
	if err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to initialize fetch cache: %w", err)
	}

	store := datasets.NewStore(log)
	bus := events.NewBus(log)

	perms, err := access.LoadPermissions(cfg.PermissionsFile)
	if err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to load module permissions: %w", err)
	}

	manager := access.NewManager(store, cache, buildFetchers(cfg, log), cfg.FetchTimeout, bus, log)

	modules := make(map[string]*access.ModuleAccess, len(perms))
	names := make([]string, 0, len(perms))
	for name := range perms {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		modules[name] = access.NewModuleAccess(name, manager, perms, log)
	}

	exporter := export.NewService(store, cfg.ExportDir(), log)

	container := &Container{
		Config:     cfg,
		CacheDB:    cacheDB,
		Store:      store,
		Cache:      cache,
		Manager:    manager,
		Modules:    modules,
		Indicators: indicators.NewService(store, log),
		Analytics:  analytics.NewService(store, log),
		Exporter:   exporter,
		Bus:        bus,
		Scheduler:  scheduler.New(log),
	}

	if err := container.Scheduler.AddJob(cacheCleanupSchedule, fetchcache.NewCleanupJob(cache, log)); err != nil {
		cacheDB.Close()
		return nil, fmt.Errorf("failed to schedule cache cleanup: %w", err)
	}

	if cfg.Backup.Enabled {
		if err := wireBackup(ctx, container, cfg, log); err != nil {
			cacheDB.Close()
			return nil, err
		}
	}

	return container, nil
}

// buildFetchers assembles the source registry. Yahoo and the deterministic
// mock generator are always available; keyed providers register only when
// their credentials are configured.
func buildFetchers(cfg *config.Config, log zerolog.Logger) []domain.SourceFetcher {
	fetchers := []domain.SourceFetcher{
		yahoo.NewClient(log),
		mock.NewGenerator(0, log),
	}
	if cfg.AlphaVantageAPIKey != "" {
		fetchers = append(fetchers, alphavantage.NewClient(cfg.AlphaVantageAPIKey, log))
	}
	if cfg.IEXToken != "" {
		fetchers = append(fetchers, iexcloud.NewClient(cfg.IEXToken, log))
	}
	return fetchers
}

func wireBackup(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	s3Ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := reliability.NewS3Client(s3Ctx, reliability.S3Config{
		Endpoint:  cfg.Backup.Endpoint,
		Region:    cfg.Backup.Region,
		Bucket:    cfg.Backup.Bucket,
		AccessKey: cfg.Backup.AccessKey,
		SecretKey: cfg.Backup.SecretKey,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create backup storage client: %w", err)
	}

	container.Backup = reliability.NewBackupService(
		container.Store,
		container.Exporter,
		client,
		container.Bus,
		cfg.Backup.Keep,
		log,
	)

	if cfg.Backup.Schedule != "" {
		job := reliability.NewBackupJob(container.Backup, log)
		if err := container.Scheduler.AddJob(cfg.Backup.Schedule, job); err != nil {
			return fmt.Errorf("failed to schedule backup job: %w", err)
		}
	}
	return nil
}
