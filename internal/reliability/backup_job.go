package reliability

import (
	"context"

	"github.com/rs/zerolog"
)

// BackupJob runs a snapshot followed by rotation on a cron schedule.
type BackupJob struct {
	service *BackupService
	log     zerolog.Logger
}

// NewBackupJob creates the scheduled backup job.
func NewBackupJob(service *BackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job identifier for scheduler logs.
func (j *BackupJob) Name() string {
	return "dataset_backup"
}

// Run executes one snapshot and prunes old archives.
func (j *BackupJob) Run() error {
	ctx := context.Background()
	if _, err := j.service.Snapshot(ctx); err != nil {
		return err
	}
	return j.service.Rotate(ctx)
}
