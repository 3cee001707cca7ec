package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/events"
	"github.com/tradepulse/datahub/internal/export"
)

const backupPrefix = "datahub-backup-"

// SnapshotMetadata describes the contents of one backup archive.
type SnapshotMetadata struct {
	Timestamp time.Time       `json:"timestamp"`
	Version   string          `json:"version"`
	Datasets  []EntryMetadata `json:"datasets"`
}

// EntryMetadata describes a single dataset file inside the archive.
type EntryMetadata struct {
	DatasetID string `json:"dataset_id"`
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	RowCount  int    `json:"row_count"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// BackupInfo summarizes one archive stored in the bucket.
type BackupInfo struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	AgeHours  int64     `json:"age_hours"`
}

// BackupService snapshots every stored dataset into a tar.gz archive and
// uploads it to an S3-compatible bucket.
type BackupService struct {
	store    *datasets.Store
	exporter *export.Service
	objects  ObjectStore
	bus      *events.Bus
	keep     int
	log      zerolog.Logger
}

// NewBackupService creates the backup service. keep is the number of newest
// archives preserved during rotation; values below 1 mean keep everything.
func NewBackupService(
	store *datasets.Store,
	exporter *export.Service,
	objects ObjectStore,
	bus *events.Bus,
	keep int,
	log zerolog.Logger,
) *BackupService {
	return &BackupService{
		store:    store,
		exporter: exporter,
		objects:  objects,
		bus:      bus,
		keep:     keep,
		log:      log.With().Str("service", "backup").Logger(),
	}
}

// Snapshot exports every dataset as JSON, archives the files with a metadata
// manifest and uploads the archive. Returns the uploaded archive name.
func (s *BackupService) Snapshot(ctx context.Context) (string, error) {
	start := time.Now()
	s.log.Info().Msg("Starting backup snapshot")

	staging, err := os.MkdirTemp("", "datahub-backup-*")
	if err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	metadata := SnapshotMetadata{
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
	}

	var files []string
	for _, id := range s.store.IDs() {
		exported, err := s.exporter.Export(id, export.FormatJSON)
		if err != nil {
			return "", fmt.Errorf("failed to export %s: %w", id, err)
		}

		filename := filepath.Base(exported)
		staged := filepath.Join(staging, filename)
		if err := copyFile(exported, staged); err != nil {
			return "", fmt.Errorf("failed to stage %s: %w", filename, err)
		}

		info, err := os.Stat(staged)
		if err != nil {
			return "", err
		}
		checksum, err := fileChecksum(staged)
		if err != nil {
			return "", fmt.Errorf("failed to checksum %s: %w", filename, err)
		}

		meta, err := s.store.Meta(id)
		if err != nil {
			return "", err
		}
		metadata.Datasets = append(metadata.Datasets, EntryMetadata{
			DatasetID: id,
			Name:      meta.Name,
			Filename:  filename,
			RowCount:  meta.RowCount,
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
		files = append(files, filename)
	}

	manifestPath := filepath.Join(staging, "backup-metadata.json")
	if err := writeManifest(manifestPath, metadata); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	files = append(files, "backup-metadata.json")

	archiveName := fmt.Sprintf("%s%s.tar.gz", backupPrefix, metadata.Timestamp.Format("2006-01-02-150405"))
	archivePath := filepath.Join(staging, archiveName)
	if err := createArchive(archivePath, staging, files); err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	if err := s.objects.Upload(ctx, archiveName, archive); err != nil {
		return "", fmt.Errorf("failed to upload archive: %w", err)
	}

	if s.bus != nil {
		s.bus.Publish(events.BackupCompleted, "backup", map[string]any{
			"archive":  archiveName,
			"datasets": len(metadata.Datasets),
		})
	}

	s.log.Info().
		Dur("duration_ms", time.Since(start)).
		Str("archive", archiveName).
		Int("datasets", len(metadata.Datasets)).
		Msg("Backup snapshot completed")
	return archiveName, nil
}

// ListBackups lists archives in the bucket, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	objects, err := s.objects.List(ctx, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	now := time.Now()
	backups := make([]BackupInfo, 0, len(objects))
	for _, obj := range objects {
		timestamp, ok := parseBackupTimestamp(obj.Key)
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping object with unparseable name")
			continue
		}
		backups = append(backups, BackupInfo{
			Filename:  obj.Key,
			Timestamp: timestamp,
			SizeBytes: obj.SizeBytes,
			AgeHours:  int64(now.Sub(timestamp).Hours()),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// Rotate deletes all but the keep newest archives.
func (s *BackupService) Rotate(ctx context.Context) error {
	if s.keep < 1 {
		return nil
	}

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) <= s.keep {
		return nil
	}

	deleted := 0
	for _, backup := range backups[s.keep:] {
		if err := s.objects.Delete(ctx, backup.Filename); err != nil {
			s.log.Error().Err(err).Str("filename", backup.Filename).Msg("Failed to delete old backup")
			continue
		}
		s.log.Info().Str("filename", backup.Filename).Msg("Deleted old backup")
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(backups)-deleted).
		Msg("Backup rotation completed")
	return nil
}

func parseBackupTimestamp(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, backupPrefix) || !strings.HasSuffix(key, ".tar.gz") {
		return time.Time{}, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(key, backupPrefix), ".tar.gz")
	timestamp, err := time.Parse("2006-01-02-150405", raw)
	if err != nil {
		return time.Time{}, false
	}
	return timestamp, true
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

func writeManifest(path string, metadata SnapshotMetadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(metadata)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func createArchive(archivePath, sourceDir string, filenames []string) error {
	archive, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer archive.Close()

	gzipWriter := gzip.NewWriter(archive)
	defer gzipWriter.Close()

	tarWriter := tar.NewWriter(gzipWriter)
	defer tarWriter.Close()

	for _, filename := range filenames {
		if err := addFileToArchive(tarWriter, filepath.Join(sourceDir, filename), filename); err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", filename, err)
		}
	}
	return nil
}

func addFileToArchive(tarWriter *tar.Writer, path, nameInArchive string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tarWriter, f)
	return err
}
