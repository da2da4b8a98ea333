package core

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/craftyard/craftyard/internal/deployer"
	"github.com/craftyard/craftyard/internal/model"
	"github.com/craftyard/craftyard/internal/platform"
)

// BackupStore is the object storage surface the backup service needs. A nil
// store means backups are not configured on this deployment.
type BackupStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// BackupService archives server data directories to object storage and
// restores them. Archives are gzipped container tars keyed by server id and
// timestamp.
type BackupService struct {
	db     DB
	engine deployer.Engine
	store  BackupStore
	logger zerolog.Logger
}

func NewBackupService(db DB, engine deployer.Engine, store BackupStore, logger zerolog.Logger) *BackupService {
	return &BackupService{
		db:     db,
		engine: engine,
		store:  store,
		logger: logger.With().Str("component", "backup-service").Logger(),
	}
}

// Enabled reports whether an object store is configured.
func (s *BackupService) Enabled() bool {
	return s.store != nil
}

// Create archives the server's /data directory and uploads it. Works on
// running servers too; the world may be mid-write, which a stopped-server
// backup avoids but we do not force.
func (s *BackupService) Create(ctx context.Context, serverID string) (*model.Backup, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: object storage is not configured", ErrUnavailable)
	}

	var name string
	var containerID *string
	err := s.db.QueryRow(ctx, `SELECT name, container_id FROM servers WHERE id = $1`, serverID).Scan(&name, &containerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: server %s", ErrNotFound, serverID)
		}
		return nil, fmt.Errorf("get server %s: %w", serverID, err)
	}
	if containerID == nil {
		return nil, fmt.Errorf("%w: server %s has no container to back up", ErrConflict, name)
	}

	rc, err := s.engine.CopyFromContainer(ctx, *containerID, "/data")
	if err != nil {
		return nil, fmt.Errorf("export server data: %w: %w", ErrRuntime, err)
	}
	defer rc.Close()

	// Spool the compressed archive to disk first; worlds can be large and
	// the object store wants a sized body.
	tmp, err := os.CreateTemp("", "craftyard-backup-*.tar.gz")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	gz := gzip.NewWriter(tmp)
	if _, err := io.Copy(gz, rc); err != nil {
		return nil, fmt.Errorf("compress server data: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress server data: %w", err)
	}

	info, err := tmp.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat spool file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind spool file: %w", err)
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%s/%s.tar.gz", serverID, now.Format("20060102T150405Z"))
	if err := s.store.Put(ctx, key, tmp, info.Size()); err != nil {
		return nil, fmt.Errorf("upload backup: %w", err)
	}

	backup := &model.Backup{
		ID:        platform.NewID(),
		ServerID:  serverID,
		ObjectKey: key,
		SizeBytes: info.Size(),
		CreatedAt: now,
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO backups (id, server_id, object_key, size_bytes, created_at) VALUES ($1, $2, $3, $4, $5)`,
		backup.ID, backup.ServerID, backup.ObjectKey, backup.SizeBytes, backup.CreatedAt,
	)
	if err != nil {
		// The object made it up but the record did not; take it back down.
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("key", key).Msg("orphaned backup object left behind")
		}
		return nil, fmt.Errorf("insert backup: %w", err)
	}

	s.logger.Info().
		Str("server_id", serverID).
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Msg("created backup")
	return backup, nil
}

// List retrieves a server's backups, newest first.
func (s *BackupService) List(ctx context.Context, serverID string) ([]model.Backup, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, server_id, object_key, size_bytes, created_at
		 FROM backups WHERE server_id = $1 ORDER BY created_at DESC`, serverID,
	)
	if err != nil {
		return nil, fmt.Errorf("list backups for server %s: %w", serverID, err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		var b model.Backup
		if err := rows.Scan(&b.ID, &b.ServerID, &b.ObjectKey, &b.SizeBytes, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backups: %w", err)
	}
	return backups, nil
}

// Restore unpacks a backup archive into the server's container. The server
// must be stopped so the world is not overwritten underneath a live
// process.
func (s *BackupService) Restore(ctx context.Context, serverID, backupID string) error {
	if s.store == nil {
		return fmt.Errorf("%w: object storage is not configured", ErrUnavailable)
	}

	var name, status string
	var containerID *string
	err := s.db.QueryRow(ctx, `SELECT name, status, container_id FROM servers WHERE id = $1`, serverID).Scan(&name, &status, &containerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: server %s", ErrNotFound, serverID)
		}
		return fmt.Errorf("get server %s: %w", serverID, err)
	}
	if status != model.StatusStopped {
		return fmt.Errorf("%w: server %s must be stopped to restore", ErrConflict, name)
	}
	if containerID == nil {
		return fmt.Errorf("%w: server %s has no container", ErrConflict, name)
	}

	var key string
	err = s.db.QueryRow(ctx, `SELECT object_key FROM backups WHERE id = $1 AND server_id = $2`, backupID, serverID).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: backup %s", ErrNotFound, backupID)
		}
		return fmt.Errorf("get backup %s: %w", backupID, err)
	}

	rc, _, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("download backup: %w", err)
	}
	defer rc.Close()

	gz, err := gzip.NewReader(rc)
	if err != nil {
		return fmt.Errorf("open backup archive: %w", err)
	}
	defer gz.Close()

	// The archive was taken of /data, so its entries are rooted at data/;
	// extracting at / puts them back.
	if err := s.engine.CopyToContainer(ctx, *containerID, "/", gz); err != nil {
		return fmt.Errorf("restore server data: %w: %w", ErrRuntime, err)
	}

	s.logger.Info().Str("server_id", serverID).Str("key", key).Msg("restored backup")
	return nil
}

// Delete removes a backup record and its archive. A missing archive object
// does not block the record's removal.
func (s *BackupService) Delete(ctx context.Context, serverID, backupID string) error {
	var key string
	err := s.db.QueryRow(ctx, `SELECT object_key FROM backups WHERE id = $1 AND server_id = $2`, backupID, serverID).Scan(&key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: backup %s", ErrNotFound, backupID)
		}
		return fmt.Errorf("get backup %s: %w", backupID, err)
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("delete backup object failed")
		}
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM backups WHERE id = $1`, backupID); err != nil {
		return fmt.Errorf("delete backup %s: %w", backupID, err)
	}
	return nil
}

// PurgeServer drops all archived objects and records for a server. Called
// before the server itself is deleted.
func (s *BackupService) PurgeServer(ctx context.Context, serverID string) error {
	if s.store != nil {
		if err := s.store.DeletePrefix(ctx, serverID+"/"); err != nil {
			return fmt.Errorf("purge backup objects: %w", err)
		}
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM backups WHERE server_id = $1`, serverID); err != nil {
		return fmt.Errorf("purge backup records: %w", err)
	}
	return nil
}
