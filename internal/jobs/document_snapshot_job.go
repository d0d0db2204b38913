package jobs

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/straye-as/pfmt-tracker/internal/storage"
)

// DocumentSnapshotJobName is the name of the periodic document backup
const DocumentSnapshotJobName = "document_snapshot"

// SnapshotKind prefixes snapshot object names in backup storage
const SnapshotKind = "snapshots"

// DefaultSnapshotRetention is how many snapshots are kept
const DefaultSnapshotRetention = 14

// DocumentSource exposes the persisted document bytes
type DocumentSource interface {
	Raw() ([]byte, error)
	Now() time.Time
}

// MetadataRefresher recomputes derived vendor rollups before a snapshot
type MetadataRefresher interface {
	RefreshMetadata(ctx context.Context) error
}

// DocumentSnapshotJob uploads the current document to backup storage and
// prunes old snapshots
type DocumentSnapshotJob struct {
	source    DocumentSource
	refresher MetadataRefresher
	backups   storage.Storage
	logger    *zap.Logger
	retention int
}

// NewDocumentSnapshotJob creates the snapshot job. refresher may be nil.
// A retention below one keeps every snapshot.
func NewDocumentSnapshotJob(source DocumentSource, refresher MetadataRefresher, backups storage.Storage, logger *zap.Logger, retention int) *DocumentSnapshotJob {
	return &DocumentSnapshotJob{
		source:    source,
		refresher: refresher,
		backups:   backups,
		logger:    logger,
		retention: retention,
	}
}

// Run takes one snapshot. A failed metadata refresh or pruning does not stop
// the upload; all failures are reported together.
func (j *DocumentSnapshotJob) Run(ctx context.Context) error {
	var errs error
	if j.refresher != nil {
		if err := j.refresher.RefreshMetadata(ctx); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("refresh vendor metadata: %w", err))
		}
	}

	raw, err := j.source.Raw()
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("read document: %w", err))
	}
	name := storage.ObjectName(SnapshotKind, j.source.Now())
	size, err := j.backups.Put(ctx, name, "application/json", bytes.NewReader(raw))
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("upload snapshot: %w", err))
	}
	j.logger.Info("document snapshot written",
		zap.String("object", name),
		zap.Int64("bytes", size))

	return multierr.Append(errs, j.prune(ctx))
}

// prune deletes snapshots beyond the retention count, oldest first
func (j *DocumentSnapshotJob) prune(ctx context.Context) error {
	if j.retention < 1 {
		return nil
	}
	objects, err := j.backups.List(ctx, SnapshotKind+"/")
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if len(objects) <= j.retention {
		return nil
	}

	var errs error
	for _, obj := range objects[j.retention:] {
		if err := j.backups.Delete(ctx, obj.Name); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("delete snapshot %s: %w", obj.Name, err))
			continue
		}
		j.logger.Debug("pruned document snapshot", zap.String("object", obj.Name))
	}
	return errs
}

// RegisterDocumentSnapshotJob registers the snapshot job with the scheduler
func RegisterDocumentSnapshotJob(scheduler *Scheduler, job *DocumentSnapshotJob, cronExpr string) error {
	return scheduler.AddJob(DocumentSnapshotJobName, cronExpr, job.Run)
}
