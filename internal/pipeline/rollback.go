package pipeline

import (
	"context"
	"log/slog"

	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/internal/storage"
	"github.com/nairabhi/habitvault/pkg/models"
)

// rollback restores the pre-import snapshot after a failed import. Only
// called when the snapshot stage completed and rollbackOnError is set.
// On success the job becomes rolled_back; on failure it stays failed
// with rollbackSucceeded=false and is surfaced for manual intervention.
// Rollback itself is never retried automatically.
func (o *Orchestrator) rollback(ctx context.Context, job *models.Job) {
	job.ErrorInfo.RollbackAttempted = true

	restore := func() error {
		data, err := storage.ReadAll(ctx, o.storage, *job.SnapshotKey)
		if err != nil {
			return err
		}
		snap, err := (&archive.JSONCodec{}).Decode(data)
		if err != nil {
			return err
		}
		return o.importer.Restore(ctx, job.OwnerID, snap)
	}

	if err := restore(); err != nil {
		slog.Error("pipeline: rollback failed, manual intervention required",
			"error", err, "job_id", job.ID, "snapshot", *job.SnapshotKey)
		job.ErrorInfo.RollbackSucceeded = false
		if saveErr := o.store.SaveJob(ctx, job); saveErr != nil {
			slog.Error("pipeline: persist rollback failure", "error", saveErr, "job_id", job.ID)
		}
		return
	}

	job.ErrorInfo.RollbackSucceeded = true
	if err := o.transition(ctx, job, models.JobStateRolledBack); err != nil {
		slog.Error("pipeline: commit rolled_back state", "error", err, "job_id", job.ID)
	}
}
