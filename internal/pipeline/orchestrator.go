// Package pipeline implements the data lifecycle job pipeline: a state
// machine driving export, import, and backup jobs through their stage
// sequences with progress reporting, integrity verification, retry
// bookkeeping, and import rollback.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/internal/habitdata"
	"github.com/nairabhi/habitvault/internal/notify"
	"github.com/nairabhi/habitvault/internal/storage"
	"github.com/nairabhi/habitvault/internal/store"
	"github.com/nairabhi/habitvault/pkg/models"
)

const jobStateTTL = 30 * time.Minute

// JobStore is the slice of the data layer the pipeline needs. The
// orchestrator task driving a job is its only writer; every stage
// boundary is a re-fetch, mutate, save round trip.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Job, error)
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	SaveJob(ctx context.Context, job *models.Job) error
	SaveJobIfState(ctx context.Context, job *models.Job, fromState string) error
	DeleteJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error
}

// StateCache mirrors job states for cheap polling.
type StateCache interface {
	SetJobState(ctx context.Context, ownerID, jobID uuid.UUID, state string, ttl time.Duration) error
}

// Collector gathers an owner's data for export, backup, and snapshots.
type Collector interface {
	Collect(ctx context.Context, ownerID uuid.UUID, opts models.JobOptions) (*archive.Archive, error)
}

// Importer applies archives and restores snapshots.
type Importer interface {
	Apply(ctx context.Context, ownerID uuid.UUID, a *archive.Archive, policy string) (habitdata.ImportStats, error)
	Restore(ctx context.Context, ownerID uuid.UUID, a *archive.Archive) error
}

// Options wires the orchestrator's collaborators. Everything is
// injected; the pipeline owns no globals.
type Options struct {
	Store        JobStore
	Cache        StateCache
	Storage      storage.Client
	Collector    Collector
	Importer     Importer
	Notifier     notify.Notifier
	Pool         *Pool
	Retry        RetryPolicy
	StageTimeout time.Duration
	Encryptor    archive.Encryptor
}

// Orchestrator is the top-level state machine sequencing stages for each
// job kind.
type Orchestrator struct {
	store        JobStore
	cache        StateCache
	storage      storage.Client
	collector    Collector
	importer     Importer
	notifier     notify.Notifier
	pool         *Pool
	retry        RetryPolicy
	stageTimeout time.Duration
	encryptor    archive.Encryptor
}

// New creates an Orchestrator from its collaborators.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		store:        opts.Store,
		cache:        opts.Cache,
		storage:      opts.Storage,
		collector:    opts.Collector,
		importer:     opts.Importer,
		notifier:     opts.Notifier,
		pool:         opts.Pool,
		retry:        opts.Retry,
		stageTimeout: opts.StageTimeout,
		encryptor:    opts.Encryptor,
	}
	if o.notifier == nil {
		o.notifier = notify.LogNotifier{}
	}
	if o.stageTimeout <= 0 {
		o.stageTimeout = 5 * time.Minute
	}
	return o
}

// Create validates the options for the kind, persists a pending job, and
// submits it for asynchronous execution. Returns immediately with the
// pending job; callers poll or subscribe for completion.
func (o *Orchestrator) Create(ctx context.Context, ownerID uuid.UUID, kind string, opts models.JobOptions) (*models.Job, error) {
	if err := o.validateOptions(kind, opts); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Kind:      kind,
		State:     models.JobStatePending,
		Options:   opts,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := o.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	_ = o.cache.SetJobState(ctx, job.OwnerID, job.ID, job.State, jobStateTTL)

	o.Start(ctx, job.ID)
	return o.store.GetJobByID(ctx, job.ID)
}

// Start submits the job's stage sequence to the worker pool. A no-op
// when the job is not in a startable state. Pool saturation marks the
// job failed with a retryable error rather than blocking the caller.
func (o *Orchestrator) Start(ctx context.Context, jobID uuid.UUID) {
	if err := o.pool.Submit(func() { o.runJob(jobID) }); err != nil {
		job, getErr := o.store.GetJobByID(ctx, jobID)
		if getErr != nil {
			return
		}
		r := &run{job: job}
		o.failJob(context.Background(), r, "submit", fmt.Errorf("submit job: %w", err))
	}
}

// Cancel moves a pending, validating, or in-progress job to cancelled.
// A running stage observes the cancellation at its next checkpoint; no
// rollback happens.
func (o *Orchestrator) Cancel(ctx context.Context, jobID, ownerID uuid.UUID) (*models.Job, error) {
	job, err := o.store.GetJob(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	switch job.State {
	case models.JobStatePending, models.JobStateValidating, models.JobStateInProgress:
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotCancellable, job.State)
	}

	// Conditional write: if the worker moved the job on between our read
	// and this save, the cancel loses and the caller is told why.
	fromState := job.State
	job.State = models.JobStateCancelled
	if err := o.store.SaveJobIfState(ctx, job, fromState); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return nil, fmt.Errorf("%w: job moved on from %s", ErrNotCancellable, fromState)
		}
		return nil, fmt.Errorf("cancel job: %w", err)
	}
	_ = o.cache.SetJobState(ctx, job.OwnerID, job.ID, job.State, jobStateTTL)
	o.notifier.JobEvent(ctx, job.OwnerID, notify.Event{
		JobID: job.ID, Kind: job.Kind, State: job.State, At: time.Now().UTC(),
	})
	return job, nil
}

// Retry re-enters a failed job into the pipeline. errorInfo is cleared
// except for the retry count; the sequence restarts from the first
// stage, so imports re-validate.
func (o *Orchestrator) Retry(ctx context.Context, jobID, ownerID uuid.UUID) (*models.Job, error) {
	job, err := o.store.GetJob(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	if job.State != models.JobStateFailed {
		return nil, fmt.Errorf("%w: %s", ErrNotRetryable, job.State)
	}

	retryCount := 0
	if job.ErrorInfo != nil {
		retryCount = job.ErrorInfo.RetryCount
	}
	job.State = models.JobStatePending
	job.ErrorInfo = &models.ErrorInfo{RetryCount: retryCount, MaxRetries: o.retry.MaxRetries}
	job.Progress = nil
	job.Validation = nil
	job.Verification = nil
	job.CompletedAt = nil

	// Only one retry may win: the write requires the row to still be
	// failed, so a duplicate request cannot double-enter the pipeline.
	if err := o.store.SaveJobIfState(ctx, job, models.JobStateFailed); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return nil, fmt.Errorf("%w: job is no longer failed", ErrNotRetryable)
		}
		return nil, fmt.Errorf("retry job: %w", err)
	}
	_ = o.cache.SetJobState(ctx, job.OwnerID, job.ID, job.State, jobStateTTL)

	o.Start(ctx, job.ID)
	return o.store.GetJob(ctx, jobID, ownerID)
}

// Download opens the artifact of a completed export or backup job.
func (o *Orchestrator) Download(ctx context.Context, jobID, ownerID uuid.UUID) (io.ReadCloser, *models.Artifact, error) {
	job, err := o.store.GetJob(ctx, jobID, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if job.State != models.JobStateCompleted || job.Kind == models.JobKindImport || job.Artifact == nil {
		return nil, nil, ErrNoArtifact
	}
	rc, err := o.storage.Open(ctx, job.Artifact.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact: %w", err)
	}
	return rc, job.Artifact, nil
}

// Delete removes a finished job along with its artifact and snapshot
// objects. Deleting a running job is refused; cancel it first.
func (o *Orchestrator) Delete(ctx context.Context, jobID, ownerID uuid.UUID) error {
	job, err := o.store.GetJob(ctx, jobID, ownerID)
	if err != nil {
		return err
	}
	if !models.IsTerminalState(job.State) {
		return ErrJobActive
	}
	if job.Artifact != nil && job.Kind != models.JobKindImport {
		if err := o.storage.Delete(ctx, job.Artifact.Key); err != nil {
			return fmt.Errorf("delete artifact: %w", err)
		}
	}
	if job.SnapshotKey != nil {
		if err := o.storage.Delete(ctx, *job.SnapshotKey); err != nil {
			return fmt.Errorf("delete snapshot: %w", err)
		}
	}
	return o.store.DeleteJob(ctx, jobID, ownerID)
}

func (o *Orchestrator) validateOptions(kind string, opts models.JobOptions) error {
	switch kind {
	case models.JobKindExport:
		if err := validFormat(opts.Format); err != nil {
			return err
		}
		switch opts.ExportType {
		case "", models.ExportFullData, models.ExportHabitsOnly, models.ExportEntriesOnly:
		default:
			return fmt.Errorf("%w: unknown export_type %q", ErrInvalidOptions, opts.ExportType)
		}
		if opts.From != nil && opts.To != nil && opts.To.Before(*opts.From) {
			return fmt.Errorf("%w: to must not precede from", ErrInvalidOptions)
		}
	case models.JobKindBackup:
		if opts.Encrypt && o.encryptor == nil {
			return fmt.Errorf("%w: encryption requested but no encryption key is configured", ErrInvalidOptions)
		}
	case models.JobKindImport:
		if err := validFormat(opts.Format); err != nil {
			return err
		}
		if opts.SourceKey == "" {
			return fmt.Errorf("%w: source_key is required for import", ErrInvalidOptions)
		}
		switch opts.ConflictPolicy {
		case "", models.ConflictSkip, models.ConflictOverwrite, models.ConflictMerge:
		default:
			return fmt.Errorf("%w: unknown conflict_policy %q", ErrInvalidOptions, opts.ConflictPolicy)
		}
	default:
		return fmt.Errorf("%w: unknown job kind %q", ErrInvalidOptions, kind)
	}
	return nil
}

func validFormat(format string) error {
	switch format {
	case "", models.FormatJSON, models.FormatCSV:
		return nil
	}
	return fmt.Errorf("%w: unknown format %q", ErrInvalidOptions, format)
}
