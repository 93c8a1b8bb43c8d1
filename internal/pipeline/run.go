package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/internal/notify"
	"github.com/nairabhi/habitvault/internal/store"
	"github.com/nairabhi/habitvault/pkg/models"
)

// runJob drives one job's stage sequence to a terminal state. It runs
// on a pool worker, recovers from panics, and never lets a stage
// failure escape: every failure lands in the job record's errorInfo.
func (o *Orchestrator) runJob(jobID uuid.UUID) {
	ctx := context.Background()

	job, err := o.store.GetJobByID(ctx, jobID)
	if err != nil {
		slog.Error("pipeline: load job", "error", err, "job_id", jobID)
		return
	}
	if !models.StartableState(job.Kind, job.State) {
		slog.Info("pipeline: job not startable, skipping", "job_id", jobID, "state", job.State)
		return
	}

	r := &run{job: job}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("pipeline: panic in job run", "panic", rec, "job_id", jobID)
			o.failJob(ctx, r, "", fmt.Errorf("panic: %v", rec))
		}
	}()

	stages := o.stagesFor(job)
	if len(stages) == 0 {
		o.failJob(ctx, r, "", fmt.Errorf("no stage sequence for kind %q", job.Kind))
		return
	}

	now := time.Now().UTC()
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.Progress = &models.Progress{StepCount: len(stages), LastUpdate: now}

	for i, st := range stages {
		// Re-fetch before each stage: the record is the single source of
		// truth, and this is the cooperative cancellation checkpoint.
		fresh, err := o.store.GetJobByID(ctx, jobID)
		if err != nil {
			o.failJob(ctx, r, st.name, fmt.Errorf("reload job: %w", err))
			return
		}
		if fresh.State == models.JobStateCancelled {
			slog.Info("pipeline: job cancelled, stopping", "job_id", jobID, "stage", st.name)
			return
		}
		r.job.State = fresh.State

		if err := o.enterPhase(ctx, r.job, st.phase); err != nil {
			o.failJob(ctx, r, st.name, err)
			return
		}

		// Record the stage start so no stage begins before its
		// predecessor's progress update is durable.
		p := r.job.Progress
		p.StepName = st.name
		p.StepIndex = i
		p.Percentage = 100 * i / p.StepCount
		p.LastUpdate = time.Now().UTC()
		if err := o.saveProgress(ctx, r.job); err != nil {
			if errors.Is(err, store.ErrStaleState) {
				slog.Info("pipeline: job state changed, stopping", "job_id", jobID, "stage", st.name)
				return
			}
			o.failJob(ctx, r, st.name, err)
			return
		}

		stageCtx, cancel := context.WithTimeout(ctx, o.stageTimeout)
		err = st.run(stageCtx, r)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = fmt.Errorf("stage %q exceeded its %s deadline: %w", st.name, o.stageTimeout, err)
			}
			o.failJob(ctx, r, st.name, err)
			return
		}

		// Re-check before persisting: a cancellation written while the
		// stage ran must not be overwritten by the progress update.
		fresh, err = o.store.GetJobByID(ctx, jobID)
		if err != nil {
			o.failJob(ctx, r, st.name, fmt.Errorf("reload job: %w", err))
			return
		}
		if fresh.State == models.JobStateCancelled {
			slog.Info("pipeline: job cancelled, stopping", "job_id", jobID, "stage", st.name)
			return
		}

		p.StepIndex = i + 1
		p.Percentage = 100 * (i + 1) / p.StepCount
		p.LastUpdate = time.Now().UTC()
		if err := o.saveProgress(ctx, r.job); err != nil {
			if errors.Is(err, store.ErrStaleState) {
				slog.Info("pipeline: job state changed, stopping", "job_id", jobID, "stage", st.name)
				return
			}
			o.failJob(ctx, r, st.name, err)
			return
		}
	}

	done := time.Now().UTC()
	r.job.CompletedAt = &done
	if err := o.transition(ctx, r.job, models.JobStateCompleted); err != nil {
		o.failJob(ctx, r, "finalize", err)
		return
	}
	slog.Info("pipeline: job completed", "job_id", jobID, "kind", r.job.Kind)
}

// saveProgress persists a progress update without moving the state; the
// write requires the stored state to be unchanged, so a cancellation
// landing mid-stage can never be resurrected by it.
func (o *Orchestrator) saveProgress(ctx context.Context, job *models.Job) error {
	if err := o.store.SaveJobIfState(ctx, job, job.State); err != nil {
		if errors.Is(err, store.ErrStaleState) {
			return err
		}
		return fmt.Errorf("persist progress: %w", err)
	}
	return nil
}

// enterPhase moves the job into the state its next stage requires.
func (o *Orchestrator) enterPhase(ctx context.Context, job *models.Job, ph phase) error {
	switch ph {
	case phaseValidate:
		if job.State == models.JobStatePending {
			return o.transition(ctx, job, models.JobStateValidating)
		}
	case phaseExecute:
		if job.State == models.JobStateValidating {
			now := time.Now().UTC()
			job.ValidatedAt = &now
			if err := o.transition(ctx, job, models.JobStateValidated); err != nil {
				return err
			}
		}
		if job.State != models.JobStateInProgress {
			return o.transition(ctx, job, models.JobStateInProgress)
		}
	}
	return nil
}

// transition enforces the state table, persists the change, mirrors it
// to the cache, and emits a notification. The write is conditional on
// the stored row still being in the from-state, so a concurrent writer
// (a cancel, typically) cannot be overwritten.
func (o *Orchestrator) transition(ctx context.Context, job *models.Job, to string) error {
	from := job.State
	if !models.CanTransition(from, to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	job.State = to
	if err := o.store.SaveJobIfState(ctx, job, from); err != nil {
		return fmt.Errorf("persist state %s: %w", to, err)
	}
	_ = o.cache.SetJobState(ctx, job.OwnerID, job.ID, to, jobStateTTL)
	o.notifier.JobEvent(ctx, job.OwnerID, notify.Event{
		JobID: job.ID, Kind: job.Kind, State: to, At: time.Now().UTC(),
	})
	return nil
}

// failJob writes the failure into errorInfo, computes retry
// eligibility, commits the failed state, and hands imports to the
// rollback coordinator when applicable.
func (o *Orchestrator) failJob(ctx context.Context, r *run, stageName string, cause error) {
	job := r.job
	slog.Error("pipeline: stage failed", "error", cause, "job_id", job.ID, "kind", job.Kind, "stage", stageName)

	// The stored record may have gone terminal while the stage ran (a
	// cancel racing a failing stage); a terminal state must never be
	// overwritten, so check the row before writing the failure.
	if fresh, err := o.store.GetJobByID(ctx, job.ID); err == nil {
		if models.IsTerminalState(fresh.State) {
			slog.Info("pipeline: job already terminal, failure not recorded",
				"job_id", job.ID, "state", fresh.State)
			return
		}
		job.State = fresh.State
	}

	prevRetries := 0
	if job.ErrorInfo != nil {
		prevRetries = job.ErrorInfo.RetryCount
	}

	var vErr *ValidationError
	if errors.As(cause, &vErr) {
		// Validation failures are structural, never retried.
		job.Validation = vErr.Report
		job.ErrorInfo = &models.ErrorInfo{
			Message:    cause.Error(),
			Stage:      stageName,
			RetryCount: prevRetries,
			MaxRetries: o.retry.MaxRetries,
		}
	} else {
		d := o.retry.Next(prevRetries, time.Now().UTC())
		info := &models.ErrorInfo{
			Message:    cause.Error(),
			Stage:      stageName,
			RetryCount: d.RetryCount,
			MaxRetries: o.retry.MaxRetries,
			CanRetry:   d.CanRetry,
		}
		if d.CanRetry {
			next := d.NextRetryAt
			info.NextRetryAt = &next
		}
		job.ErrorInfo = info
	}

	if err := o.transition(ctx, job, models.JobStateFailed); err != nil {
		// The job may already be terminal (e.g. cancelled mid-failure);
		// log and leave the record as is.
		slog.Error("pipeline: commit failed state", "error", err, "job_id", job.ID)
		return
	}

	if job.Kind == models.JobKindImport && job.Options.RollbackOnError && job.SnapshotKey != nil {
		o.rollback(ctx, job)
	}
}
