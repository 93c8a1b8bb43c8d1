package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/internal/storage"
	"github.com/nairabhi/habitvault/pkg/models"
)

// importStages: validate-format -> validate-schema -> validate-data ->
// [snapshot] -> apply -> finalize. The three validation stages gate
// execution: any failure fails the job outright and no partial import
// is attempted.
func (o *Orchestrator) importStages(opts models.JobOptions) []stage {
	stages := []stage{
		{name: "validate-format", phase: phaseValidate, run: o.stageValidateFormat},
		{name: "validate-schema", phase: phaseValidate, run: o.stageValidateSchema},
		{name: "validate-data", phase: phaseValidate, run: o.stageValidateData},
	}
	if opts.RollbackOnError {
		stages = append(stages, stage{name: "snapshot", phase: phaseExecute, run: o.stageSnapshot})
	}
	return append(stages,
		stage{name: "apply", phase: phaseExecute, run: o.stageApply},
		stage{name: "finalize", phase: phaseExecute, run: o.stageFinalizeImport},
	)
}

func (r *run) importFormat() string {
	if r.job.Options.Format != "" {
		return r.job.Options.Format
	}
	return models.FormatJSON
}

func validationFailure(issues []models.ValidationIssue, total, valid int) error {
	return &ValidationError{Report: &models.ValidationReport{
		Status:       models.ValidationFailed,
		TotalRecords: total,
		ValidRecords: valid,
		Errors:       issues,
	}}
}

// stageValidateFormat loads the source object and confirms the declared
// format matches the actual structure and encoding.
func (o *Orchestrator) stageValidateFormat(ctx context.Context, r *run) error {
	raw, err := storage.ReadAll(ctx, o.storage, r.job.Options.SourceKey)
	if err != nil {
		return fmt.Errorf("read import source: %w", err)
	}
	r.payload = raw

	source := raw
	if archive.IsGzip(raw) {
		if source, err = archive.Gunzip(raw); err != nil {
			return fmt.Errorf("decompress import source: %w", err)
		}
	}
	r.source = source

	if issues := ValidateFormat(r.importFormat(), source); len(issues) > 0 {
		return validationFailure(issues, 0, 0)
	}
	return nil
}

func (o *Orchestrator) stageValidateSchema(ctx context.Context, r *run) error {
	if issues := ValidateSchema(r.importFormat(), r.source); len(issues) > 0 {
		return validationFailure(issues, 0, 0)
	}
	return nil
}

func (o *Orchestrator) stageValidateData(ctx context.Context, r *run) error {
	a, issues := ValidateData(r.importFormat(), r.source)

	total := 0
	if a != nil {
		total = int(a.RecordCount())
	}
	if len(issues) > 0 {
		valid := total - len(issues)
		if valid < 0 {
			valid = 0
		}
		return validationFailure(issues, total, valid)
	}

	r.data = a
	r.job.Validation = &models.ValidationReport{
		Status:       models.ValidationPassed,
		TotalRecords: total,
		ValidRecords: total,
	}
	r.job.Progress.UnitsTotal = int64(total)
	return nil
}

// stageSnapshot exports the owner's current data to a snapshot object
// before anything mutates. Rollback is only possible once this key is
// recorded on the job.
func (o *Orchestrator) stageSnapshot(ctx context.Context, r *run) error {
	current, err := o.collector.Collect(ctx, r.job.OwnerID, models.JobOptions{})
	if err != nil {
		return fmt.Errorf("snapshot current data: %w", err)
	}
	data, err := (&archive.JSONCodec{}).Encode(current)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("snapshots/%s/%s-%s.json", r.job.OwnerID,
		time.Now().UTC().Format("20060102"), r.job.ID.String()[:8])
	if _, err := o.storage.Put(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	r.job.SnapshotKey = &key
	return nil
}

func (o *Orchestrator) stageApply(ctx context.Context, r *run) error {
	stats, err := o.importer.Apply(ctx, r.job.OwnerID, r.data, r.job.Options.ConflictPolicy)
	if err != nil {
		return fmt.Errorf("apply import: %w", err)
	}
	r.stats = stats
	r.job.Progress.UnitsProcessed = stats.Total()
	return nil
}

// stageFinalizeImport records the consumed source as the job's
// artifact, checksummed over the stored bytes.
func (o *Orchestrator) stageFinalizeImport(ctx context.Context, r *run) error {
	r.job.Artifact = &models.Artifact{
		Key:      r.job.Options.SourceKey,
		FileName: path.Base(r.job.Options.SourceKey),
		Size:     int64(len(r.payload)),
		Checksum: ComputeChecksum(r.payload),
	}
	return nil
}
