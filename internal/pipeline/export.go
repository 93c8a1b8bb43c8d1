package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/pkg/models"
)

// exportStages: collect -> format -> write-artifact -> finalize.
func (o *Orchestrator) exportStages() []stage {
	return []stage{
		{name: "collect", phase: phaseExecute, run: o.stageCollect},
		{name: "format", phase: phaseExecute, run: o.stageFormat},
		{name: "write-artifact", phase: phaseExecute, run: o.stageWriteArtifact("exports")},
		{name: "finalize", phase: phaseExecute, run: o.stageFinalize},
	}
}

func (o *Orchestrator) stageCollect(ctx context.Context, r *run) error {
	data, err := o.collector.Collect(ctx, r.job.OwnerID, r.job.Options)
	if err != nil {
		return fmt.Errorf("collect data: %w", err)
	}
	r.data = data
	r.job.Progress.UnitsTotal = data.RecordCount()
	return nil
}

func (o *Orchestrator) stageFormat(ctx context.Context, r *run) error {
	format := r.job.Options.Format
	if format == "" {
		format = models.FormatJSON
	}
	codec, err := archive.NewCodec(format)
	if err != nil {
		return err
	}
	r.codec = codec

	payload, err := codec.Encode(r.data)
	if err != nil {
		return err
	}
	if r.job.Options.Compress {
		if payload, err = archive.Gzip(payload); err != nil {
			return err
		}
	}
	r.payload = payload
	return nil
}

// stageWriteArtifact uploads the payload and records the artifact
// reference. The checksum is computed only once the bytes are finalized
// and is never mutated afterward; a retry produces a new object key.
func (o *Orchestrator) stageWriteArtifact(prefix string) func(ctx context.Context, r *run) error {
	return func(ctx context.Context, r *run) error {
		fileName := o.artifactFileName(r)
		key := fmt.Sprintf("%s/%s/%s", prefix, r.job.OwnerID, fileName)

		info, err := o.storage.Put(ctx, key, bytes.NewReader(r.payload))
		if err != nil {
			return fmt.Errorf("store artifact: %w", err)
		}

		r.job.Artifact = &models.Artifact{
			Key:      key,
			FileName: fileName,
			Size:     info.Size,
			Checksum: ComputeChecksum(r.payload),
		}
		r.job.Progress.UnitsProcessed = r.job.Progress.UnitsTotal
		return nil
	}
}

func (o *Orchestrator) stageFinalize(ctx context.Context, r *run) error {
	info, err := o.storage.Stat(ctx, r.job.Artifact.Key)
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}
	if info.Size != r.job.Artifact.Size {
		return fmt.Errorf("artifact size changed after write: recorded %d, found %d",
			r.job.Artifact.Size, info.Size)
	}
	return nil
}

// artifactFileName builds a versioned file name: retries get a new name
// so a new checksum always belongs to a new artifact.
func (o *Orchestrator) artifactFileName(r *run) string {
	job := r.job
	ext := ".json"
	if r.codec != nil {
		ext = r.codec.FileExt()
	}
	if job.Options.Compress || job.Kind == models.JobKindBackup {
		ext += ".gz"
	}
	if job.Options.Encrypt {
		ext += ".enc"
	}

	name := fmt.Sprintf("habitvault-%s-%s-%s", job.Kind,
		time.Now().UTC().Format("20060102"), job.ID.String()[:8])
	if job.ErrorInfo != nil && job.ErrorInfo.RetryCount > 0 {
		name = fmt.Sprintf("%s-r%d", name, job.ErrorInfo.RetryCount)
	}
	return name + ext
}
