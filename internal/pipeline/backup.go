package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/internal/storage"
	"github.com/nairabhi/habitvault/pkg/models"
)

// backupStages: collect -> compress -> [encrypt] -> upload ->
// verify-artifact -> finalize. verify-artifact re-reads the stored
// object and re-hashes it to catch storage-layer corruption that the
// write path alone cannot detect.
func (o *Orchestrator) backupStages(opts models.JobOptions) []stage {
	stages := []stage{
		{name: "collect", phase: phaseExecute, run: o.stageCollect},
		{name: "compress", phase: phaseExecute, run: o.stageCompress},
	}
	if opts.Encrypt {
		stages = append(stages, stage{name: "encrypt", phase: phaseExecute, run: o.stageEncrypt})
	}
	return append(stages,
		stage{name: "upload", phase: phaseExecute, run: o.stageWriteArtifact("backups")},
		stage{name: "verify-artifact", phase: phaseExecute, run: o.stageVerifyArtifact},
		stage{name: "finalize", phase: phaseExecute, run: o.stageFinalize},
	)
}

// stageCompress encodes the collected archive as JSON and gzips it.
// Backups always compress.
func (o *Orchestrator) stageCompress(ctx context.Context, r *run) error {
	codec := &archive.JSONCodec{}
	r.codec = codec

	payload, err := codec.Encode(r.data)
	if err != nil {
		return err
	}
	if payload, err = archive.Gzip(payload); err != nil {
		return err
	}
	r.payload = payload
	return nil
}

func (o *Orchestrator) stageEncrypt(ctx context.Context, r *run) error {
	if o.encryptor == nil {
		return fmt.Errorf("encryption requested but no encryptor is configured")
	}
	sealed, err := o.encryptor.Seal(r.payload)
	if err != nil {
		return fmt.Errorf("encrypt payload: %w", err)
	}
	r.payload = sealed
	return nil
}

func (o *Orchestrator) stageVerifyArtifact(ctx context.Context, r *run) error {
	stored, err := storage.ReadAll(ctx, o.storage, r.job.Artifact.Key)
	if err != nil {
		return fmt.Errorf("re-read artifact: %w", err)
	}

	checksumMatch, sizeMatch := VerifyArtifact(*r.job.Artifact, stored)
	v := &models.Verification{
		Verified:      checksumMatch && sizeMatch,
		Method:        ChecksumMethod,
		ChecksumMatch: checksumMatch,
		SizeMatch:     sizeMatch,
		VerifiedAt:    time.Now().UTC(),
	}
	if !checksumMatch {
		v.Notes = append(v.Notes, "stored artifact checksum does not match the recorded digest")
	}
	if !sizeMatch {
		v.Notes = append(v.Notes, fmt.Sprintf("stored artifact is %d bytes, recorded %d",
			len(stored), r.job.Artifact.Size))
	}
	r.job.Verification = v

	if !v.Verified {
		return fmt.Errorf("artifact failed integrity verification")
	}
	return nil
}
