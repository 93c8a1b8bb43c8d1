package pipeline

import (
	"context"

	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/internal/habitdata"
	"github.com/nairabhi/habitvault/pkg/models"
)

// phase maps stages onto the state machine: validation stages run under
// validating, everything else under in_progress.
type phase int

const (
	phaseValidate phase = iota
	phaseExecute
)

// stage is one named unit of work in a job's fixed sequence.
type stage struct {
	name  string
	phase phase
	run   func(ctx context.Context, r *run) error
}

// run carries the in-flight data a stage sequence accumulates: the
// working job copy plus bytes and records handed from stage to stage.
// The job record in the store stays the source of truth for state.
type run struct {
	job     *models.Job
	codec   archive.Codec
	data    *archive.Archive
	payload []byte
	source  []byte
	stats   habitdata.ImportStats
}

// stagesFor returns the ordered stage list for the job's kind and
// options. The list is deterministic for a given job: options are
// immutable once the job leaves pending.
func (o *Orchestrator) stagesFor(job *models.Job) []stage {
	switch job.Kind {
	case models.JobKindExport:
		return o.exportStages()
	case models.JobKindBackup:
		return o.backupStages(job.Options)
	case models.JobKindImport:
		return o.importStages(job.Options)
	default:
		return nil
	}
}
