package models

import (
	"time"

	"github.com/google/uuid"
)

// Job kinds. Fixed at creation; each kind runs its own stage sequence.
const (
	JobKindExport = "export"
	JobKindImport = "import"
	JobKindBackup = "backup"
)

// Job states. A job only moves forward along the transition table in
// CanTransition; terminal states are completed, cancelled, rolled_back,
// and failed (failed is re-enterable via an explicit retry).
const (
	JobStatePending    = "pending"
	JobStateValidating = "validating"
	JobStateValidated  = "validated"
	JobStateInProgress = "in_progress"
	JobStateCompleted  = "completed"
	JobStateFailed     = "failed"
	JobStateCancelled  = "cancelled"
	JobStateRolledBack = "rolled_back"
)

// Export/backup archive formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Export scopes.
const (
	ExportFullData    = "full_data"
	ExportHabitsOnly  = "habits_only"
	ExportEntriesOnly = "entries_only"
)

// Import conflict policies.
const (
	ConflictSkip      = "skip"
	ConflictOverwrite = "overwrite"
	ConflictMerge     = "merge"
)

var transitions = map[string][]string{
	JobStatePending:    {JobStateValidating, JobStateInProgress, JobStateFailed, JobStateCancelled},
	JobStateValidating: {JobStateValidated, JobStateFailed, JobStateCancelled},
	JobStateValidated:  {JobStateInProgress, JobStateFailed},
	JobStateInProgress: {JobStateCompleted, JobStateFailed, JobStateCancelled},
	JobStateFailed:     {JobStatePending, JobStateRolledBack},
}

// CanTransition reports whether a job may move from one state to another.
// Every state write in the pipeline goes through this check.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalState reports whether no further pipeline execution can
// happen from the given state without an explicit retry.
func IsTerminalState(state string) bool {
	switch state {
	case JobStateCompleted, JobStateFailed, JobStateCancelled, JobStateRolledBack:
		return true
	}
	return false
}

// StartableState reports whether Start may pick up a job of the given
// kind in the given state.
func StartableState(kind, state string) bool {
	if state == JobStatePending {
		return true
	}
	return kind == JobKindImport && state == JobStateValidated
}

// JobOptions is the kind-specific configuration captured at creation.
// It is immutable once the job leaves pending. Unused fields stay at
// their zero value for kinds that do not read them.
type JobOptions struct {
	Format          string     `json:"format,omitempty"`
	ExportType      string     `json:"export_type,omitempty"`
	From            *time.Time `json:"from,omitempty"`
	To              *time.Time `json:"to,omitempty"`
	HabitIDs        []string   `json:"habit_ids,omitempty"`
	Compress        bool       `json:"compress,omitempty"`
	Encrypt         bool       `json:"encrypt,omitempty"`
	ConflictPolicy  string     `json:"conflict_policy,omitempty"`
	RollbackOnError bool       `json:"rollback_on_error,omitempty"`
	SourceKey       string     `json:"source_key,omitempty"`
}

// Progress is updated after every stage; percentage is stage-granular,
// 100*StepIndex/StepCount, while the units fields carry absolute record
// counts.
type Progress struct {
	StepName       string    `json:"step_name"`
	StepIndex      int       `json:"step_index"`
	StepCount      int       `json:"step_count"`
	Percentage     int       `json:"percentage"`
	UnitsProcessed int64     `json:"units_processed"`
	UnitsTotal     int64     `json:"units_total"`
	LastUpdate     time.Time `json:"last_update"`
}

// Artifact references the file a job produced or consumed. Checksum is
// set once the bytes are finalized and never mutated afterward.
type Artifact struct {
	Key      string `json:"key"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

// ErrorInfo is present only after a failure.
type ErrorInfo struct {
	Message           string     `json:"message"`
	Stage             string     `json:"stage,omitempty"`
	RetryCount        int        `json:"retry_count"`
	MaxRetries        int        `json:"max_retries"`
	NextRetryAt       *time.Time `json:"next_retry_at,omitempty"`
	CanRetry          bool       `json:"can_retry"`
	RollbackAttempted bool       `json:"rollback_attempted"`
	RollbackSucceeded bool       `json:"rollback_succeeded"`
}

// Verification is populated by backup jobs after the independent
// re-read-and-rehash stage.
type Verification struct {
	Verified      bool      `json:"verified"`
	Method        string    `json:"method"`
	ChecksumMatch bool      `json:"checksum_match"`
	SizeMatch     bool      `json:"size_match"`
	Notes         []string  `json:"notes,omitempty"`
	VerifiedAt    time.Time `json:"verified_at"`
}

// Validation statuses for import jobs.
const (
	ValidationPassed = "passed"
	ValidationFailed = "failed"
)

// ValidationIssue is one structured finding from the import validation
// pipeline.
type ValidationIssue struct {
	Check   string `json:"check"`
	Field   string `json:"field,omitempty"`
	Record  int    `json:"record,omitempty"`
	Message string `json:"message"`
}

// ValidationReport is populated only for import jobs.
type ValidationReport struct {
	Status       string            `json:"status"`
	TotalRecords int               `json:"total_records"`
	ValidRecords int               `json:"valid_records"`
	Errors       []ValidationIssue `json:"errors,omitempty"`
}

// Job tracks one export, import, or backup request through the data
// lifecycle pipeline. The API returns the job on POST /api/v1/jobs; the
// client polls GET /api/v1/jobs/{id} or subscribes to job events until
// the state is terminal.
type Job struct {
	ID           uuid.UUID         `db:"id"            json:"id"`
	OwnerID      uuid.UUID         `db:"owner_id"      json:"owner_id"`
	Kind         string            `db:"kind"          json:"kind"`
	State        string            `db:"state"         json:"state"`
	Options      JobOptions        `db:"options"       json:"options"`
	Progress     *Progress         `db:"progress"      json:"progress,omitempty"`
	Artifact     *Artifact         `db:"artifact"      json:"artifact,omitempty"`
	SnapshotKey  *string           `db:"snapshot_key"  json:"snapshot_key,omitempty"`
	ErrorInfo    *ErrorInfo        `db:"error_info"    json:"error_info,omitempty"`
	Verification *Verification     `db:"verification"  json:"verification,omitempty"`
	Validation   *ValidationReport `db:"validation"    json:"validation,omitempty"`
	StartedAt    *time.Time        `db:"started_at"    json:"started_at,omitempty"`
	ValidatedAt  *time.Time        `db:"validated_at"  json:"validated_at,omitempty"`
	CompletedAt  *time.Time        `db:"completed_at"  json:"completed_at,omitempty"`
	CreatedAt    time.Time         `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time         `db:"updated_at"    json:"updated_at"`
}
