package pipeline

import "errors"

var (
	// ErrInvalidOptions wraps kind-specific option validation failures at
	// job creation.
	ErrInvalidOptions = errors.New("invalid job options")
	// ErrNotCancellable is returned by Cancel outside pending,
	// validating, or in_progress.
	ErrNotCancellable = errors.New("job cannot be cancelled in its current state")
	// ErrNotRetryable is returned by Retry on any state but failed.
	ErrNotRetryable = errors.New("job is not in a failed state")
	// ErrNoArtifact is returned by Download when the job has not
	// produced a downloadable artifact.
	ErrNoArtifact = errors.New("job has no downloadable artifact")
	// ErrJobActive is returned by Delete while the job is still running.
	ErrJobActive = errors.New("job is still running")
)
