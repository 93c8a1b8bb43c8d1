package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")
var ErrStaleState = errors.New("job state changed concurrently")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Job, error)
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	SaveJob(ctx context.Context, job *models.Job) error
	SaveJobIfState(ctx context.Context, job *models.Job, fromState string) error
	ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error)
	DeleteJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error

	ListHabits(ctx context.Context, ownerID uuid.UUID, habitIDs []uuid.UUID) ([]*models.Habit, error)
	ListGoals(ctx context.Context, ownerID uuid.UUID) ([]*models.Goal, error)
	ListEntries(ctx context.Context, ownerID uuid.UUID, since, until time.Time) ([]*models.HabitEntry, error)
	GetHabitByName(ctx context.Context, ownerID uuid.UUID, name string) (*models.Habit, error)
	UpsertHabit(ctx context.Context, habit *models.Habit, overwrite bool) error
	UpsertGoal(ctx context.Context, goal *models.Goal, overwrite bool) error
	UpsertEntry(ctx context.Context, entry *models.HabitEntry, overwrite bool) error
	ReplaceOwnerData(ctx context.Context, ownerID uuid.UUID, habits []*models.Habit, goals []*models.Goal, entries []*models.HabitEntry) error
	CountOwnerData(ctx context.Context, ownerID uuid.UUID) (habits, goals, entries int64, err error)
}

// JobFilter narrows ListJobs. Zero values mean no constraint; a zero
// OwnerID lists across all owners, which only operator tooling does.
type JobFilter struct {
	OwnerID uuid.UUID
	Kind    string
	State   string
	Since   time.Time
	Page    int
	Limit   int
}
