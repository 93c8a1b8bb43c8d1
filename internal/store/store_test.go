package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nairabhi/habitvault/internal/store"
	"github.com/nairabhi/habitvault/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool + cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("habitvault_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

// seedUser creates a user row and returns its ID. Every other table
// hangs off users via foreign keys.
func seedUser(t *testing.T, s store.Store) uuid.UUID {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := &models.User{
		ID: uuid.New(), Email: uuid.NewString()[:8] + "@example.com", Name: "Test User",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u.ID
}

func seedHabit(t *testing.T, s store.Store, ownerID uuid.UUID, name string) *models.Habit {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	h := &models.Habit{
		ID: uuid.New(), OwnerID: ownerID, Name: name, Frequency: "daily", TargetPer: 1,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.UpsertHabit(context.Background(), h, false))
	return h
}

// --- User Tests ---

func TestUser_CreateAndGetByEmail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	u := &models.User{
		ID: uuid.New(), Email: "alice@example.com", Name: "Alice",
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Alice", got.Name)
}

func TestUser_GetByEmailNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetUserByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUser_DuplicateEmail(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := &models.User{ID: uuid.New(), Email: "dup@example.com", Name: "First", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateUser(ctx, first))

	second := &models.User{ID: uuid.New(), Email: "dup@example.com", Name: "Second", CreatedAt: now, UpdatedAt: now}
	err := s.CreateUser(ctx, second)
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

// --- API Key Tests ---

func TestAPIKey_CreateAndGetByPrefix(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := seedUser(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID: uuid.New(), UserID: userID, Name: "deploy-key",
		KeyHash: "bcrypt-hash-here", KeyPrefix: "hv_abcde", Scopes: []string{"jobs"},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	keys, err := s.GetAPIKeyByPrefix(ctx, "hv_abcde")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, key.ID, keys[0].ID)
	assert.Equal(t, []string{"jobs"}, keys[0].Scopes)
	assert.Nil(t, keys[0].LastUsedAt)
}

func TestAPIKey_ListAndRevoke(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := seedUser(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	var keepID, revokeID uuid.UUID
	for i, name := range []string{"keep", "revoke-me"} {
		key := &models.APIKey{
			ID: uuid.New(), UserID: userID, Name: name,
			KeyHash: "hash", KeyPrefix: "hv_" + uuid.NewString()[:5], Scopes: []string{"jobs"},
			CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, s.CreateAPIKey(ctx, key))
		if i == 0 {
			keepID = key.ID
		} else {
			revokeID = key.ID
		}
	}

	keys, err := s.ListAPIKeys(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	require.NoError(t, s.RevokeAPIKey(ctx, revokeID, userID))

	keys, err = s.ListAPIKeys(ctx, userID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, keepID, keys[0].ID)

	// Revoking again is a not-found: the key is already soft deleted.
	err = s.RevokeAPIKey(ctx, revokeID, userID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAPIKey_RevokeWrongUser(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := seedUser(t, s)
	otherID := seedUser(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID: uuid.New(), UserID: userID, Name: "mine",
		KeyHash: "hash", KeyPrefix: "hv_mine1", Scopes: []string{"jobs"},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))

	err := s.RevokeAPIKey(ctx, key.ID, otherID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAPIKey_UpdateLastUsed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	userID := seedUser(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	key := &models.APIKey{
		ID: uuid.New(), UserID: userID, Name: "usage-key",
		KeyHash: "hash", KeyPrefix: "hv_used1", Scopes: []string{"jobs"},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateAPIKey(ctx, key))
	require.NoError(t, s.UpdateAPIKeyLastUsed(ctx, key.ID))

	keys, err := s.GetAPIKeyByPrefix(ctx, "hv_used1")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)
}

// --- Job Tests ---

func newJob(ownerID uuid.UUID, kind, state string) *models.Job {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Job{
		ID: uuid.New(), OwnerID: ownerID, Kind: kind, State: state,
		Options: models.JobOptions{Format: models.FormatJSON},
		CreatedAt: now, UpdatedAt: now,
	}
}

func TestJob_CreateAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)

	job := newJob(ownerID, models.JobKindExport, models.JobStatePending)
	job.Options.Compress = true
	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePending, got.State)
	assert.True(t, got.Options.Compress, "options survive the JSONB round trip")
	assert.Nil(t, got.Progress)
	assert.Nil(t, got.Artifact)

	byID, err := s.GetJobByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, ownerID, byID.OwnerID)
}

func TestJob_GetScopedToOwner(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)
	otherID := seedUser(t, s)

	job := newJob(ownerID, models.JobKindExport, models.JobStatePending)
	require.NoError(t, s.CreateJob(ctx, job))

	_, err := s.GetJob(ctx, job.ID, otherID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_SaveRoundTripsNestedDocuments(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)

	job := newJob(ownerID, models.JobKindBackup, models.JobStatePending)
	require.NoError(t, s.CreateJob(ctx, job))

	started := time.Now().UTC().Truncate(time.Microsecond)
	snapshotKey := "snapshots/" + ownerID.String() + "/20260301-abcd1234.json"
	job.State = models.JobStateInProgress
	job.StartedAt = &started
	job.SnapshotKey = &snapshotKey
	job.Progress = &models.Progress{
		StepName: "compress", StepIndex: 1, StepCount: 5, Percentage: 20,
		UnitsProcessed: 10, UnitsTotal: 40, LastUpdate: started,
	}
	job.Artifact = &models.Artifact{
		Key: "backups/x.json.gz", FileName: "x.json.gz", Size: 1024, Checksum: "abc123",
	}
	job.Verification = &models.Verification{
		Verified: true, Method: "sha256", ChecksumMatch: true, SizeMatch: true, VerifiedAt: started,
	}
	require.NoError(t, s.SaveJob(ctx, job))

	got, err := s.GetJob(ctx, job.ID, ownerID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateInProgress, got.State)
	require.NotNil(t, got.Progress)
	assert.Equal(t, "compress", got.Progress.StepName)
	assert.Equal(t, int64(40), got.Progress.UnitsTotal)
	require.NotNil(t, got.Artifact)
	assert.Equal(t, int64(1024), got.Artifact.Size)
	require.NotNil(t, got.Verification)
	assert.True(t, got.Verification.Verified)
	require.NotNil(t, got.SnapshotKey)
	assert.Equal(t, snapshotKey, *got.SnapshotKey)
	require.NotNil(t, got.StartedAt)
}

func TestJob_SaveNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ownerID := seedUser(t, s)

	err := s.SaveJob(context.Background(), newJob(ownerID, models.JobKindExport, models.JobStatePending))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestJob_SaveIfState(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)

	job := newJob(ownerID, models.JobKindExport, models.JobStateFailed)
	require.NoError(t, s.CreateJob(ctx, job))

	t.Run("matching state wins", func(t *testing.T) {
		job.State = models.JobStatePending
		require.NoError(t, s.SaveJobIfState(ctx, job, models.JobStateFailed))

		got, err := s.GetJob(ctx, job.ID, ownerID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatePending, got.State)
	})

	t.Run("stale state leaves the row untouched", func(t *testing.T) {
		stale := *job
		stale.State = models.JobStateCancelled
		err := s.SaveJobIfState(ctx, &stale, models.JobStateFailed)
		assert.ErrorIs(t, err, store.ErrStaleState)

		got, err := s.GetJob(ctx, job.ID, ownerID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatePending, got.State)
	})

	t.Run("missing job", func(t *testing.T) {
		ghost := newJob(ownerID, models.JobKindExport, models.JobStateFailed)
		err := s.SaveJobIfState(ctx, ghost, models.JobStateFailed)
		assert.ErrorIs(t, err, store.ErrStaleState)
	})
}

func TestJob_StateConstraint(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ownerID := seedUser(t, s)

	err := s.CreateJob(context.Background(), newJob(ownerID, models.JobKindExport, "sleeping"))
	assert.Error(t, err, "unknown states are rejected at the schema level")
}

func TestJob_ListFiltersAndPagination(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateJob(ctx, newJob(ownerID, models.JobKindExport, models.JobStateCompleted)))
	}
	require.NoError(t, s.CreateJob(ctx, newJob(ownerID, models.JobKindBackup, models.JobStatePending)))
	require.NoError(t, s.CreateJob(ctx, newJob(ownerID, models.JobKindImport, models.JobStateFailed)))

	t.Run("all jobs", func(t *testing.T) {
		jobs, total, err := s.ListJobs(ctx, store.JobFilter{OwnerID: ownerID})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, jobs, 5)
	})

	t.Run("by kind", func(t *testing.T) {
		jobs, total, err := s.ListJobs(ctx, store.JobFilter{OwnerID: ownerID, Kind: models.JobKindExport})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, jobs, 3)
	})

	t.Run("by state", func(t *testing.T) {
		jobs, total, err := s.ListJobs(ctx, store.JobFilter{OwnerID: ownerID, State: models.JobStateFailed})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, jobs, 1)
		assert.Equal(t, models.JobKindImport, jobs[0].Kind)
	})

	t.Run("pagination", func(t *testing.T) {
		jobs, total, err := s.ListJobs(ctx, store.JobFilter{OwnerID: ownerID, Page: 2, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, jobs, 2)
	})

	t.Run("since excludes older jobs", func(t *testing.T) {
		jobs, total, err := s.ListJobs(ctx, store.JobFilter{
			OwnerID: ownerID, Since: time.Now().UTC().Add(time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.Empty(t, jobs)
	})

	t.Run("other owner sees nothing", func(t *testing.T) {
		otherID := seedUser(t, s)
		jobs, total, err := s.ListJobs(ctx, store.JobFilter{OwnerID: otherID})
		require.NoError(t, err)
		assert.Equal(t, 0, total)
		assert.Empty(t, jobs)
	})

	t.Run("zero owner spans all owners", func(t *testing.T) {
		jobs, total, err := s.ListJobs(ctx, store.JobFilter{State: models.JobStateFailed})
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		assert.Len(t, jobs, 1)
	})
}

func TestJob_Delete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)

	job := newJob(ownerID, models.JobKindExport, models.JobStateCompleted)
	require.NoError(t, s.CreateJob(ctx, job))
	require.NoError(t, s.DeleteJob(ctx, job.ID, ownerID))

	_, err := s.GetJob(ctx, job.ID, ownerID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	err = s.DeleteJob(ctx, job.ID, ownerID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- Habit Data Tests ---

func TestHabit_UpsertConflictModes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)

	original := seedHabit(t, s, ownerID, "meditate")

	colliding := &models.Habit{
		ID: uuid.New(), OwnerID: ownerID, Name: "meditate", Frequency: "weekly", TargetPer: 3,
		CreatedAt: original.CreatedAt, UpdatedAt: original.UpdatedAt,
	}

	// DO NOTHING: the original row survives unchanged.
	require.NoError(t, s.UpsertHabit(ctx, colliding, false))
	got, err := s.GetHabitByName(ctx, ownerID, "meditate")
	require.NoError(t, err)
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, "daily", got.Frequency)

	// DO UPDATE: settings change, identity stays.
	require.NoError(t, s.UpsertHabit(ctx, colliding, true))
	got, err = s.GetHabitByName(ctx, ownerID, "meditate")
	require.NoError(t, err)
	assert.Equal(t, original.ID, got.ID)
	assert.Equal(t, "weekly", got.Frequency)
	assert.Equal(t, 3, got.TargetPer)
}

func TestGetHabitByName_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ownerID := seedUser(t, s)

	_, err := s.GetHabitByName(context.Background(), ownerID, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListHabits_IDFilter(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)

	run := seedHabit(t, s, ownerID, "run")
	seedHabit(t, s, ownerID, "read")

	all, err := s.ListHabits(ctx, ownerID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := s.ListHabits(ctx, ownerID, []uuid.UUID{run.ID})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "run", filtered[0].Name)
}

func TestEntry_UpsertAndTimeWindow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)
	habit := seedHabit(t, s, ownerID, "run")

	day := func(d int) time.Time { return time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC) }
	for _, d := range []int{1, 5, 10} {
		e := &models.HabitEntry{
			ID: uuid.New(), OwnerID: ownerID, HabitID: habit.ID,
			Day: day(d), Count: d, CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, s.UpsertEntry(ctx, e, false))
	}

	// One habit, one entry per day: a second write for day 5 is dropped
	// without overwrite and replaces with overwrite.
	colliding := &models.HabitEntry{
		ID: uuid.New(), OwnerID: ownerID, HabitID: habit.ID,
		Day: day(5), Count: 99, Note: "corrected", CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.UpsertEntry(ctx, colliding, false))
	entries, err := s.ListEntries(ctx, ownerID, day(5), day(5))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 5, entries[0].Count)

	require.NoError(t, s.UpsertEntry(ctx, colliding, true))
	entries, err = s.ListEntries(ctx, ownerID, day(5), day(5))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 99, entries[0].Count)
	assert.Equal(t, "corrected", entries[0].Note)

	windowed, err := s.ListEntries(ctx, ownerID, day(2), day(10))
	require.NoError(t, err)
	assert.Len(t, windowed, 2)

	all, err := s.ListEntries(ctx, ownerID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGoal_Upsert(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)
	habit := seedHabit(t, s, ownerID, "read")
	now := time.Now().UTC().Truncate(time.Microsecond)

	goal := &models.Goal{
		ID: uuid.New(), OwnerID: ownerID, HabitID: habit.ID, Title: "12 books",
		Target: 12, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.UpsertGoal(ctx, goal, false))

	colliding := &models.Goal{
		ID: uuid.New(), OwnerID: ownerID, HabitID: habit.ID, Title: "12 books",
		Target: 24, Achieved: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.UpsertGoal(ctx, colliding, true))

	goals, err := s.ListGoals(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, goal.ID, goals[0].ID)
	assert.Equal(t, 24, goals[0].Target)
	assert.True(t, goals[0].Achieved)
}

func TestReplaceOwnerData(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)
	now := time.Now().UTC().Truncate(time.Microsecond)

	old := seedHabit(t, s, ownerID, "doomed")
	require.NoError(t, s.UpsertEntry(ctx, &models.HabitEntry{
		ID: uuid.New(), OwnerID: ownerID, HabitID: old.ID,
		Day: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), Count: 1, CreatedAt: now,
	}, false))

	restored := &models.Habit{
		ID: uuid.New(), OwnerID: ownerID, Name: "restored", Frequency: "daily", TargetPer: 1,
		CreatedAt: now, UpdatedAt: now,
	}
	goal := &models.Goal{
		ID: uuid.New(), OwnerID: ownerID, HabitID: restored.ID, Title: "goal",
		Target: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.ReplaceOwnerData(ctx, ownerID,
		[]*models.Habit{restored}, []*models.Goal{goal}, nil))

	habits, goals, entries, err := s.CountOwnerData(ctx, ownerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), habits)
	assert.Equal(t, int64(1), goals)
	assert.Equal(t, int64(0), entries)

	got, err := s.GetHabitByName(ctx, ownerID, "restored")
	require.NoError(t, err)
	assert.Equal(t, restored.ID, got.ID)
	_, err = s.GetHabitByName(ctx, ownerID, "doomed")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReplaceOwnerData_LeavesOtherOwnersAlone(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()
	ownerID := seedUser(t, s)
	otherID := seedUser(t, s)

	seedHabit(t, s, ownerID, "mine")
	seedHabit(t, s, otherID, "theirs")

	require.NoError(t, s.ReplaceOwnerData(ctx, ownerID, nil, nil, nil))

	habits, _, _, err := s.CountOwnerData(ctx, otherID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), habits)
}

// --- Ping Test ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	assert.NoError(t, s.Ping(context.Background()))
}
