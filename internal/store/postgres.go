package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nairabhi/habitvault/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, created_at, updated_at FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &u, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.UserID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE user_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, userID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`, id, userID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, owner_id, kind, state, options, progress, artifact, snapshot_key,
	error_info, verification, validation, started_at, validated_at, completed_at, created_at, updated_at`

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		job.ID, job.OwnerID, job.Kind, job.State, job.Options, job.Progress, job.Artifact,
		job.SnapshotKey, job.ErrorInfo, job.Verification, job.Validation,
		job.StartedAt, job.ValidatedAt, job.CompletedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.OwnerID, &j.Kind, &j.State, &j.Options, &j.Progress, &j.Artifact,
		&j.SnapshotKey, &j.ErrorInfo, &j.Verification, &j.Validation,
		&j.StartedAt, &j.ValidatedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) (*models.Job, error) {
	return s.scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 AND owner_id = $2`, id, ownerID))
}

func (s *PostgresStore) GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// SaveJob writes back every mutable field of a job record. The pipeline
// re-fetches, mutates, and saves at each stage boundary; only the
// orchestrator task driving a given job calls this for it.
func (s *PostgresStore) SaveJob(ctx context.Context, job *models.Job) error {
	return s.saveJob(ctx, job, "")
}

// SaveJobIfState writes the job only if the stored row is still in
// fromState, making read-modify-write transitions safe against a
// concurrent writer. A mismatch returns ErrStaleState.
func (s *PostgresStore) SaveJobIfState(ctx context.Context, job *models.Job, fromState string) error {
	return s.saveJob(ctx, job, fromState)
}

func (s *PostgresStore) saveJob(ctx context.Context, job *models.Job, fromState string) error {
	job.UpdatedAt = time.Now().UTC()
	query := `UPDATE jobs SET state = $2, progress = $3, artifact = $4, snapshot_key = $5,
		   error_info = $6, verification = $7, validation = $8,
		   started_at = $9, validated_at = $10, completed_at = $11, updated_at = $12
		 WHERE id = $1`
	args := []any{
		job.ID, job.State, job.Progress, job.Artifact, job.SnapshotKey,
		job.ErrorInfo, job.Verification, job.Validation,
		job.StartedAt, job.ValidatedAt, job.CompletedAt, job.UpdatedAt,
	}
	if fromState != "" {
		query += ` AND state = $13`
		args = append(args, fromState)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if fromState != "" {
			return ErrStaleState
		}
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, int, error) {
	// Build WHERE clause dynamically
	conditions := []string{}
	args := []any{}
	argIdx := 1

	if filter.OwnerID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", argIdx))
		args = append(args, filter.OwnerID)
		argIdx++
	}
	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, filter.Kind)
		argIdx++
	}
	if filter.State != "" {
		conditions = append(conditions, fmt.Sprintf("state = $%d", argIdx))
		args = append(args, filter.State)
		argIdx++
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, filter.Since)
		argIdx++
	}

	where := "TRUE"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM jobs WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	// Normalize pagination
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT `+jobColumns+` FROM jobs WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := s.scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	return jobs, total, rows.Err()
}

func (s *PostgresStore) DeleteJob(ctx context.Context, id uuid.UUID, ownerID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Habit data ---

func (s *PostgresStore) ListHabits(ctx context.Context, ownerID uuid.UUID, habitIDs []uuid.UUID) ([]*models.Habit, error) {
	query := `SELECT id, owner_id, name, icon, frequency, target_per, archived, created_at, updated_at
		 FROM habits WHERE owner_id = $1`
	args := []any{ownerID}
	if len(habitIDs) > 0 {
		query += ` AND id = ANY($2)`
		args = append(args, habitIDs)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	defer rows.Close()

	var habits []*models.Habit
	for rows.Next() {
		var h models.Habit
		if err := rows.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Icon, &h.Frequency, &h.TargetPer,
			&h.Archived, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan habit: %w", err)
		}
		habits = append(habits, &h)
	}
	return habits, rows.Err()
}

func (s *PostgresStore) ListGoals(ctx context.Context, ownerID uuid.UUID) ([]*models.Goal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, habit_id, title, target, deadline, achieved, created_at, updated_at
		 FROM goals WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var goals []*models.Goal
	for rows.Next() {
		var g models.Goal
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.HabitID, &g.Title, &g.Target, &g.Deadline,
			&g.Achieved, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, &g)
	}
	return goals, rows.Err()
}

func (s *PostgresStore) ListEntries(ctx context.Context, ownerID uuid.UUID, since, until time.Time) ([]*models.HabitEntry, error) {
	query := `SELECT id, owner_id, habit_id, day, count, note, created_at
		 FROM habit_entries WHERE owner_id = $1`
	args := []any{ownerID}
	argIdx := 2
	if !since.IsZero() {
		query += fmt.Sprintf(" AND day >= $%d", argIdx)
		args = append(args, since)
		argIdx++
	}
	if !until.IsZero() {
		query += fmt.Sprintf(" AND day <= $%d", argIdx)
		args = append(args, until)
		argIdx++
	}
	query += ` ORDER BY day`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.HabitEntry
	for rows.Next() {
		var e models.HabitEntry
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.HabitID, &e.Day, &e.Count, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) GetHabitByName(ctx context.Context, ownerID uuid.UUID, name string) (*models.Habit, error) {
	var h models.Habit
	err := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, icon, frequency, target_per, archived, created_at, updated_at
		 FROM habits WHERE owner_id = $1 AND name = $2`, ownerID, name,
	).Scan(&h.ID, &h.OwnerID, &h.Name, &h.Icon, &h.Frequency, &h.TargetPer,
		&h.Archived, &h.CreatedAt, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get habit by name: %w", err)
	}
	return &h, nil
}

func (s *PostgresStore) UpsertHabit(ctx context.Context, habit *models.Habit, overwrite bool) error {
	conflict := `DO NOTHING`
	if overwrite {
		conflict = `DO UPDATE SET icon = EXCLUDED.icon, frequency = EXCLUDED.frequency,
			target_per = EXCLUDED.target_per, archived = EXCLUDED.archived, updated_at = NOW()`
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO habits (id, owner_id, name, icon, frequency, target_per, archived, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (owner_id, name) `+conflict,
		habit.ID, habit.OwnerID, habit.Name, habit.Icon, habit.Frequency, habit.TargetPer,
		habit.Archived, habit.CreatedAt, habit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert habit: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertGoal(ctx context.Context, goal *models.Goal, overwrite bool) error {
	conflict := `DO NOTHING`
	if overwrite {
		conflict = `DO UPDATE SET target = EXCLUDED.target, deadline = EXCLUDED.deadline,
			achieved = EXCLUDED.achieved, updated_at = NOW()`
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO goals (id, owner_id, habit_id, title, target, deadline, achieved, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (owner_id, habit_id, title) `+conflict,
		goal.ID, goal.OwnerID, goal.HabitID, goal.Title, goal.Target, goal.Deadline,
		goal.Achieved, goal.CreatedAt, goal.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert goal: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertEntry(ctx context.Context, entry *models.HabitEntry, overwrite bool) error {
	conflict := `DO NOTHING`
	if overwrite {
		conflict = `DO UPDATE SET count = EXCLUDED.count, note = EXCLUDED.note`
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO habit_entries (id, owner_id, habit_id, day, count, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (habit_id, day) `+conflict,
		entry.ID, entry.OwnerID, entry.HabitID, entry.Day, entry.Count, entry.Note, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// ReplaceOwnerData swaps an owner's habit data for the given set inside
// one transaction. Used by snapshot restore.
func (s *PostgresStore) ReplaceOwnerData(ctx context.Context, ownerID uuid.UUID,
	habits []*models.Habit, goals []*models.Goal, entries []*models.HabitEntry) error {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"habit_entries", "goals", "habits"} {
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1`, table), ownerID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, h := range habits {
		if _, err := tx.Exec(ctx,
			`INSERT INTO habits (id, owner_id, name, icon, frequency, target_per, archived, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			h.ID, h.OwnerID, h.Name, h.Icon, h.Frequency, h.TargetPer, h.Archived, h.CreatedAt, h.UpdatedAt); err != nil {
			return fmt.Errorf("restore habit: %w", err)
		}
	}
	for _, g := range goals {
		if _, err := tx.Exec(ctx,
			`INSERT INTO goals (id, owner_id, habit_id, title, target, deadline, achieved, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			g.ID, g.OwnerID, g.HabitID, g.Title, g.Target, g.Deadline, g.Achieved, g.CreatedAt, g.UpdatedAt); err != nil {
			return fmt.Errorf("restore goal: %w", err)
		}
	}
	for _, e := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO habit_entries (id, owner_id, habit_id, day, count, note, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.OwnerID, e.HabitID, e.Day, e.Count, e.Note, e.CreatedAt); err != nil {
			return fmt.Errorf("restore entry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) CountOwnerData(ctx context.Context, ownerID uuid.UUID) (habits, goals, entries int64, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM habits WHERE owner_id = $1),
		   (SELECT COUNT(*) FROM goals WHERE owner_id = $1),
		   (SELECT COUNT(*) FROM habit_entries WHERE owner_id = $1)`, ownerID,
	).Scan(&habits, &goals, &entries)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count owner data: %w", err)
	}
	return habits, goals, entries, nil
}

// isDuplicateKeyError reports whether err is a Postgres unique violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
