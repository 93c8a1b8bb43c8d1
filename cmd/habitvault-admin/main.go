// Package main is the HabitVault operator CLI: user provisioning, API
// key management, and failed-job recovery against a running deployment's
// database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/nairabhi/habitvault/internal/auth"
	"github.com/nairabhi/habitvault/internal/config"
	"github.com/nairabhi/habitvault/internal/store"
	"github.com/nairabhi/habitvault/pkg/models"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	envFlag := &cli.StringFlag{
		Name:  "env",
		Usage: "path to an env file to load before reading configuration",
		Value: ".env",
	}

	app := &cli.Command{
		Name:  "habitvault-admin",
		Usage: "operator tooling for a HabitVault deployment",
		Commands: []*cli.Command{
			{
				Name:  "user",
				Usage: "user management",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "create a user",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{Name: "email", Usage: "user email", Required: true},
							&cli.StringFlag{Name: "name", Usage: "display name", Required: true},
						},
						Action: userCreateAction,
					},
					{
						Name:  "stats",
						Usage: "show how much habit data a user owns",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{Name: "email", Usage: "user email", Required: true},
						},
						Action: userStatsAction,
					},
				},
			},
			{
				Name:  "apikey",
				Usage: "API key management",
				Commands: []*cli.Command{
					{
						Name:  "create",
						Usage: "mint an API key for a user; the raw key is printed once",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{Name: "email", Usage: "owner email", Required: true},
							&cli.StringFlag{Name: "name", Usage: "key name", Required: true},
							&cli.StringSliceFlag{Name: "scope", Usage: "scope to grant (repeatable)", Value: []string{"jobs"}},
						},
						Action: keyCreateAction,
					},
					{
						Name:  "list",
						Usage: "list a user's API keys",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{Name: "email", Usage: "owner email", Required: true},
						},
						Action: keyListAction,
					},
					{
						Name:  "revoke",
						Usage: "revoke an API key",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{Name: "email", Usage: "owner email", Required: true},
							&cli.StringFlag{Name: "id", Usage: "key ID", Required: true},
						},
						Action: keyRevokeAction,
					},
				},
			},
			{
				Name:  "job",
				Usage: "job inspection and recovery",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list jobs across all owners, failed ones by default",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{Name: "state", Usage: "filter by state", Value: models.JobStateFailed},
							&cli.StringFlag{Name: "kind", Usage: "filter by kind"},
							&cli.IntFlag{Name: "limit", Usage: "page size", Value: 50},
						},
						Action: jobListAction,
					},
					{
						Name:  "requeue",
						Usage: "reset a failed job to pending, keeping its retry count",
						Flags: []cli.Flag{
							envFlag,
							&cli.StringFlag{Name: "id", Usage: "job ID", Required: true},
						},
						Action: jobRequeueAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openStore loads configuration and connects to the database.
func openStore(ctx context.Context, envFile string) (store.Store, func(), error) {
	_ = godotenv.Load(envFile)
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func userCreateAction(ctx context.Context, cmd *cli.Command) error {
	s, closeFn, err := openStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	user := &models.User{
		ID:    uuid.New(),
		Email: cmd.String("email"),
		Name:  cmd.String("name"),
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Printf("created user %s (%s)\n", user.ID, user.Email)
	return nil
}

func keyCreateAction(ctx context.Context, cmd *cli.Command) error {
	s, closeFn, err := openStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	user, err := s.GetUserByEmail(ctx, cmd.String("email"))
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}

	minted, err := auth.Mint()
	if err != nil {
		return err
	}
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    user.ID,
		Name:      cmd.String("name"),
		KeyHash:   minted.Hash,
		KeyPrefix: minted.Prefix,
		Scopes:    cmd.StringSlice("scope"),
	}
	if err := s.CreateAPIKey(ctx, key); err != nil {
		return fmt.Errorf("store key: %w", err)
	}

	fmt.Printf("created key %s (%s)\n", key.ID, key.Name)
	fmt.Printf("raw key (shown once): %s\n", minted.Raw)
	return nil
}

func keyListAction(ctx context.Context, cmd *cli.Command) error {
	s, closeFn, err := openStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	user, err := s.GetUserByEmail(ctx, cmd.String("email"))
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	keys, err := s.ListAPIKeys(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%s  %-20s  prefix=%s  scopes=%v  last_used=%s\n",
			k.ID, k.Name, k.KeyPrefix, k.Scopes, lastUsed)
	}
	return nil
}

func keyRevokeAction(ctx context.Context, cmd *cli.Command) error {
	s, closeFn, err := openStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	user, err := s.GetUserByEmail(ctx, cmd.String("email"))
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	keyID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("invalid key ID: %w", err)
	}
	if err := s.RevokeAPIKey(ctx, keyID, user.ID); err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	fmt.Printf("revoked key %s\n", keyID)
	return nil
}

// jobListAction prints jobs matching the state/kind filters across all
// owners, most recent first.
func jobListAction(ctx context.Context, cmd *cli.Command) error {
	s, closeFn, err := openStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	filter := store.JobFilter{
		State: cmd.String("state"),
		Kind:  cmd.String("kind"),
		Limit: int(cmd.Int("limit")),
	}
	jobs, total, err := s.ListJobs(ctx, filter)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	for _, j := range jobs {
		detail := ""
		if j.ErrorInfo != nil {
			detail = fmt.Sprintf("  retries=%d/%d  stage=%s  %s",
				j.ErrorInfo.RetryCount, j.ErrorInfo.MaxRetries, j.ErrorInfo.Stage, j.ErrorInfo.Message)
		}
		fmt.Printf("%s  %-7s %-11s owner=%s  updated=%s%s\n",
			j.ID, j.Kind, j.State, j.OwnerID, j.UpdatedAt.UTC().Format(time.RFC3339), detail)
	}
	if total > len(jobs) {
		fmt.Printf("showing %d of %d matching jobs\n", len(jobs), total)
	}
	return nil
}

// jobRequeueAction resets a failed job to pending. The running server
// does not watch for this; the job restarts the next time the owner
// retries it or the server is asked to start it. It exists for jobs
// whose underlying fault is fixed; the retry count is kept, so the
// record still shows how many runs the job has burned.
func jobRequeueAction(ctx context.Context, cmd *cli.Command) error {
	s, closeFn, err := openStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	jobID, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("invalid job ID: %w", err)
	}
	job, err := s.GetJobByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("look up job: %w", err)
	}
	if job.State != models.JobStateFailed {
		return fmt.Errorf("job is %s, only failed jobs can be requeued", job.State)
	}

	job.State = models.JobStatePending
	if job.ErrorInfo != nil {
		job.ErrorInfo = &models.ErrorInfo{
			RetryCount: job.ErrorInfo.RetryCount,
			MaxRetries: job.ErrorInfo.MaxRetries,
		}
	}
	job.Progress = nil
	job.Validation = nil
	job.Verification = nil
	job.CompletedAt = nil
	if err := s.SaveJobIfState(ctx, job, models.JobStateFailed); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	fmt.Printf("job %s reset to pending (retries used: %d)\n", jobID, retriesUsed(job))
	return nil
}

func retriesUsed(job *models.Job) int {
	if job.ErrorInfo == nil {
		return 0
	}
	return job.ErrorInfo.RetryCount
}

// userStatsAction prints how many habit rows an owner has, which is
// handy before and after an import or restore.
func userStatsAction(ctx context.Context, cmd *cli.Command) error {
	s, closeFn, err := openStore(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer closeFn()

	user, err := s.GetUserByEmail(ctx, cmd.String("email"))
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	habits, goals, entries, err := s.CountOwnerData(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("count owner data: %w", err)
	}
	fmt.Printf("%s (%s): habits=%d goals=%d entries=%d\n", user.Email, user.ID, habits, goals, entries)
	return nil
}
