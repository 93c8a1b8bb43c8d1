// Package habitdata implements the data collection and import
// strategies the pipeline orchestrates: reading an owner's habit data
// into an archive, applying an archive, and restoring a snapshot.
package habitdata

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/internal/store"
	"github.com/nairabhi/habitvault/pkg/models"
)

// Collector reads an owner's habit data from the store into an Archive.
type Collector struct {
	store store.Store
}

// NewCollector creates a Collector over the given store.
func NewCollector(s store.Store) *Collector {
	return &Collector{store: s}
}

// Collect gathers the owner's data according to the job options: habit
// filter, export scope, and entry time window.
func (c *Collector) Collect(ctx context.Context, ownerID uuid.UUID, opts models.JobOptions) (*archive.Archive, error) {
	var habitIDs []uuid.UUID
	for _, raw := range opts.HabitIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid habit filter id %q: %w", raw, err)
		}
		habitIDs = append(habitIDs, id)
	}

	a := &archive.Archive{
		Version:    archive.Version,
		ExportedAt: time.Now().UTC(),
		OwnerID:    ownerID,
	}

	scope := opts.ExportType
	if scope == "" {
		scope = models.ExportFullData
	}

	if scope != models.ExportEntriesOnly {
		habits, err := c.store.ListHabits(ctx, ownerID, habitIDs)
		if err != nil {
			return nil, fmt.Errorf("collect habits: %w", err)
		}
		a.Habits = habits

		goals, err := c.store.ListGoals(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("collect goals: %w", err)
		}
		a.Goals = filterGoals(goals, habits, habitIDs)
	}

	if scope != models.ExportHabitsOnly {
		var since, until time.Time
		if opts.From != nil {
			since = *opts.From
		}
		if opts.To != nil {
			until = *opts.To
		}
		entries, err := c.store.ListEntries(ctx, ownerID, since, until)
		if err != nil {
			return nil, fmt.Errorf("collect entries: %w", err)
		}
		a.Entries = filterEntries(entries, habitIDs)
	}

	return a, nil
}

func filterGoals(goals []*models.Goal, habits []*models.Habit, habitIDs []uuid.UUID) []*models.Goal {
	if len(habitIDs) == 0 {
		return goals
	}
	keep := make(map[uuid.UUID]bool, len(habits))
	for _, h := range habits {
		keep[h.ID] = true
	}
	var out []*models.Goal
	for _, g := range goals {
		if keep[g.HabitID] {
			out = append(out, g)
		}
	}
	return out
}

func filterEntries(entries []*models.HabitEntry, habitIDs []uuid.UUID) []*models.HabitEntry {
	if len(habitIDs) == 0 {
		return entries
	}
	keep := make(map[uuid.UUID]bool, len(habitIDs))
	for _, id := range habitIDs {
		keep[id] = true
	}
	var out []*models.HabitEntry
	for _, e := range entries {
		if keep[e.HabitID] {
			out = append(out, e)
		}
	}
	return out
}
