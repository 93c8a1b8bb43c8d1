package habitdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/internal/store"
	"github.com/nairabhi/habitvault/pkg/models"
)

// ImportStats summarizes what Apply did.
type ImportStats struct {
	Imported int64 `json:"imported"`
	Updated  int64 `json:"updated"`
	Skipped  int64 `json:"skipped"`
}

func (s ImportStats) Total() int64 { return s.Imported + s.Updated + s.Skipped }

// Importer applies archives to an owner's habit data and restores
// snapshots.
type Importer struct {
	store store.Store
}

// NewImporter creates an Importer over the given store.
func NewImporter(s store.Store) *Importer {
	return &Importer{store: s}
}

// Apply writes the archive's records into the owner's data. Conflicts
// are resolved per the policy: skip keeps everything existing, overwrite
// replaces habit settings and colliding entries, merge keeps existing
// habit settings but still replaces colliding entries and goals.
// Archive habit IDs are remapped: existing habits keep their IDs, new
// habits get fresh ones.
func (im *Importer) Apply(ctx context.Context, ownerID uuid.UUID, a *archive.Archive, policy string) (ImportStats, error) {
	if policy == "" {
		policy = models.ConflictSkip
	}
	overwriteHabits := policy == models.ConflictOverwrite
	overwriteRecords := policy != models.ConflictSkip

	var stats ImportStats
	now := time.Now().UTC()
	idMap := make(map[uuid.UUID]uuid.UUID, len(a.Habits))

	for _, h := range a.Habits {
		existing, err := im.store.GetHabitByName(ctx, ownerID, h.Name)
		switch {
		case err == nil:
			idMap[h.ID] = existing.ID
			if !overwriteHabits {
				stats.Skipped++
				continue
			}
			update := *h
			update.ID = existing.ID
			update.OwnerID = ownerID
			update.UpdatedAt = now
			if err := im.store.UpsertHabit(ctx, &update, true); err != nil {
				return stats, fmt.Errorf("update habit %q: %w", h.Name, err)
			}
			stats.Updated++
		case errors.Is(err, store.ErrNotFound):
			created := *h
			created.ID = uuid.New()
			created.OwnerID = ownerID
			created.UpdatedAt = now
			idMap[h.ID] = created.ID
			if err := im.store.UpsertHabit(ctx, &created, false); err != nil {
				return stats, fmt.Errorf("import habit %q: %w", h.Name, err)
			}
			stats.Imported++
		default:
			return stats, fmt.Errorf("look up habit %q: %w", h.Name, err)
		}
	}

	for _, g := range a.Goals {
		target, ok := idMap[g.HabitID]
		if !ok {
			stats.Skipped++
			continue
		}
		goal := *g
		goal.ID = uuid.New()
		goal.OwnerID = ownerID
		goal.HabitID = target
		goal.UpdatedAt = now
		if err := im.store.UpsertGoal(ctx, &goal, overwriteRecords); err != nil {
			return stats, fmt.Errorf("import goal %q: %w", g.Title, err)
		}
		stats.Imported++
	}

	for _, e := range a.Entries {
		target, ok := idMap[e.HabitID]
		if !ok {
			stats.Skipped++
			continue
		}
		entry := *e
		entry.ID = uuid.New()
		entry.OwnerID = ownerID
		entry.HabitID = target
		if err := im.store.UpsertEntry(ctx, &entry, overwriteRecords); err != nil {
			return stats, fmt.Errorf("import entry for %s: %w", e.Day.Format("2006-01-02"), err)
		}
		stats.Imported++
	}

	return stats, nil
}

// Restore replaces the owner's data wholesale with the snapshot archive.
func (im *Importer) Restore(ctx context.Context, ownerID uuid.UUID, a *archive.Archive) error {
	for _, h := range a.Habits {
		h.OwnerID = ownerID
	}
	for _, g := range a.Goals {
		g.OwnerID = ownerID
	}
	for _, e := range a.Entries {
		e.OwnerID = ownerID
	}
	if err := im.store.ReplaceOwnerData(ctx, ownerID, a.Habits, a.Goals, a.Entries); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	return nil
}
