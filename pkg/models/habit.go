package models

import (
	"time"

	"github.com/google/uuid"
)

// Habit is one tracked habit. The CRUD surface for habits lives outside
// this service; the pipeline reads and writes these rows when exporting,
// importing, snapshotting, and restoring.
type Habit struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	OwnerID   uuid.UUID  `db:"owner_id"   json:"owner_id"`
	Name      string     `db:"name"       json:"name"`
	Icon      string     `db:"icon"       json:"icon"`
	Frequency string     `db:"frequency"  json:"frequency"`
	TargetPer int        `db:"target_per" json:"target_per"`
	Archived  bool       `db:"archived"   json:"archived"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Goal is a longer-horizon target attached to a habit.
type Goal struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	OwnerID   uuid.UUID  `db:"owner_id"   json:"owner_id"`
	HabitID   uuid.UUID  `db:"habit_id"   json:"habit_id"`
	Title     string     `db:"title"      json:"title"`
	Target    int        `db:"target"     json:"target"`
	Deadline  *time.Time `db:"deadline"   json:"deadline,omitempty"`
	Achieved  bool       `db:"achieved"   json:"achieved"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// HabitEntry is one completion record for a habit on a given day.
type HabitEntry struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	OwnerID   uuid.UUID `db:"owner_id"   json:"owner_id"`
	HabitID   uuid.UUID `db:"habit_id"   json:"habit_id"`
	Day       time.Time `db:"day"        json:"day"`
	Count     int       `db:"count"      json:"count"`
	Note      string    `db:"note"       json:"note"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
