package archive

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/pkg/models"
)

// CSVCodec encodes archives as a single CSV stream with a record-type
// discriminator in the first column. Row layouts per type:
//
//	meta,<version>,<exported_at>,<owner_id>
//	habit,<id>,<name>,<icon>,<frequency>,<target_per>,<archived>,<created_at>
//	goal,<id>,<habit_id>,<title>,<target>,<deadline>,<achieved>,<created_at>
//	entry,<id>,<habit_id>,<day>,<count>,<note>,<created_at>
type CSVCodec struct{}

// CSVHeader is the fixed first row of every CSV archive.
var CSVHeader = []string{"record_type", "f1", "f2", "f3", "f4", "f5", "f6", "f7"}

func (c *CSVCodec) Format() string { return models.FormatCSV }
func (c *CSVCodec) FileExt() string { return ".csv" }

func (c *CSVCodec) Encode(a *Archive) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		CSVHeader,
		{"meta", strconv.Itoa(a.Version), a.ExportedAt.UTC().Format(time.RFC3339), a.OwnerID.String(), "", "", "", ""},
	}
	for _, h := range a.Habits {
		rows = append(rows, []string{"habit", h.ID.String(), h.Name, h.Icon, h.Frequency,
			strconv.Itoa(h.TargetPer), strconv.FormatBool(h.Archived), h.CreatedAt.UTC().Format(time.RFC3339)})
	}
	for _, g := range a.Goals {
		deadline := ""
		if g.Deadline != nil {
			deadline = g.Deadline.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []string{"goal", g.ID.String(), g.HabitID.String(), g.Title,
			strconv.Itoa(g.Target), deadline, strconv.FormatBool(g.Achieved), g.CreatedAt.UTC().Format(time.RFC3339)})
	}
	for _, e := range a.Entries {
		rows = append(rows, []string{"entry", e.ID.String(), e.HabitID.String(),
			e.Day.UTC().Format("2006-01-02"), strconv.Itoa(e.Count), e.Note, e.CreatedAt.UTC().Format(time.RFC3339), ""})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode csv archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *CSVCodec) Decode(data []byte) (*Archive, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv archive: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("csv archive has no meta row")
	}

	a := &Archive{}
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) == 0 {
			continue
		}
		switch row[0] {
		case "meta":
			if len(row) < 4 {
				return nil, fmt.Errorf("line %d: meta row too short", line)
			}
			a.Version, err = strconv.Atoi(row[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad version: %w", line, err)
			}
			if a.ExportedAt, err = time.Parse(time.RFC3339, row[2]); err != nil {
				return nil, fmt.Errorf("line %d: bad exported_at: %w", line, err)
			}
			if a.OwnerID, err = uuid.Parse(row[3]); err != nil {
				return nil, fmt.Errorf("line %d: bad owner_id: %w", line, err)
			}
		case "habit":
			h, err := parseHabitRow(row)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			a.Habits = append(a.Habits, h)
		case "goal":
			g, err := parseGoalRow(row)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			a.Goals = append(a.Goals, g)
		case "entry":
			e, err := parseEntryRow(row)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			a.Entries = append(a.Entries, e)
		default:
			return nil, fmt.Errorf("line %d: unknown record type %q", line, row[0])
		}
	}

	if a.Version == 0 {
		return nil, fmt.Errorf("csv archive is missing a meta row")
	}
	return a, nil
}

func parseHabitRow(row []string) (*models.Habit, error) {
	if len(row) < 8 {
		return nil, fmt.Errorf("habit row too short")
	}
	id, err := uuid.Parse(row[1])
	if err != nil {
		return nil, fmt.Errorf("bad habit id: %w", err)
	}
	target, err := strconv.Atoi(row[5])
	if err != nil {
		return nil, fmt.Errorf("bad target_per: %w", err)
	}
	archived, err := strconv.ParseBool(row[6])
	if err != nil {
		return nil, fmt.Errorf("bad archived flag: %w", err)
	}
	created, err := time.Parse(time.RFC3339, row[7])
	if err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	return &models.Habit{
		ID: id, Name: row[2], Icon: row[3], Frequency: row[4],
		TargetPer: target, Archived: archived, CreatedAt: created, UpdatedAt: created,
	}, nil
}

func parseGoalRow(row []string) (*models.Goal, error) {
	if len(row) < 8 {
		return nil, fmt.Errorf("goal row too short")
	}
	id, err := uuid.Parse(row[1])
	if err != nil {
		return nil, fmt.Errorf("bad goal id: %w", err)
	}
	habitID, err := uuid.Parse(row[2])
	if err != nil {
		return nil, fmt.Errorf("bad habit_id: %w", err)
	}
	target, err := strconv.Atoi(row[4])
	if err != nil {
		return nil, fmt.Errorf("bad target: %w", err)
	}
	var deadline *time.Time
	if row[5] != "" {
		d, err := time.Parse(time.RFC3339, row[5])
		if err != nil {
			return nil, fmt.Errorf("bad deadline: %w", err)
		}
		deadline = &d
	}
	achieved, err := strconv.ParseBool(row[6])
	if err != nil {
		return nil, fmt.Errorf("bad achieved flag: %w", err)
	}
	created, err := time.Parse(time.RFC3339, row[7])
	if err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	return &models.Goal{
		ID: id, HabitID: habitID, Title: row[3], Target: target,
		Deadline: deadline, Achieved: achieved, CreatedAt: created, UpdatedAt: created,
	}, nil
}

func parseEntryRow(row []string) (*models.HabitEntry, error) {
	if len(row) < 7 {
		return nil, fmt.Errorf("entry row too short")
	}
	id, err := uuid.Parse(row[1])
	if err != nil {
		return nil, fmt.Errorf("bad entry id: %w", err)
	}
	habitID, err := uuid.Parse(row[2])
	if err != nil {
		return nil, fmt.Errorf("bad habit_id: %w", err)
	}
	day, err := time.Parse("2006-01-02", row[3])
	if err != nil {
		return nil, fmt.Errorf("bad day: %w", err)
	}
	count, err := strconv.Atoi(row[4])
	if err != nil {
		return nil, fmt.Errorf("bad count: %w", err)
	}
	created, err := time.Parse(time.RFC3339, row[6])
	if err != nil {
		return nil, fmt.Errorf("bad created_at: %w", err)
	}
	return &models.HabitEntry{
		ID: id, HabitID: habitID, Day: day, Count: count, Note: row[5], CreatedAt: created,
	}, nil
}
