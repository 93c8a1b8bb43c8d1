package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/internal/archive"
	"github.com/nairabhi/habitvault/pkg/models"
)

// Validation check names, used as the Check field of findings.
const (
	CheckFormat = "format"
	CheckSchema = "schema"
	CheckData   = "data"
)

// ValidationError carries the structured report of a failed import
// validation. Validation failures are never retried.
type ValidationError struct {
	Report *models.ValidationReport
}

func (e *ValidationError) Error() string {
	n := len(e.Report.Errors)
	if n == 1 {
		return fmt.Sprintf("validation failed: %s", e.Report.Errors[0].Message)
	}
	return fmt.Sprintf("validation failed with %d findings", n)
}

// archiveSchema lists the required fields and JSON types for each record
// kind in a JSON archive. Anything else present is reported as an extra
// field.
var archiveSchema = map[string]map[string]string{
	"habit": {
		"id": "string", "owner_id": "string", "name": "string", "icon": "string",
		"frequency": "string", "target_per": "number", "archived": "bool",
		"created_at": "string", "updated_at": "string",
	},
	"goal": {
		"id": "string", "owner_id": "string", "habit_id": "string", "title": "string",
		"target": "number", "achieved": "bool", "created_at": "string", "updated_at": "string",
	},
	"entry": {
		"id": "string", "owner_id": "string", "habit_id": "string", "day": "string",
		"count": "number", "note": "string", "created_at": "string",
	},
}

var optionalFields = map[string]map[string]bool{
	"goal": {"deadline": true},
}

// ValidateFormat confirms the declared format matches the actual file
// structure and encoding.
func ValidateFormat(format string, data []byte) []models.ValidationIssue {
	var issues []models.ValidationIssue
	add := func(msg string) {
		issues = append(issues, models.ValidationIssue{Check: CheckFormat, Message: msg})
	}

	if len(bytes.TrimSpace(data)) == 0 {
		add("file is empty")
		return issues
	}
	if archive.IsGzip(data) {
		add("file is still gzip compressed; decompression must happen before validation")
		return issues
	}

	switch format {
	case models.FormatJSON:
		trimmed := bytes.TrimSpace(data)
		if trimmed[0] != '{' {
			add("declared format is json but file does not start with an object")
			return issues
		}
		if !json.Valid(data) {
			add("declared format is json but file is not valid JSON")
		}
	case models.FormatCSV:
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		header, err := r.Read()
		if err != nil {
			add(fmt.Sprintf("declared format is csv but header row is unreadable: %v", err))
			return issues
		}
		if len(header) == 0 || header[0] != archive.CSVHeader[0] {
			add("declared format is csv but the header row does not match the archive layout")
		}
	default:
		add(fmt.Sprintf("unknown declared format %q", format))
	}
	return issues
}

// ValidateSchema diffs the record shape against the expected archive
// schema: missing fields, extra fields, and type mismatches.
func ValidateSchema(format string, data []byte) []models.ValidationIssue {
	if format == models.FormatCSV {
		return validateCSVSchema(data)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return []models.ValidationIssue{{Check: CheckSchema, Message: fmt.Sprintf("cannot inspect document: %v", err)}}
	}

	var issues []models.ValidationIssue
	for _, key := range []string{"version", "exported_at", "owner_id"} {
		if _, ok := doc[key]; !ok {
			issues = append(issues, models.ValidationIssue{
				Check: CheckSchema, Field: key, Message: fmt.Sprintf("missing required field %q", key),
			})
		}
	}

	issues = append(issues, validateRecordList(doc, "habits", "habit")...)
	issues = append(issues, validateRecordList(doc, "goals", "goal")...)
	issues = append(issues, validateRecordList(doc, "entries", "entry")...)
	return issues
}

func validateRecordList(doc map[string]json.RawMessage, listKey, kind string) []models.ValidationIssue {
	raw, ok := doc[listKey]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return []models.ValidationIssue{{
			Check: CheckSchema, Field: listKey,
			Message: fmt.Sprintf("%s must be an array of objects: %v", listKey, err),
		}}
	}

	expected := archiveSchema[kind]
	var issues []models.ValidationIssue
	for i, rec := range records {
		for field, wantType := range expected {
			val, ok := rec[field]
			if !ok {
				issues = append(issues, models.ValidationIssue{
					Check: CheckSchema, Field: field, Record: i + 1,
					Message: fmt.Sprintf("%s record is missing field %q", kind, field),
				})
				continue
			}
			if got := jsonTypeOf(val); got != wantType {
				issues = append(issues, models.ValidationIssue{
					Check: CheckSchema, Field: field, Record: i + 1,
					Message: fmt.Sprintf("%s field %q has type %s, expected %s", kind, field, got, wantType),
				})
			}
		}
		for field := range rec {
			if _, ok := expected[field]; ok {
				continue
			}
			if optionalFields[kind][field] {
				continue
			}
			issues = append(issues, models.ValidationIssue{
				Check: CheckSchema, Field: field, Record: i + 1,
				Message: fmt.Sprintf("%s record has unexpected field %q", kind, field),
			})
		}
	}
	return issues
}

func jsonTypeOf(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	case nil:
		return "null"
	case []any:
		return "array"
	default:
		return "object"
	}
}

func validateCSVSchema(data []byte) []models.ValidationIssue {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return []models.ValidationIssue{{Check: CheckSchema, Message: fmt.Sprintf("cannot inspect rows: %v", err)}}
	}

	minFields := map[string]int{"meta": 4, "habit": 8, "goal": 8, "entry": 7}
	var issues []models.ValidationIssue
	for i, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		want, ok := minFields[row[0]]
		if !ok {
			issues = append(issues, models.ValidationIssue{
				Check: CheckSchema, Record: i + 1,
				Message: fmt.Sprintf("unknown record type %q", row[0]),
			})
			continue
		}
		if len(row) < want {
			issues = append(issues, models.ValidationIssue{
				Check: CheckSchema, Record: i + 1,
				Message: fmt.Sprintf("%s row has %d fields, expected at least %d", row[0], len(row), want),
			})
		}
	}
	return issues
}

// ValidateData evaluates constraint violations and duplicate keys within
// the parsed records. Returns the decoded archive when it decodes at
// all, so callers can count records.
func ValidateData(format string, data []byte) (*archive.Archive, []models.ValidationIssue) {
	codec, err := archive.NewCodec(format)
	if err != nil {
		return nil, []models.ValidationIssue{{Check: CheckData, Message: err.Error()}}
	}
	a, err := codec.Decode(data)
	if err != nil {
		return nil, []models.ValidationIssue{{Check: CheckData, Message: err.Error()}}
	}

	var issues []models.ValidationIssue
	add := func(field string, record int, msg string) {
		issues = append(issues, models.ValidationIssue{Check: CheckData, Field: field, Record: record, Message: msg})
	}

	if a.Version != archive.Version {
		add("version", 0, fmt.Sprintf("unsupported archive version %d", a.Version))
	}

	habitIDs := make(map[uuid.UUID]bool, len(a.Habits))
	names := make(map[string]int, len(a.Habits))
	for i, h := range a.Habits {
		rec := i + 1
		if h.Name == "" {
			add("name", rec, "habit name must not be empty")
		}
		if prev, dup := names[h.Name]; dup {
			add("name", rec, fmt.Sprintf("duplicate habit name %q (first seen at record %d)", h.Name, prev))
		} else {
			names[h.Name] = rec
		}
		if h.TargetPer < 0 {
			add("target_per", rec, "target_per must not be negative")
		}
		habitIDs[h.ID] = true
	}

	for i, g := range a.Goals {
		rec := i + 1
		if !habitIDs[g.HabitID] {
			add("habit_id", rec, fmt.Sprintf("goal references unknown habit %s", g.HabitID))
		}
		if g.Target < 0 {
			add("target", rec, "target must not be negative")
		}
	}

	seen := make(map[string]int, len(a.Entries))
	for i, e := range a.Entries {
		rec := i + 1
		if !habitIDs[e.HabitID] {
			add("habit_id", rec, fmt.Sprintf("entry references unknown habit %s", e.HabitID))
		}
		if e.Count < 0 {
			add("count", rec, "count must not be negative")
		}
		key := e.HabitID.String() + "|" + e.Day.Format("2006-01-02")
		if prev, dup := seen[key]; dup {
			add("day", rec, fmt.Sprintf("duplicate entry for habit %s on %s (first seen at record %d)",
				e.HabitID, e.Day.Format("2006-01-02"), prev))
		} else {
			seen[key] = rec
		}
	}

	return a, issues
}
