// Package archive defines the interchange format for exported and
// imported habit data, and the codec/compressor/encryptor strategies the
// pipeline composes over it.
package archive

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nairabhi/habitvault/pkg/models"
)

// Version is written into every produced archive and checked on import.
const Version = 1

// Archive is the canonical in-memory form of one owner's exported data.
type Archive struct {
	Version    int                  `json:"version"`
	ExportedAt time.Time            `json:"exported_at"`
	OwnerID    uuid.UUID            `json:"owner_id"`
	Habits     []*models.Habit      `json:"habits"`
	Goals      []*models.Goal       `json:"goals"`
	Entries    []*models.HabitEntry `json:"entries"`
}

// RecordCount returns the total number of data records in the archive.
func (a *Archive) RecordCount() int64 {
	return int64(len(a.Habits) + len(a.Goals) + len(a.Entries))
}

// Codec encodes an Archive to bytes and back. Implementations must be
// deterministic: encoding the same archive twice yields identical bytes,
// so checksums are stable.
type Codec interface {
	Format() string
	FileExt() string
	Encode(a *Archive) ([]byte, error)
	Decode(data []byte) (*Archive, error)
}

// NewCodec returns the codec for a format name.
func NewCodec(format string) (Codec, error) {
	switch format {
	case models.FormatJSON:
		return &JSONCodec{}, nil
	case models.FormatCSV:
		return &CSVCodec{}, nil
	default:
		return nil, fmt.Errorf("unsupported archive format %q", format)
	}
}
