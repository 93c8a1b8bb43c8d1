package archive

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nairabhi/habitvault/pkg/models"
)

// JSONCodec encodes archives as a single indented JSON document.
type JSONCodec struct{}

func (c *JSONCodec) Format() string { return models.FormatJSON }
func (c *JSONCodec) FileExt() string { return ".json" }

func (c *JSONCodec) Encode(a *Archive) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("encode json archive: %w", err)
	}
	return buf.Bytes(), nil
}

func (c *JSONCodec) Decode(data []byte) (*Archive, error) {
	var a Archive
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&a); err != nil {
		return nil, fmt.Errorf("decode json archive: %w", err)
	}
	if a.Version == 0 {
		return nil, fmt.Errorf("archive is missing a version")
	}
	return &a, nil
}
