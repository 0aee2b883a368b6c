package gapaudit

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadSourceRecords reads the source record set: a JSON array of
// objects, one per exported source record. Records keep their array
// position as identity; the report refers to them by index.
func LoadSourceRecords(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source records %s: %w", path, err)
	}

	var records []map[string]any
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to parse source records %s: %w", path, err)
	}

	return records, nil
}
