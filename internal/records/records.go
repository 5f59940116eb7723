// Package records loads and validates the source record set for ragserver.
package records

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Record is a single source document. ID and Text are required; Region and
// Type are optional descriptive attributes used to enrich the indexed text.
type Record struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Region string `json:"region,omitempty"`
	Type   string `json:"type,omitempty"`
}

// Load reads the record set from a JSON file (an array of records) and
// validates it. Invalid records are dropped with a warning, not fatal.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("failed to parse records file: %w", err)
	}

	return Validate(recs), nil
}

// Validate filters the record set down to well-formed records. Records
// missing an ID or text, and records repeating an earlier ID, are dropped
// with a warning.
func Validate(recs []Record) []Record {
	valid := make([]Record, 0, len(recs))
	seen := make(map[string]bool, len(recs))

	for i, r := range recs {
		r.ID = strings.TrimSpace(r.ID)
		r.Text = strings.TrimSpace(r.Text)

		if r.ID == "" || r.Text == "" {
			log.Warn("Dropping invalid record", "index", i, "id", r.ID)
			continue
		}
		if seen[r.ID] {
			log.Warn("Dropping record with duplicate id", "id", r.ID)
			continue
		}
		seen[r.ID] = true
		valid = append(valid, r)
	}

	return valid
}

// IDs returns the IDs of the given records in order.
func IDs(recs []Record) []string {
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids
}
