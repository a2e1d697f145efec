package reconcile

import (
	"encoding/json"
	"fmt"
	"os"
)

type rorName struct {
	Value string   `json:"value"`
	Types []string `json:"types"`
}

type rorRecord struct {
	ID    string    `json:"id"`
	Names []rorName `json:"names"`
}

// LoadRORData reads a ROR data dump (a JSON array of organization records)
// and builds an id -> display-name lookup, preferring the name flagged
// ror_display and falling back to the first listed name.
func LoadRORData(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ror data: %w", err)
	}
	defer f.Close()

	var records []rorRecord
	if err := json.NewDecoder(f).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode ror data: %w", err)
	}

	lookup := make(map[string]string, len(records))
	for _, rec := range records {
		name := displayName(rec.Names)
		if name != "" {
			lookup[rec.ID] = name
		}
	}
	return lookup, nil
}

func displayName(names []rorName) string {
	for _, n := range names {
		for _, t := range n.Types {
			if t == "ror_display" {
				return n.Value
			}
		}
	}
	if len(names) > 0 {
		return names[0].Value
	}
	return ""
}
