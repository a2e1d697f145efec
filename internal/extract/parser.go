package extract

import (
	"encoding/json"

	"rorlink/internal/record"
)

// dumpRecord is the subset of a DataCite record the extractor reads.
type dumpRecord struct {
	ID         string `json:"id"`
	Attributes struct {
		DOI      string        `json:"doi"`
		Creators []dumpCreator `json:"creators"`
	} `json:"attributes"`
}

type dumpCreator struct {
	Name string `json:"name"`
	// Affiliation entries appear either as plain strings or as objects;
	// keep them raw and decode per entry.
	Affiliation []json.RawMessage `json:"affiliation"`
}

type dumpAffiliation struct {
	Name                        string `json:"name"`
	AffiliationIdentifier       string `json:"affiliationIdentifier"`
	AffiliationIdentifierScheme string `json:"affiliationIdentifierScheme"`
}

// affiliationEntry normalizes one raw affiliation entry. Plain strings carry
// only a name; objects may also carry an existing ROR identifier.
func affiliationEntry(raw json.RawMessage) (name, existingROR string) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, ""
	}
	var obj dumpAffiliation
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", ""
	}
	if obj.AffiliationIdentifierScheme == "ROR" {
		existingROR = obj.AffiliationIdentifier
	}
	return obj.Name, existingROR
}

// ParseRecord extracts every (DOI, author, affiliation) triple from one raw
// DataCite JSON record. Records without a DOI or creators yield nothing;
// creators without a name and empty affiliation names are skipped.
func ParseRecord(line []byte) []record.AuthorAffiliationRecord {
	var rec dumpRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return nil
	}

	doi := rec.ID
	if doi == "" {
		doi = rec.Attributes.DOI
	}
	if doi == "" {
		return nil
	}

	var out []record.AuthorAffiliationRecord
	for authorIdx, creator := range rec.Attributes.Creators {
		if creator.Name == "" {
			continue
		}
		for affiliationIdx, raw := range creator.Affiliation {
			name, existingROR := affiliationEntry(raw)
			if name == "" {
				continue
			}
			out = append(out, record.AuthorAffiliationRecord{
				DOI:             doi,
				AuthorIdx:       authorIdx,
				AuthorName:      creator.Name,
				AffiliationIdx:  affiliationIdx,
				Affiliation:     name,
				AffiliationHash: record.Fingerprint(name),
				ExistingRORID:   existingROR,
			})
		}
	}
	return out
}
