// Package reconcile joins resolved ROR identifiers back onto the DOI/author
// relationship records, producing enriched metadata for DOIs with matched
// affiliations plus reports on pre-existing assignments and on places where
// the pipeline's matches disagree with them.
package reconcile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"rorlink/internal/extract"
	"rorlink/internal/record"
	"rorlink/internal/resolve"
)

// Output file names written next to the enriched records file.
const (
	ExistingAssignmentsFile   = "existing_assignments.jsonl"
	AggregatedAssignmentsFile = "existing_assignments_aggregated.jsonl"
	DisagreementsFile         = "disagreements.jsonl"
)

const (
	affiliationScheme = "ROR"
	schemeURI         = "https://ror.org"
	unknownOrgName    = "Unknown"
)

// ExistingAssignment is one source record that already carried a ROR id.
type ExistingAssignment struct {
	DOI         string `json:"doi"`
	AuthorIdx   int    `json:"author_idx"`
	AuthorName  string `json:"author_name"`
	Affiliation string `json:"affiliation"`
	RORID       string `json:"ror_id"`
	RORName     string `json:"ror_name"`
}

// AggregatedAssignment counts how often one affiliation string was already
// assigned a given ROR id in the source data.
type AggregatedAssignment struct {
	Affiliation     string `json:"affiliation"`
	AffiliationHash string `json:"affiliation_hash"`
	RORID           string `json:"ror_id"`
	RORName         string `json:"ror_name"`
	Count           int    `json:"count"`
}

// RORIDCount is one identifier option within a user disagreement.
type RORIDCount struct {
	RORID   string `json:"ror_id"`
	RORName string `json:"ror_name"`
	Count   int    `json:"count"`
}

// Disagreement flags an affiliation whose existing assignments conflict,
// either internally (distinct ids assigned by different depositors, type
// "user") or with this pipeline's match (type "match").
type Disagreement struct {
	Type            string       `json:"type"`
	Affiliation     string       `json:"affiliation"`
	AffiliationHash string       `json:"affiliation_hash"`
	RORIDs          []RORIDCount `json:"ror_ids,omitempty"`
	ExistingRORID   string       `json:"existing_ror_id,omitempty"`
	ExistingRORName string       `json:"existing_ror_name,omitempty"`
	ExistingCount   int          `json:"existing_count,omitempty"`
	MatchedRORID    string       `json:"matched_ror_id,omitempty"`
	MatchedRORName  string       `json:"matched_ror_name,omitempty"`
}

// Options configures one reconciliation run.
type Options struct {
	// InputDir holds the relationships and match files from prior stages.
	InputDir string
	// OutputPath is the enriched records file; reports land beside it.
	OutputPath string
	// RORDataPath is the ROR data dump used to name organizations.
	RORDataPath string
}

// Stats summarizes one reconciliation run.
type Stats struct {
	Enriched           int
	Existing           int
	UserDisagreements  int
	MatchDisagreements int
}

// LoadMatches reads the match sink into a fingerprint -> ROR id lookup.
// Blank and malformed lines are skipped.
func LoadMatches(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open matches: %w", err)
	}
	defer f.Close()

	lookup := make(map[string]string)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var m record.Match
		if err := json.Unmarshal(line, &m); err != nil {
			continue
		}
		lookup[m.AffiliationHash] = m.RORID
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read matches: %w", err)
	}
	return lookup, nil
}

// Run streams the relationship records, enriches DOIs whose affiliations
// resolved, and writes the existing-assignment and disagreement reports.
func Run(logger *zap.Logger, opts Options) (Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rorNames, err := LoadRORData(opts.RORDataPath)
	if err != nil {
		return Stats{}, err
	}
	logger.Info("loaded ror organizations", zap.Int("count", len(rorNames)))

	matches, err := LoadMatches(filepath.Join(opts.InputDir, resolve.MatchesFile))
	if err != nil {
		return Stats{}, err
	}
	logger.Info("loaded ror matches", zap.Int("count", len(matches)))

	r := &reconciler{
		logger:    logger,
		rorNames:  rorNames,
		matches:   matches,
		existing:  make(map[string]map[string]int),
		affByHash: make(map[string]string),
	}
	return r.run(opts)
}

type reconciler struct {
	logger   *zap.Logger
	rorNames map[string]string
	matches  map[string]string

	// existing[hash][rorID] counts pre-existing assignments per affiliation.
	existing  map[string]map[string]int
	affByHash map[string]string

	stats Stats
}

func (r *reconciler) orgName(rorID string) string {
	if name, ok := r.rorNames[rorID]; ok {
		return name
	}
	return unknownOrgName
}

func (r *reconciler) run(opts Options) (Stats, error) {
	relPath := filepath.Join(opts.InputDir, extract.RelationshipsFile)
	in, err := os.Open(relPath)
	if err != nil {
		return r.stats, fmt.Errorf("open relationships: %w", err)
	}
	defer in.Close()

	outputDir := filepath.Dir(opts.OutputPath)
	enriched, err := newLineWriter(opts.OutputPath)
	if err != nil {
		return r.stats, err
	}
	existing, err := newLineWriter(filepath.Join(outputDir, ExistingAssignmentsFile))
	if err != nil {
		enriched.close() //nolint:errcheck
		return r.stats, err
	}

	// Relationships are grouped by consecutive DOI, the order the extractor
	// emitted them in.
	var currentDOI string
	var group []record.AuthorAffiliationRecord

	flushGroup := func() error {
		if len(group) == 0 {
			return nil
		}
		if rec, ok := r.enrich(currentDOI, group); ok {
			if err := enriched.write(rec); err != nil {
				return err
			}
			r.stats.Enriched++
		}
		group = group[:0]
		return nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record.AuthorAffiliationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}

		if _, ok := r.affByHash[rec.AffiliationHash]; !ok {
			r.affByHash[rec.AffiliationHash] = rec.Affiliation
		}

		if rec.ExistingRORID != "" {
			if err := existing.write(ExistingAssignment{
				DOI:         rec.DOI,
				AuthorIdx:   rec.AuthorIdx,
				AuthorName:  rec.AuthorName,
				Affiliation: rec.Affiliation,
				RORID:       rec.ExistingRORID,
				RORName:     r.orgName(rec.ExistingRORID),
			}); err != nil {
				enriched.close()
				existing.close()
				return r.stats, err
			}
			r.stats.Existing++

			byID := r.existing[rec.AffiliationHash]
			if byID == nil {
				byID = make(map[string]int)
				r.existing[rec.AffiliationHash] = byID
			}
			byID[rec.ExistingRORID]++
			continue
		}

		if rec.DOI != currentDOI {
			if err := flushGroup(); err != nil {
				enriched.close()
				existing.close()
				return r.stats, err
			}
			currentDOI = rec.DOI
		}
		group = append(group, rec)
	}
	if err := scanner.Err(); err != nil {
		enriched.close()
		existing.close()
		return r.stats, fmt.Errorf("read relationships: %w", err)
	}
	if err := flushGroup(); err != nil {
		enriched.close()
		existing.close()
		return r.stats, err
	}

	if err := enriched.close(); err != nil {
		return r.stats, fmt.Errorf("flush enriched: %w", err)
	}
	if err := existing.close(); err != nil {
		return r.stats, fmt.Errorf("flush existing assignments: %w", err)
	}

	if err := r.writeAggregated(filepath.Join(outputDir, AggregatedAssignmentsFile)); err != nil {
		return r.stats, err
	}
	if err := r.writeDisagreements(filepath.Join(outputDir, DisagreementsFile)); err != nil {
		return r.stats, err
	}

	r.logger.Info("reconciliation complete",
		zap.Int("enriched", r.stats.Enriched),
		zap.Int("existing_assignments", r.stats.Existing),
		zap.Int("user_disagreements", r.stats.UserDisagreements),
		zap.Int("match_disagreements", r.stats.MatchDisagreements))
	return r.stats, nil
}

// enrich builds the enriched record for one DOI group. Creators keep their
// source order; creators and DOIs without any matched affiliation are
// dropped.
func (r *reconciler) enrich(doi string, group []record.AuthorAffiliationRecord) (record.EnrichedRecord, bool) {
	type author struct {
		name         string
		affiliations []record.EnrichedAffiliation
	}
	byIdx := make(map[int]*author)
	var order []int

	for _, rec := range group {
		a, ok := byIdx[rec.AuthorIdx]
		if !ok {
			a = &author{name: rec.AuthorName}
			byIdx[rec.AuthorIdx] = a
			order = append(order, rec.AuthorIdx)
		}
		if rorID, ok := r.matches[rec.AffiliationHash]; ok {
			a.affiliations = append(a.affiliations, record.EnrichedAffiliation{
				Name:                        rec.Affiliation,
				AffiliationIdentifier:       rorID,
				AffiliationIdentifierScheme: affiliationScheme,
				SchemeURI:                   schemeURI,
			})
		}
	}

	sort.Ints(order)
	var creators []record.EnrichedCreator
	for _, idx := range order {
		a := byIdx[idx]
		if len(a.affiliations) == 0 {
			continue
		}
		creators = append(creators, record.EnrichedCreator{
			Name:        a.name,
			Affiliation: a.affiliations,
		})
	}

	if len(creators) == 0 {
		return record.EnrichedRecord{}, false
	}
	return record.EnrichedRecord{DOI: doi, Creators: creators}, true
}

func (r *reconciler) writeAggregated(path string) error {
	w, err := newLineWriter(path)
	if err != nil {
		return err
	}
	for _, hash := range sortedKeys(r.existing) {
		byID := r.existing[hash]
		for _, rorID := range sortedKeys(byID) {
			if err := w.write(AggregatedAssignment{
				Affiliation:     r.affByHash[hash],
				AffiliationHash: hash,
				RORID:           rorID,
				RORName:         r.orgName(rorID),
				Count:           byID[rorID],
			}); err != nil {
				w.close()
				return err
			}
		}
	}
	return w.close()
}

func (r *reconciler) writeDisagreements(path string) error {
	w, err := newLineWriter(path)
	if err != nil {
		return err
	}

	for _, hash := range sortedKeys(r.existing) {
		byID := r.existing[hash]
		affiliation := r.affByHash[hash]

		// Different depositors assigned different organizations to the same
		// affiliation string.
		if len(byID) > 1 {
			ids := make([]RORIDCount, 0, len(byID))
			for _, rorID := range sortedKeys(byID) {
				ids = append(ids, RORIDCount{
					RORID:   rorID,
					RORName: r.orgName(rorID),
					Count:   byID[rorID],
				})
			}
			if err := w.write(Disagreement{
				Type:            "user",
				Affiliation:     affiliation,
				AffiliationHash: hash,
				RORIDs:          ids,
			}); err != nil {
				w.close()
				return err
			}
			r.stats.UserDisagreements++
		}

		// Our resolved match differs from what depositors assigned.
		matched, ok := r.matches[hash]
		if !ok {
			continue
		}
		for _, rorID := range sortedKeys(byID) {
			if rorID == matched {
				continue
			}
			if err := w.write(Disagreement{
				Type:            "match",
				Affiliation:     affiliation,
				AffiliationHash: hash,
				ExistingRORID:   rorID,
				ExistingRORName: r.orgName(rorID),
				ExistingCount:   byID[rorID],
				MatchedRORID:    matched,
				MatchedRORName:  r.orgName(matched),
			}); err != nil {
				w.close()
				return err
			}
			r.stats.MatchDisagreements++
		}
	}
	return w.close()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// lineWriter appends JSON lines to a file through one buffered writer.
type lineWriter struct {
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder
}

func newLineWriter(path string) (*lineWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	return &lineWriter{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

func (l *lineWriter) write(v any) error {
	return l.enc.Encode(v)
}

func (l *lineWriter) close() error {
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
