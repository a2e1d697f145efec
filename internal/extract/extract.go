// Package extract turns a directory of gzipped DataCite JSONL dumps into the
// two flat inputs the rest of the pipeline consumes: one author-affiliation
// relationship record per occurrence, and the deduplicated list of
// affiliation strings the resolution stage will query.
package extract

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"rorlink/internal/record"
)

// Output file names inside the output directory.
const (
	RelationshipsFile = "doi_author_affiliations.jsonl"
	AffiliationsFile  = "unique_affiliations.json"
)

// Scanner buffer cap; single DataCite records can run to a few megabytes.
const maxLineBytes = 16 << 20

// Options configures one extraction run.
type Options struct {
	InputDir  string
	OutputDir string
	// Workers bounds concurrent file parsing. Zero means runtime.NumCPU().
	Workers int
	// BatchSize is the number of records handed to the writer at once.
	BatchSize int
}

// Stats summarizes one extraction run.
type Stats struct {
	Files              int
	Records            int
	UniqueAffiliations int
}

// FindDumpFiles returns every *.jsonl.gz file under dir, recursively, in
// deterministic order.
func FindDumpFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".jsonl.gz") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan input dir: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Run extracts all dump files under opts.InputDir. Files are parsed
// concurrently; one writer goroutine funnels record batches into the
// relationships file so no two batches interleave. A file that cannot be
// parsed is logged and skipped, it never aborts the batch.
func Run(ctx context.Context, logger *zap.Logger, opts Options) (Stats, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 5000
	}

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("create output dir: %w", err)
	}

	files, err := FindDumpFiles(opts.InputDir)
	if err != nil {
		return Stats{}, err
	}
	logger.Info("starting extraction",
		zap.Int("files", len(files)),
		zap.Int("workers", workers))
	if len(files) == 0 {
		return Stats{}, nil
	}

	relPath := filepath.Join(opts.OutputDir, RelationshipsFile)
	relFile, err := os.Create(relPath)
	if err != nil {
		return Stats{}, fmt.Errorf("create %s: %w", relPath, err)
	}

	batches := make(chan []record.AuthorAffiliationRecord, workers*4)

	// Single writer: batches arrive from all workers but each record is
	// written whole, in arrival order. On a write error the writer keeps
	// draining the channel so workers never block on send.
	writerDone := make(chan error, 1)
	written := 0
	go func() {
		w := bufio.NewWriter(relFile)
		enc := json.NewEncoder(w)
		var werr error
		for batch := range batches {
			if werr != nil {
				continue
			}
			for _, rec := range batch {
				if err := enc.Encode(rec); err != nil {
					werr = fmt.Errorf("write relationship record: %w", err)
					break
				}
				written++
			}
		}
		if werr != nil {
			relFile.Close()
			writerDone <- werr
			return
		}
		if err := w.Flush(); err != nil {
			relFile.Close()
			writerDone <- fmt.Errorf("flush relationships: %w", err)
			return
		}
		writerDone <- relFile.Close()
	}()

	unique := newStringSet()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, path := range files {
		path := path
		g.Go(func() error {
			if err := processFile(gctx, path, unique, batches, batchSize); err != nil {
				logger.Error("failed to process dump file",
					zap.String("file", path),
					zap.Error(err))
			} else {
				logger.Debug("processed dump file", zap.String("file", path))
			}
			return nil
		})
	}
	_ = g.Wait() // per-file errors are logged, never propagated
	close(batches)

	if err := <-writerDone; err != nil {
		return Stats{}, err
	}

	affiliations := unique.sorted()
	affPath := filepath.Join(opts.OutputDir, AffiliationsFile)
	affFile, err := os.Create(affPath)
	if err != nil {
		return Stats{}, fmt.Errorf("create %s: %w", affPath, err)
	}
	if err := json.NewEncoder(affFile).Encode(affiliations); err != nil {
		affFile.Close()
		return Stats{}, fmt.Errorf("write affiliations: %w", err)
	}
	if err := affFile.Close(); err != nil {
		return Stats{}, fmt.Errorf("close affiliations: %w", err)
	}

	stats := Stats{
		Files:              len(files),
		Records:            written,
		UniqueAffiliations: len(affiliations),
	}
	logger.Info("extraction complete",
		zap.Int("records", stats.Records),
		zap.Int("unique_affiliations", stats.UniqueAffiliations))
	return stats, nil
}

func processFile(ctx context.Context, path string, unique *stringSet, batches chan<- []record.AuthorAffiliationRecord, batchSize int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer gz.Close()

	send := func(batch []record.AuthorAffiliationRecord) error {
		select {
		case batches <- batch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)

	batch := make([]record.AuthorAffiliationRecord, 0, batchSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		for _, rec := range ParseRecord(line) {
			unique.add(rec.Affiliation)
			batch = append(batch, rec)
		}
		if len(batch) >= batchSize {
			if err := send(batch); err != nil {
				return err
			}
			batch = make([]record.AuthorAffiliationRecord, 0, batchSize)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if len(batch) > 0 {
		return send(batch)
	}
	return nil
}

// stringSet is the mutex-guarded accumulator of unique affiliation strings.
type stringSet struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func newStringSet() *stringSet {
	return &stringSet{set: make(map[string]struct{})}
}

func (s *stringSet) add(v string) {
	s.mu.Lock()
	s.set[v] = struct{}{}
	s.mu.Unlock()
}

func (s *stringSet) sorted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.set))
	for v := range s.set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
