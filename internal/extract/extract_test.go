package extract

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rorlink/internal/record"
)

func writeDump(t *testing.T, path string, lines []string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	for _, line := range lines {
		_, err := gz.Write(append([]byte(line), '\n'))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func TestFindDumpFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested", "deep"), 0o755))
	writeDump(t, filepath.Join(dir, "b.jsonl.gz"), nil)
	writeDump(t, filepath.Join(dir, "nested", "deep", "a.jsonl.gz"), nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.jsonl"), []byte("{}"), 0o644))

	files, err := FindDumpFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(dir, "b.jsonl.gz"), files[0])
	assert.Equal(t, filepath.Join(dir, "nested", "deep", "a.jsonl.gz"), files[1])
}

func TestRun_EndToEnd(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()

	writeDump(t, filepath.Join(inputDir, "dump-0.jsonl.gz"), []string{
		`{"id":"10.1/a","attributes":{"creators":[{"name":"Doe, Jane","affiliation":["University of Oxford","CERN"]}]}}`,
		`not json at all`,
		``,
		`{"id":"10.1/b","attributes":{"creators":[{"name":"Roe, Richard","affiliation":[{"name":"University of Oxford"}]}]}}`,
	})
	writeDump(t, filepath.Join(inputDir, "dump-1.jsonl.gz"), []string{
		`{"id":"10.1/c","attributes":{"creators":[{"name":"Poe, Edgar","affiliation":["CERN"]}]}}`,
	})

	stats, err := Run(context.Background(), nil, Options{
		InputDir:  inputDir,
		OutputDir: outputDir,
		Workers:   2,
		BatchSize: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 4, stats.Records)
	assert.Equal(t, 2, stats.UniqueAffiliations)

	// Unique affiliations are sorted and deduplicated.
	affData, err := os.ReadFile(filepath.Join(outputDir, AffiliationsFile))
	require.NoError(t, err)
	var affiliations []string
	require.NoError(t, json.Unmarshal(affData, &affiliations))
	assert.Equal(t, []string{"CERN", "University of Oxford"}, affiliations)

	// Every relationship record carries a fingerprint matching its string.
	f, err := os.Open(filepath.Join(outputDir, RelationshipsFile))
	require.NoError(t, err)
	defer f.Close()
	var count int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec record.AuthorAffiliationRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		assert.Equal(t, record.Fingerprint(rec.Affiliation), rec.AffiliationHash)
		count++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 4, count)
}

func TestRun_EmptyInputDirectory(t *testing.T) {
	stats, err := Run(context.Background(), nil, Options{
		InputDir:  t.TempDir(),
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
}
