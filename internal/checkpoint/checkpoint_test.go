package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpoint_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.checkpoint")

	cp := New(path)
	cp.MarkProcessed("abc123")
	cp.MarkProcessed("def456")
	cp.MarkProcessed("ghi789")
	require.NoError(t, cp.Save())

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, loaded.Len())
	assert.True(t, loaded.IsProcessed("abc123"))
	assert.True(t, loaded.IsProcessed("def456"))
	assert.True(t, loaded.IsProcessed("ghi789"))
	assert.False(t, loaded.IsProcessed("never-marked"))
}

func TestCheckpoint_LoadMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.checkpoint")

	cp, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cp.Len())
	assert.False(t, cp.IsProcessed("anything"))
}

func TestCheckpoint_LoadSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.checkpoint")
	require.NoError(t, os.WriteFile(path, []byte("abc123\n\ndef456\n\n"), 0o644))

	cp, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cp.Len())
	assert.True(t, cp.IsProcessed("abc123"))
	assert.True(t, cp.IsProcessed("def456"))
}

func TestCheckpoint_MarkProcessedIdempotent(t *testing.T) {
	cp := New(filepath.Join(t.TempDir(), "idem.checkpoint"))

	cp.MarkProcessed("abc123")
	cp.MarkProcessed("abc123")
	cp.MarkProcessed("abc123")

	assert.Equal(t, 1, cp.Len())
}

func TestCheckpoint_SaveOverwritesPriorContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewrite.checkpoint")

	first := New(path)
	first.MarkProcessed("stale1")
	first.MarkProcessed("stale2")
	require.NoError(t, first.Save())

	second := New(path)
	second.MarkProcessed("fresh")
	require.NoError(t, second.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.True(t, loaded.IsProcessed("fresh"))
	assert.False(t, loaded.IsProcessed("stale1"))
}

func TestCheckpoint_ConcurrentMark(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.checkpoint")
	cp := New(path)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cp.MarkProcessed(fmt.Sprintf("%02d-%03d", n, j))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 800, cp.Len())
	require.NoError(t, cp.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 800, loaded.Len())
}
