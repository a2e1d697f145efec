// Package checkpoint tracks which affiliation fingerprints have already
// reached a terminal outcome, so an interrupted resolution run can resume
// without re-querying the registry for work it has already finished.
//
// The on-disk format is deliberately trivial: one fingerprint per line,
// rewritten in full on Save. It is human-inspectable with standard tools.
package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// Checkpoint is a durable set of processed fingerprints. It is safe for
// concurrent use; every resolution unit marks its fingerprint through the
// same instance.
type Checkpoint struct {
	mu        sync.Mutex
	path      string
	processed map[string]struct{}
}

// New returns an empty checkpoint that will persist to path.
func New(path string) *Checkpoint {
	return &Checkpoint{
		path:      path,
		processed: make(map[string]struct{}),
	}
}

// Load reads a checkpoint from path. A missing file is not an error: resume
// on a fresh output directory behaves exactly like a first run. Blank lines
// are skipped.
func Load(path string) (*Checkpoint, error) {
	cp := New(path)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cp, nil
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		cp.processed[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	return cp, nil
}

// IsProcessed reports whether hash already reached a terminal outcome.
func (c *Checkpoint) IsProcessed(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processed[hash]
	return ok
}

// MarkProcessed records a terminal outcome for hash. Idempotent. Callers
// must only invoke this after the corresponding match or failure record has
// been written to its sink.
func (c *Checkpoint) MarkProcessed(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed[hash] = struct{}{}
}

// Len returns the number of processed fingerprints.
func (c *Checkpoint) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.processed)
}

// Save rewrites the checkpoint file with the full current set, one
// fingerprint per line. It must run after all in-flight work has finished
// writing to the sinks.
func (c *Checkpoint) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}

	w := bufio.NewWriter(f)
	for hash := range c.processed {
		if _, err := fmt.Fprintln(w, hash); err != nil {
			f.Close()
			return fmt.Errorf("write checkpoint: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	return nil
}
