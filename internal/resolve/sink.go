package resolve

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// sink is an append-only JSONL output stream shared by all resolution units.
// The mutex ensures one complete record per line; outputs from concurrent
// units may interleave in any order but never mid-record.
type sink struct {
	mu  sync.Mutex
	f   *os.File
	w   *bufio.Writer
	enc *json.Encoder
}

// openSink opens path for appending when resuming, truncating otherwise.
func openSink(path string, resume bool) (*sink, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if resume {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open sink %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	return &sink{f: f, w: w, enc: json.NewEncoder(w)}, nil
}

// write appends one record as a single JSON line.
func (s *sink) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(v)
}

// close flushes buffered records and closes the file.
func (s *sink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
