package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// FileSink appends entries to a JSON-lines file.
type FileSink struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewFileSink writes to path on fs, creating parent directories as needed.
func NewFileSink(fs afero.Fs, path string) (*FileSink, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("journal: create %s: %w", dir, err)
		}
	}
	return &FileSink{fs: fs, path: path}, nil
}

func (s *FileSink) Write(_ context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: encode entry: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.fs.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open %s: %w", s.path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("journal: append %s: %w", s.path, err)
	}
	return f.Close()
}

// Recent reads the file back. Lines that do not decode are skipped.
func (s *FileSink) Recent(_ context.Context, n int) ([]Entry, error) {
	s.mu.Lock()
	data, err := afero.ReadFile(s.fs, s.path)
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("journal: read %s: %w", s.path, err)
	}

	var all []Entry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		var e Entry
		if json.Unmarshal(sc.Bytes(), &e) != nil {
			continue
		}
		all = append(all, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: scan %s: %w", s.path, err)
	}

	out := make([]Entry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
		if n > 0 && len(out) == n {
			break
		}
	}
	return out, nil
}

func (s *FileSink) Close() error { return nil }
