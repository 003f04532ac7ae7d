package snapshot

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/obsidianstack/aggregator/pkg/reading"
)

// ErrCorrupt is returned by Load when the file exists but cannot be parsed.
var ErrCorrupt = errors.New("snapshot: corrupt data file")

// Source supplies the readings to persist.
type Source interface {
	Snapshot() []reading.Reading
}

// File is a durable snapshot location. It is safe for concurrent use.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile returns a File that persists to path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the data file location.
func (f *File) Path() string {
	return f.path
}

// Save replaces the file contents with readings.
func (f *File) Save(readings []reading.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(readings)
}

// SaveFrom snapshots src while holding the write lock and persists the
// result.
func (f *File) SaveFrom(src Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(src.Snapshot())
}

func (f *File) write(readings []reading.Reading) error {
	data := reading.MarshalArray(readings)

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) } //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: write %q: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("snapshot: sync %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: close %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("snapshot: rename to %q: %w", f.path, err)
	}
	return nil
}

// Load reads the persisted readings. A missing or empty file yields no
// readings and no error.
func (f *File) Load() ([]reading.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: read %q: %w", f.path, err)
	}

	all, err := reading.UnmarshalArray(data)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrCorrupt, f.path, err)
	}

	out := all[:0]
	for i, r := range all {
		if err := reading.Validate(r); err != nil {
			slog.Warn("snapshot: skipping stored reading without identity", "path", f.path, "index", i)
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
