package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/obsidianstack/aggregator/pkg/reading"
)

// ErrNoIdentity is returned when the data file has no usable id line.
var ErrNoIdentity = errors.New("source: data file has no id")

// ParseFile reads and parses the data file at path.
func ParseFile(path string) (reading.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %q: %w", path, err)
	}
	defer f.Close()

	r, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return r, nil
}

// Parse reads `key: value` lines from rd.
func Parse(rd io.Reader) (reading.Reading, error) {
	var r reading.Reading
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		r.Set(key, strings.TrimSpace(value))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("source: read: %w", err)
	}
	if r.ID() == "" {
		return nil, ErrNoIdentity
	}
	return r, nil
}
