package present

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/obsidianstack/aggregator/pkg/reading"
	"github.com/obsidianstack/aggregator/pkg/wire"
)

// Response writes the status line, then either one block of `key: value`
// lines per reading (blocks separated by a blank line) when the body is a
// JSON array, or the body itself.
func Response(w io.Writer, resp *wire.Response) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, resp.StatusLine())

	body := bytes.TrimSpace(resp.Body)
	if len(body) > 0 {
		if body[0] == '[' {
			rs, err := reading.UnmarshalArray(body)
			if err != nil {
				return fmt.Errorf("present: %w", err)
			}
			Readings(bw, rs)
		} else {
			fmt.Fprintln(bw, string(body))
		}
	}
	return bw.Flush()
}

// Readings writes each reading as `key: value` lines followed by a blank line.
func Readings(w io.Writer, rs []reading.Reading) {
	for _, r := range rs {
		for _, a := range r {
			fmt.Fprintf(w, "%s: %s\n", a.Key, a.Value)
		}
		fmt.Fprintln(w)
	}
}

// Stream writes a header for one streamed snapshot followed by its readings.
func Stream(w io.Writer, clock uint64, generatedAt string, rs []reading.Reading) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "--- %s clock=%d readings=%d\n", generatedAt, clock, len(rs))
	Readings(bw, rs)
	return bw.Flush()
}
