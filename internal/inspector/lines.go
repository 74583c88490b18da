// File: internal/inspector/lines.go
package inspector

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
)

// maxRequestSize bounds a single request. Requests carry selectors and
// arguments, never page payloads.
const maxRequestSize = 1 << 20

// ServeLines answers newline-delimited requests from in on out, one response
// line per request, until in is exhausted, ctx is done or the session is lost.
// Blank lines are ignored. A read blocked on in does not delay cancellation.
func ServeLines(ctx context.Context, d *Dispatcher, in io.Reader, out io.Writer) error {
	lines := make(chan []byte)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go scanLines(in, lines, readErr, done)

	w := bufio.NewWriter(out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("reading requests: %w", err)
			}
			return nil

		case line := <-lines:
			if err := ctx.Err(); err != nil {
				return err
			}
			resp, lost := d.Do(ctx, line)
			if err := writeLine(w, resp); err != nil {
				return fmt.Errorf("writing response: %w", err)
			}
			if lost != nil {
				return fmt.Errorf("browser session lost: %w", lost)
			}
		}
	}
}

// scanLines sends every non-blank line of in, then its read error (nil at EOF).
// It stops early once done is closed; a Read already in progress finishes when
// in delivers data or is closed.
func scanLines(in io.Reader, lines chan<- []byte, readErr chan<- error, done <-chan struct{}) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		select {
		case lines <- bytes.Clone(line):
		case <-done:
			return
		}
	}
	readErr <- scanner.Err()
}

func writeLine(w *bufio.Writer, b []byte) error {
	if _, err := w.Write(b); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}
