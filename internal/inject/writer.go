package inject

import (
	"context"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"
)

// Writer is a dry-run actuator. It prints what would be done without the
// text itself.
type Writer struct {
	W io.Writer
}

// Apply writes a one-line summary of the replacement.
func (w *Writer) Apply(ctx context.Context, e Edit) error {
	_, err := fmt.Fprintf(w.W, "keep %d, delete %d, insert [REDACTED %d chars]\n", e.Keep, e.Delete, utf8.RuneCount(e.Text))
	return err
}

// Applied is one replacement seen by a Recorder.
type Applied struct {
	Keep   int
	Delete int
	Text   string
}

// Recorder keeps a copy of every replacement. It is meant for tests and
// replays; the copies are not wiped.
type Recorder struct {
	mu      sync.Mutex
	applied []Applied
	Err     error
}

// Apply records the replacement and returns r.Err.
func (r *Recorder) Apply(ctx context.Context, e Edit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.applied = append(r.applied, Applied{Keep: e.Keep, Delete: e.Delete, Text: string(e.Text)})
	return nil
}

// Applied returns the recorded replacements.
func (r *Recorder) Applied() []Applied {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Applied(nil), r.applied...)
}
