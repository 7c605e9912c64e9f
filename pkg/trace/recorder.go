package trace

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/james-see/virtualkemper/pkg/kemper"
)

// Recorder is a kemper.MessageSink that timestamps all traffic
type Recorder struct {
	clock kemper.Clock
	start time.Time

	mu      sync.Mutex
	entries []Entry
}

// NewRecorder creates a recorder; times are relative to the clock's
// current time. A nil clock uses the system clock.
func NewRecorder(clock kemper.Clock) *Recorder {
	if clock == nil {
		clock = kemper.SystemClock{}
	}
	return &Recorder{clock: clock, start: clock.Now()}
}

func (r *Recorder) QueueMessage(msg []byte, label string) {
	r.record(Out, msg, label)
}

func (r *Recorder) MessageReceived(msg []byte, label string) {
	r.record(In, msg, label)
}

func (r *Recorder) record(dir Direction, msg []byte, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{
		At:        r.clock.Now().Sub(r.start),
		Direction: dir,
		Label:     label,
		Data:      append([]byte(nil), msg...),
	})
}

// Entries returns the recorded entries of the given directions (all when
// none are given)
func (r *Recorder) Entries(dirs ...Direction) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, e := range r.entries {
		if len(dirs) == 0 || hasDirection(dirs, e.Direction) {
			out = append(out, e)
		}
	}
	return out
}

func hasDirection(dirs []Direction, d Direction) bool {
	for _, x := range dirs {
		if x == d {
			return true
		}
	}
	return false
}

// WriteFile writes the recorded entries of the given directions to
// filename; the format follows the extension
func (r *Recorder) WriteFile(filename string, dirs ...Direction) error {
	entries := r.Entries(dirs...)

	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filename, err)
	}
	defer f.Close()

	switch DetectFormat(filename) {
	case FormatMIDI:
		err = WriteSMF(f, entries)
	case FormatSyx:
		err = WriteSyx(f, entries)
	default:
		err = fmt.Errorf("cannot determine output format from filename %s", filename)
	}
	if err != nil {
		return err
	}
	return f.Close()
}
