package trace

import (
	"fmt"
	"time"

	"github.com/james-see/virtualkemper/pkg/kemper"
)

// DefaultPoll is the host loop interval simulated during replay
const DefaultPoll = 20 * time.Millisecond

// Result is the outcome of one replayed inbound message
type Result struct {
	Entry   Entry
	Event   kemper.Event
	Matched bool
}

// Drive advances clock to until in poll sized steps and updates the device
// after every step, as a host loop would
func Drive(d *kemper.Device, clock *kemper.ManualClock, until time.Time, poll time.Duration) {
	if poll <= 0 {
		poll = DefaultPoll
	}
	for clock.Now().Before(until) {
		next := clock.Now().Add(poll)
		if next.After(until) {
			next = until
		}
		clock.Set(next)
		d.Update()
	}
}

// Replay feeds the inbound entries to d at their recorded times. The device
// must have been created with clock.
func Replay(d *kemper.Device, clock *kemper.ManualClock, entries []Entry, poll time.Duration) ([]Result, error) {
	start := clock.Now()

	var results []Result
	for i, e := range entries {
		if e.Direction == Out {
			continue
		}
		Drive(d, clock, start.Add(e.At), poll)

		ev, ok, err := d.Parse(e.Data)
		if err != nil {
			return results, fmt.Errorf("entry %d (%s): %w", i, FormatHex(e.Data), err)
		}
		results = append(results, Result{Entry: e, Event: ev, Matched: ok})
	}
	return results, nil
}
