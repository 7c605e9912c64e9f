package trace

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	defaultResolution = 480
	defaultTempo      = 500000 // microseconds per quarter note (120 BPM)
)

// ParseSMF parses a Standard MIDI File into entries ordered by time. All
// tracks are merged; tempo changes are honoured.
func ParseSMF(data []byte) ([]Entry, error) {
	return ReadSMF(bytes.NewReader(data))
}

// ReadSMF reads a Standard MIDI File from r
func ReadSMF(r io.Reader) ([]Entry, error) {
	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	resolution := uint64(defaultResolution)
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok && mt.Resolution() > 0 {
		resolution = uint64(mt.Resolution())
	}

	type timed struct {
		tick uint64
		msg  []byte
	}

	var events []timed
	for _, track := range s.Tracks {
		var tick uint64
		for _, ev := range track {
			tick += uint64(ev.Delta)
			events = append(events, timed{tick: tick, msg: []byte(ev.Message)})
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].tick < events[j].tick })

	var (
		entries  []Entry
		tempo    = uint64(defaultTempo)
		lastTick uint64
		elapsed  time.Duration
	)
	for _, ev := range events {
		elapsed += ticksToDuration(ev.tick-lastTick, tempo, resolution)
		lastTick = ev.tick

		msg := ev.msg
		if len(msg) == 0 {
			continue
		}

		// Tempo meta message (FF 51 03 tt tt tt)
		if msg[0] == 0xFF {
			if len(msg) >= 6 && msg[1] == 0x51 && msg[2] == 0x03 {
				if t := uint64(msg[3])<<16 | uint64(msg[4])<<8 | uint64(msg[5]); t > 0 {
					tempo = t
				}
			}
			continue
		}

		if msg[0] == sysExStart && msg[len(msg)-1] != sysExEnd {
			msg = append(append([]byte(nil), msg...), sysExEnd)
		}
		entries = append(entries, Entry{At: elapsed, Direction: In, Data: append([]byte(nil), msg...)})
	}

	return entries, nil
}

func ticksToDuration(ticks, tempo, resolution uint64) time.Duration {
	return time.Duration(ticks*tempo/resolution) * time.Microsecond
}

func durationToTicks(d time.Duration) uint32 {
	return uint32(uint64(d.Microseconds()) * defaultResolution / defaultTempo)
}

// WriteSMF writes the entries as a single track Standard MIDI File at
// 120 BPM
func WriteSMF(w io.Writer, entries []Entry) error {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(defaultResolution)

	var track smf.Track
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte((defaultTempo >> 16) & 0xFF),
		byte((defaultTempo >> 8) & 0xFF),
		byte(defaultTempo & 0xFF),
	}))

	var last uint32
	for _, e := range entries {
		if len(e.Data) == 0 {
			continue
		}
		tick := durationToTicks(e.At)
		if tick < last {
			tick = last
		}
		track.Add(tick-last, smf.Message(e.Data))
		last = tick
	}
	track.Close(0)

	if err := s.Add(track); err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}
	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write MIDI: %w", err)
	}
	return nil
}
