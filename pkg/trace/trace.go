// Package trace reads, writes and replays recorded MIDI traffic: raw .syx
// byte streams, Standard MIDI Files and hex dumps
package trace

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrShortMessage = errors.New("trace: truncated message")
	ErrInvalidSysEx = errors.New("trace: invalid sysex")
	ErrInvalidHex   = errors.New("trace: invalid hex")
)

// Format represents a traffic file format
type Format string

const (
	FormatMIDI    Format = "midi"
	FormatSyx     Format = "syx"
	FormatUnknown Format = "unknown"
)

// Direction of a recorded message, seen from the virtual device
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// Entry is one timed MIDI message
type Entry struct {
	At        time.Duration `json:"at"`
	Direction Direction     `json:"direction,omitempty"`
	Label     string        `json:"label,omitempty"`
	Data      []byte        `json:"data"`
}

// DetectFormat detects the format of a file based on extension
func DetectFormat(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mid", ".midi":
		return FormatMIDI
	case ".syx":
		return FormatSyx
	default:
		return FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) Format {
	if len(data) >= 4 && string(data[:4]) == "MThd" {
		return FormatMIDI
	}
	if len(data) > 0 && data[0] >= 0x80 {
		return FormatSyx
	}
	return FormatUnknown
}

// ReadFile reads a .syx or .mid file into entries. Messages of a .syx
// stream carry no timing and are spaced by gap.
func ReadFile(filename string, gap time.Duration) ([]Entry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace file: %w", err)
	}

	format := DetectFormat(filename)
	if format == FormatUnknown {
		format = DetectFormatFromContent(data)
	}

	switch format {
	case FormatMIDI:
		return ParseSMF(data)
	case FormatSyx:
		msgs, err := SplitSysEx(data)
		if err != nil {
			return nil, err
		}
		return Space(msgs, gap), nil
	default:
		return nil, fmt.Errorf("cannot determine format of %s", filename)
	}
}

// Space turns untimed messages into inbound entries gap apart
func Space(msgs [][]byte, gap time.Duration) []Entry {
	entries := make([]Entry, 0, len(msgs))
	for i, m := range msgs {
		entries = append(entries, Entry{At: time.Duration(i) * gap, Direction: In, Data: m})
	}
	return entries
}

// ParseHex parses a hex dump like "F0 00 20 33", "f0,00,20" or "0xF0 0x00".
// Separators are optional.
func ParseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer("0x", "", "0X", "", ",", " ", ":", " ", "-", " ").Replace(s)

	var b strings.Builder
	for _, field := range strings.Fields(clean) {
		if len(field)%2 == 1 {
			field = "0" + field
		}
		b.WriteString(field)
	}

	out, err := hex.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidHex)
	}
	return out, nil
}

// FormatHex formats msg as space separated upper case hex
func FormatHex(msg []byte) string {
	return fmt.Sprintf("% X", msg)
}
