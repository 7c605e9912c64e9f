package trace

import (
	"bytes"
	"fmt"
	"io"
)

const (
	sysExStart = 0xF0
	sysExEnd   = 0xF7
)

// ValidateSysEx validates a single SysEx message
func ValidateSysEx(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("%w: %d bytes", ErrShortMessage, len(data))
	}

	if data[0] != sysExStart {
		return fmt.Errorf("%w: expected start byte 0x%02X, got 0x%02X", ErrInvalidSysEx, sysExStart, data[0])
	}

	if data[len(data)-1] != sysExEnd {
		return fmt.Errorf("%w: expected end byte 0x%02X, got 0x%02X", ErrInvalidSysEx, sysExEnd, data[len(data)-1])
	}

	// Check all data bytes are 7-bit (valid MIDI data)
	for i := 1; i < len(data)-1; i++ {
		if data[i] > 127 {
			return fmt.Errorf("%w: byte at position %d is > 127 (0x%02X)", ErrInvalidSysEx, i, data[i])
		}
	}

	return nil
}

// channelLen returns the length of a channel voice message with the given
// status byte
func channelLen(status byte) int {
	switch status & 0xF0 {
	case 0xC0, 0xD0:
		return 2
	default:
		return 3
	}
}

func dataBytes(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return false
		}
	}
	return true
}

// SplitSysEx splits a raw MIDI byte stream into messages: SysEx frames and
// channel voice messages, with running status. Realtime bytes are dropped.
func SplitSysEx(data []byte) ([][]byte, error) {
	var (
		msgs    [][]byte
		running byte
	)

	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b == sysExStart:
			end := bytes.IndexByte(data[i:], sysExEnd)
			if end < 0 {
				return msgs, fmt.Errorf("%w: unterminated sysex at offset %d", ErrShortMessage, i)
			}
			msg := data[i : i+end+1]
			if err := ValidateSysEx(msg); err != nil {
				return msgs, fmt.Errorf("offset %d: %w", i, err)
			}
			msgs = append(msgs, append([]byte(nil), msg...))
			running = 0
			i += end + 1

		case b >= 0xF8:
			i++

		case b >= 0x80 && b < sysExStart:
			n := channelLen(b)
			if i+n > len(data) || !dataBytes(data[i+1:i+n]) {
				return msgs, fmt.Errorf("%w: status 0x%02X at offset %d", ErrShortMessage, b, i)
			}
			msgs = append(msgs, append([]byte(nil), data[i:i+n]...))
			running = b
			i += n

		case b < 0x80 && running != 0:
			n := channelLen(running) - 1
			if i+n > len(data) || !dataBytes(data[i:i+n]) {
				return msgs, fmt.Errorf("%w: running status at offset %d", ErrShortMessage, i)
			}
			msg := append([]byte{running}, data[i:i+n]...)
			msgs = append(msgs, msg)
			i += n

		default:
			return msgs, fmt.Errorf("%w: unexpected byte 0x%02X at offset %d", ErrInvalidSysEx, b, i)
		}
	}

	return msgs, nil
}

// WriteSyx writes the messages as a raw byte stream
func WriteSyx(w io.Writer, entries []Entry) error {
	for _, e := range entries {
		if _, err := w.Write(e.Data); err != nil {
			return fmt.Errorf("failed to write syx: %w", err)
		}
	}
	return nil
}
