package kemper

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies how one parameter is addressed on the wire. The set of
// implementations is closed: NRPNKey, CCKey and PCKey.
type Key interface {
	// ID is a stable identity used for registry lookup
	ID() string
	DisplayName() string
	// Decode reconstructs a value from the payload bytes that follow the
	// address or control byte(s) of a matched message.
	Decode(payload []byte, t ValueType) (Value, error)
	// Encode is the exact inverse of Decode.
	Encode(v Value) ([]byte, error)

	isKey()
}

const (
	maxDataByte  = 0x7F
	maxNRPNValue = 1<<14 - 1
	textEnd      = 0x00
)

// NRPNKey addresses a parameter inside the vendor SysEx envelope
type NRPNKey struct {
	Address [2]byte // coarse, fine
}

// CCKey addresses a parameter by continuous controller number
type CCKey struct {
	Control uint8
}

// PCKey matches any program change message
type PCKey struct{}

// NRPN returns an NRPN key for the given address pair
func NRPN(coarse, fine byte) NRPNKey {
	return NRPNKey{Address: [2]byte{coarse, fine}}
}

// CC returns a controller key
func CC(control uint8) CCKey {
	return CCKey{Control: control}
}

func (k NRPNKey) ID() string {
	return fmt.Sprintf("nrpn:%d:%d", k.Address[0], k.Address[1])
}

func (k NRPNKey) DisplayName() string {
	return fmt.Sprintf("NRPN %d/%d", k.Address[0], k.Address[1])
}

func (k NRPNKey) Decode(payload []byte, t ValueType) (Value, error) {
	switch t {
	case Numeric:
		if len(payload) != 2 {
			return Value{}, fmt.Errorf("%w: %s numeric payload has %d bytes, want 2", ErrInvalidEncoding, k.DisplayName(), len(payload))
		}
		if payload[0] > maxDataByte || payload[1] > maxDataByte {
			return Value{}, fmt.Errorf("%w: %s payload byte out of range", ErrInvalidEncoding, k.DisplayName())
		}
		return NumericValue(int(payload[0])<<7 | int(payload[1])), nil

	case Text:
		var sb strings.Builder
		for _, b := range payload {
			if b == textEnd {
				break
			}
			if b < 0x20 || b > 0x7E {
				return Value{}, fmt.Errorf("%w: %s non-printable byte 0x%02X", ErrInvalidEncoding, k.DisplayName(), b)
			}
			sb.WriteByte(b)
		}
		return TextValue(sb.String()), nil
	}
	return Value{}, fmt.Errorf("%w: %s cannot carry %s values", ErrInvalidEncoding, k.DisplayName(), t)
}

func (k NRPNKey) Encode(v Value) ([]byte, error) {
	switch v.Type() {
	case Numeric:
		n := v.Int()
		if n < 0 || n > maxNRPNValue {
			return nil, fmt.Errorf("%w: %s value %d out of range", ErrInvalidEncoding, k.DisplayName(), n)
		}
		return []byte{byte(n >> 7), byte(n & maxDataByte)}, nil

	case Text:
		s := v.Text()
		out := make([]byte, 0, len(s)+1)
		for i := 0; i < len(s); i++ {
			if s[i] < 0x20 || s[i] > 0x7E {
				return nil, fmt.Errorf("%w: %s non-printable character at %d", ErrInvalidEncoding, k.DisplayName(), i)
			}
			out = append(out, s[i])
		}
		return append(out, textEnd), nil
	}
	return nil, fmt.Errorf("%w: %s cannot carry %s values", ErrInvalidEncoding, k.DisplayName(), v.Type())
}

func (k CCKey) ID() string {
	return "cc:" + strconv.Itoa(int(k.Control))
}

func (k CCKey) DisplayName() string {
	return "CC " + strconv.Itoa(int(k.Control))
}

func (k CCKey) Decode(payload []byte, t ValueType) (Value, error) {
	return decodeDataByte(k.DisplayName(), payload, t)
}

func (k CCKey) Encode(v Value) ([]byte, error) {
	return encodeDataByte(k.DisplayName(), v)
}

func (PCKey) ID() string {
	return "pc"
}

func (PCKey) DisplayName() string {
	return "PC"
}

func (k PCKey) Decode(payload []byte, t ValueType) (Value, error) {
	return decodeDataByte(k.DisplayName(), payload, t)
}

func (k PCKey) Encode(v Value) ([]byte, error) {
	return encodeDataByte(k.DisplayName(), v)
}

func (NRPNKey) isKey() {}
func (CCKey) isKey()   {}
func (PCKey) isKey()   {}

func decodeDataByte(name string, payload []byte, t ValueType) (Value, error) {
	if t != Numeric {
		return Value{}, fmt.Errorf("%w: %s cannot carry %s values", ErrInvalidEncoding, name, t)
	}
	if len(payload) != 1 {
		return Value{}, fmt.Errorf("%w: %s payload has %d bytes, want 1", ErrInvalidEncoding, name, len(payload))
	}
	if payload[0] > maxDataByte {
		return Value{}, fmt.Errorf("%w: %s data byte 0x%02X out of range", ErrInvalidEncoding, name, payload[0])
	}
	return NumericValue(int(payload[0])), nil
}

func encodeDataByte(name string, v Value) ([]byte, error) {
	if v.Type() != Numeric {
		return nil, fmt.Errorf("%w: %s cannot carry %s values", ErrInvalidEncoding, name, v.Type())
	}
	if v.Int() < 0 || v.Int() > maxDataByte {
		return nil, fmt.Errorf("%w: %s value %d out of range", ErrInvalidEncoding, name, v.Int())
	}
	return []byte{byte(v.Int())}, nil
}

// ParseKey parses a key identity as returned by Key.ID
// ("nrpn:0:1", "cc:47", "pc").
func ParseKey(id string) (Key, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(id)), ":")
	switch parts[0] {
	case "nrpn":
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKeyType, id)
		}
		hi, err := parseDataByte(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidKeyType, id, err)
		}
		lo, err := parseDataByte(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidKeyType, id, err)
		}
		return NRPN(hi, lo), nil
	case "cc":
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKeyType, id)
		}
		c, err := parseDataByte(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidKeyType, id, err)
		}
		return CC(c), nil
	case "pc":
		if len(parts) != 1 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidKeyType, id)
		}
		return PCKey{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidKeyType, id)
}

func parseDataByte(s string) (byte, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	if n > maxDataByte {
		return 0, fmt.Errorf("%d exceeds 127", n)
	}
	return byte(n), nil
}
