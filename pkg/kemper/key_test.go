package kemper

import (
	"bytes"
	"errors"
	"testing"
)

func TestKeyRoundTripNumeric(t *testing.T) {
	keys := []Key{NRPN(0, 11), CC(47), PCKey{}}

	for _, key := range keys {
		t.Run(key.ID(), func(t *testing.T) {
			for n := 0; n <= 127; n++ {
				raw, err := key.Encode(NumericValue(n))
				if err != nil {
					t.Fatalf("Encode(%d) error = %v", n, err)
				}
				got, err := key.Decode(raw, Numeric)
				if err != nil {
					t.Fatalf("Decode(%v) error = %v", raw, err)
				}
				if !got.Equal(NumericValue(n)) {
					t.Errorf("Decode(Encode(%d)) = %v", n, got)
				}
			}
		})
	}
}

func TestNRPNKeyFullNumericRange(t *testing.T) {
	key := NRPN(4, 1)
	for _, n := range []int{0, 1, 127, 128, 8192, 16383} {
		raw, err := key.Encode(NumericValue(n))
		if err != nil {
			t.Fatalf("Encode(%d) error = %v", n, err)
		}
		if len(raw) != 2 || raw[0] > 127 || raw[1] > 127 {
			t.Errorf("Encode(%d) = %v, want two 7-bit bytes", n, raw)
		}
		got, err := key.Decode(raw, Numeric)
		if err != nil || got.Int() != n {
			t.Errorf("Decode(Encode(%d)) = %v, %v", n, got, err)
		}
	}
}

func TestNRPNKeyTextRoundTrip(t *testing.T) {
	key := NRPN(0, 1)

	var printable []byte
	for b := byte(0x20); b <= 0x7E; b++ {
		printable = append(printable, b)
	}

	tests := []string{"", "Clean Rig", string(printable)}
	for _, s := range tests {
		raw, err := key.Encode(TextValue(s))
		if err != nil {
			t.Fatalf("Encode(%q) error = %v", s, err)
		}
		if raw[len(raw)-1] != 0x00 {
			t.Errorf("Encode(%q) is not terminated: %v", s, raw)
		}
		got, err := key.Decode(raw, Text)
		if err != nil {
			t.Fatalf("Decode error = %v", err)
		}
		if got.Text() != s {
			t.Errorf("Decode(Encode(%q)) = %q", s, got.Text())
		}
	}
}

func TestNRPNKeyTextWithoutTerminator(t *testing.T) {
	got, err := NRPN(0, 1).Decode([]byte("Lead"), Text)
	if err != nil {
		t.Fatalf("Decode error = %v", err)
	}
	if got.Text() != "Lead" {
		t.Errorf("Decode() = %q, want %q", got.Text(), "Lead")
	}
}

func TestKeyInvalidEncoding(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		payload []byte
		typ     ValueType
	}{
		{"nrpn numeric short", NRPN(0, 11), []byte{1}, Numeric},
		{"nrpn numeric long", NRPN(0, 11), []byte{1, 2, 3}, Numeric},
		{"nrpn numeric high byte", NRPN(0, 11), []byte{0x80, 0}, Numeric},
		{"nrpn text control char", NRPN(0, 1), []byte{'a', 0x07, 0}, Text},
		{"nrpn text high byte", NRPN(0, 1), []byte{'a', 0xC3, 0}, Text},
		{"cc empty", CC(47), nil, Numeric},
		{"cc out of range", CC(47), []byte{0x80}, Numeric},
		{"cc text", CC(47), []byte{1}, Text},
		{"pc empty", PCKey{}, []byte{}, Numeric},
		{"pc text", PCKey{}, []byte{3}, Text},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.key.Decode(tt.payload, tt.typ)
			if !errors.Is(err, ErrInvalidEncoding) {
				t.Errorf("Decode() error = %v, want ErrInvalidEncoding", err)
			}
		})
	}
}

func TestKeyEncodeOutOfRange(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		v    Value
	}{
		{"nrpn negative", NRPN(0, 11), NumericValue(-1)},
		{"nrpn too big", NRPN(0, 11), NumericValue(16384)},
		{"nrpn text non printable", NRPN(0, 1), TextValue("a\nb")},
		{"cc too big", CC(1), NumericValue(128)},
		{"cc text", CC(1), TextValue("x")},
		{"pc too big", PCKey{}, NumericValue(200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.key.Encode(tt.v); !errors.Is(err, ErrInvalidEncoding) {
				t.Errorf("Encode() error = %v, want ErrInvalidEncoding", err)
			}
		})
	}
}

func TestKeyIdentity(t *testing.T) {
	tests := []struct {
		key     Key
		id      string
		display string
	}{
		{NRPN(127, 126), "nrpn:127:126", "NRPN 127/126"},
		{CC(47), "cc:47", "CC 47"},
		{PCKey{}, "pc", "PC"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if tt.key.ID() != tt.id {
				t.Errorf("ID() = %q, want %q", tt.key.ID(), tt.id)
			}
			if tt.key.DisplayName() != tt.display {
				t.Errorf("DisplayName() = %q, want %q", tt.key.DisplayName(), tt.display)
			}
			parsed, err := ParseKey(tt.id)
			if err != nil {
				t.Fatalf("ParseKey(%q) error = %v", tt.id, err)
			}
			if parsed.ID() != tt.id {
				t.Errorf("ParseKey(%q).ID() = %q", tt.id, parsed.ID())
			}
		})
	}
}

func TestParseKeyInvalid(t *testing.T) {
	for _, id := range []string{"", "nrpn:1", "nrpn:1:200", "cc", "cc:x", "cc:128", "pc:1", "sysex:1"} {
		if _, err := ParseKey(id); !errors.Is(err, ErrInvalidKeyType) {
			t.Errorf("ParseKey(%q) error = %v, want ErrInvalidKeyType", id, err)
		}
	}
}

func TestNRPNKeyEncodeLayout(t *testing.T) {
	raw, err := NRPN(0, 11).Encode(NumericValue(300))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(raw, []byte{0x02, 0x2C}) {
		t.Errorf("Encode(300) = % X, want 02 2C", raw)
	}
}
