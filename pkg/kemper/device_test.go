package kemper

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// newTestDevice returns a device driven by a manual clock
func newTestDevice(t *testing.T, productType uint8, opts ...Option) (*Device, *ManualClock) {
	t.Helper()
	clock := NewManualClock(time.Unix(1700000000, 0))
	opts = append([]Option{WithClock(clock)}, opts...)
	return New(productType, opts...), clock
}

func mustAdd(t *testing.T, d *Device, opts ParameterOptions) *Parameter {
	t.Helper()
	p, err := d.AddParameter(opts)
	if err != nil {
		t.Fatalf("AddParameter(%q) error = %v", opts.Name, err)
	}
	return p
}

func TestDeviceDispatchFirstMatchWins(t *testing.T) {
	d, _ := newTestDevice(t, 0)

	first := mustAdd(t, d, ParameterOptions{Name: "First", Value: NumericValue(0), Receive: []Key{CC(20)}})
	second := mustAdd(t, d, ParameterOptions{Name: "Second", Value: NumericValue(0), Receive: []Key{CC(20)}})

	ev, ok, err := d.Parse([]byte{0xB0, 20, 99})
	if err != nil || !ok {
		t.Fatalf("Parse() = %v, %v, %v", ev, ok, err)
	}
	if first.Value().Int() != 99 {
		t.Errorf("first.Value() = %v, want 99", first.Value())
	}
	if second.Value().Int() != 0 {
		t.Errorf("second.Value() = %v, want 0", second.Value())
	}

	if p, _ := d.Parameter(CC(20)); p != first {
		t.Errorf("Parameter(CC 20) = %v, want the first registration", p.DisplayName())
	}
}

func TestDeviceParseUnrelatedTraffic(t *testing.T) {
	d, _ := newTestDevice(t, 0)
	mustAdd(t, d, ParameterOptions{Name: "Volume", Value: NumericValue(0), Receive: []Key{NRPN(4, 1)}})

	for _, msg := range [][]byte{
		nil,
		{0x90, 60, 100},
		{0xB0, 7, 100},
		{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7},
		{0xF0, 0x00, 0x20, 0x33, 0x02, 0x7F, 0x01, 0x00, 0x04, 0x01, 0x00, 0x01, 0xF7},
	} {
		if _, ok, err := d.Parse(msg); ok || err != nil {
			t.Errorf("Parse(% X) = %v, %v; want no match", msg, ok, err)
		}
	}
	if n := len(d.Outbox().Received()); n != 0 {
		t.Errorf("received stats = %d, want 0", n)
	}
}

func TestDeviceRecordsInboundStats(t *testing.T) {
	d, _ := newTestDevice(t, 0)
	mustAdd(t, d, ParameterOptions{Name: "Bank", Value: NumericValue(0), Receive: []Key{CC(47)}})

	msg := []byte{0xB0, 47, 3}
	if _, ok, _ := d.Parse(msg); !ok {
		t.Fatal("Parse() did not match")
	}
	got := d.Outbox().Received()
	if len(got) != 1 || !bytes.Equal(got[0].Data, msg) || got[0].Label != "Bank CC 47" {
		t.Errorf("Received() = %+v", got)
	}
}

func TestDeviceParameterUnknown(t *testing.T) {
	d, _ := newTestDevice(t, 0)
	if _, err := d.Parameter(CC(1)); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("Parameter() error = %v, want ErrUnknownParameter", err)
	}
}

func TestDeviceAddParameterNilKey(t *testing.T) {
	d, _ := newTestDevice(t, 0)
	_, err := d.AddParameter(ParameterOptions{Name: "Broken", Value: NumericValue(0), Receive: []Key{nil}})
	if !errors.Is(err, ErrInvalidKeyType) {
		t.Errorf("AddParameter() error = %v, want ErrInvalidKeyType", err)
	}
}

func TestDeviceDescribe(t *testing.T) {
	d, _ := newTestDevice(t, 0)
	vol := mustAdd(t, d, ParameterOptions{Name: "Volume", Value: NumericValue(5), Receive: []Key{NRPN(4, 1)}, Send: NRPN(4, 1)})

	tests := []struct {
		name string
		msg  []byte
		want string
	}{
		{"keep-alive", []byte{0xF0, 0x00, 0x20, 0x33, 0x00, 0x7F, 0x7E, 0x00, 0x7F, 0x03, 0xF7}, "Protocol KeepAlive"},
		{"handshake", []byte{0xF0, 0x00, 0x20, 0x33, 0x00, 0x7F, 0x7E, 0x00, 0x40, 0x01, 0x01, 0x05, 0xF7}, "Protocol Init"},
		{"request", []byte{0xF0, 0x00, 0x20, 0x33, 0x00, 0x7F, 0x41, 0x00, 0x04, 0x01, 0xF7}, "request Volume NRPN 4/1"},
		{"set", []byte{0xF0, 0x00, 0x20, 0x33, 0x00, 0x7F, 0x01, 0x00, 0x04, 0x01, 0x00, 0x09, 0xF7}, "Volume NRPN 4/1: 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := d.Describe(tt.msg)
			if !ok {
				t.Fatal("Describe() did not recognise the message")
			}
			if ev.String() != tt.want {
				t.Errorf("Describe() = %q, want %q", ev.String(), tt.want)
			}
		})
	}

	if vol.Value().Int() != 5 {
		t.Errorf("Describe changed the value to %v", vol.Value())
	}
	if d.State() != StateOffline {
		t.Errorf("Describe changed the state to %v", d.State())
	}
	if d.Outbox().Len() != 0 {
		t.Errorf("Describe queued %d messages", d.Outbox().Len())
	}
}

func TestDeviceDescribeChannelMessage(t *testing.T) {
	d, _ := newTestDevice(t, 0)

	if _, ok := d.Describe([]byte{0x90, 60, 100}); !ok {
		t.Error("Describe(note on) not recognised")
	}
	if _, ok := d.Describe([]byte{0x90, 60}); ok {
		t.Error("Describe(truncated note on) recognised")
	}
	if _, ok := d.Describe([]byte{0x01, 0x02}); ok {
		t.Error("Describe(data bytes) recognised")
	}
}

func TestDeviceFindSent(t *testing.T) {
	d, _ := newTestDevice(t, 0)
	mustAdd(t, d, ParameterOptions{Name: "Rig", Value: TextValue("Crunch"), Send: NRPN(0, 1)})
	mustAdd(t, d, ParameterOptions{Name: "Volume", Value: NumericValue(300), Send: NRPN(4, 1)})

	msg := []byte{0xF0, 0x00, 0x20, 0x33, 0x00, 0x00, 0x01, 0x00, 0x04, 0x01, 0x02, 0x2C, 0xF7}
	ev, p, ok := d.FindSent(msg)
	if !ok {
		t.Fatal("FindSent() no match")
	}
	if p.Name() != "Volume" || ev.Value.Int() != 300 {
		t.Errorf("FindSent() = %v, %s", ev, p.Name())
	}
}

type recordingSink struct {
	sent []string
}

func (r *recordingSink) QueueMessage(_ []byte, label string) { r.sent = append(r.sent, label) }
func (r *recordingSink) MessageReceived(_ []byte, _ string)  {}

func TestDeviceWithSink(t *testing.T) {
	rec := &recordingSink{}
	d, _ := newTestDevice(t, 0, WithSink(rec))
	p := mustAdd(t, d, ParameterOptions{Name: "Bank", Value: NumericValue(0), Send: CC(47)})

	if err := p.Send(); err != nil {
		t.Fatal(err)
	}
	if len(rec.sent) != 1 || d.Outbox().Len() != 1 {
		t.Errorf("sink got %v, outbox %d; want both to see the message", rec.sent, d.Outbox().Len())
	}
}
