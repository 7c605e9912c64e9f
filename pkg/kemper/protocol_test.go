package kemper

import (
	"bytes"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func handshake(pt, set, flags, lease byte) []byte {
	return sysex(pt, 0x7F, 0x7E, 0x00, 0x40, set, flags, lease)
}

func TestProtocolHandshake(t *testing.T) {
	d, _ := newTestDevice(t, 0)

	if d.State() != StateOffline {
		t.Fatalf("initial state = %v", d.State())
	}
	if _, ok := d.ActiveParameterSet(); ok {
		t.Fatal("active set reported while offline")
	}

	ev, ok, err := d.Parse(handshake(0, 3, FlagSysEx|FlagTuneMode, 5))
	if err != nil || !ok {
		t.Fatalf("Parse() = %v, %v", ok, err)
	}
	if ev.Name != "Protocol Init" {
		t.Errorf("event = %q", ev.Name)
	}
	if d.State() != StateConnected {
		t.Errorf("State() = %v, want connected", d.State())
	}
	if set, ok := d.ActiveParameterSet(); !ok || set != 3 {
		t.Errorf("ActiveParameterSet() = %d, %v; want 3", set, ok)
	}
	f := d.Protocol().Flags()
	if f.Init() || !f.SysEx() || !f.TuneMode() || f.Echo() {
		t.Errorf("Flags() = %08b", byte(f))
	}
	if length, _ := d.Protocol().Lease(); length != 10*time.Second {
		t.Errorf("lease = %v, want 10s", length)
	}

	got := d.Outbox().Received()
	if len(got) != 1 || got[0].Label != "Protocol" {
		t.Errorf("Received() = %+v", got)
	}
}

func TestProtocolIgnoresForeignHandshakes(t *testing.T) {
	d, _ := newTestDevice(t, 0)

	tests := []struct {
		name string
		msg  []byte
	}{
		{"other product", handshake(2, 1, 0, 5)},
		{"short", []byte{0xF0, 0x00, 0x20, 0x33, 0x00, 0x7F, 0x7E, 0x00, 0x40, 0x01, 0x01}},
		{"other device", sysex(0x00, 0x01, 0x7E, 0x00, 0x40, 0x01, 0x00, 0x05)},
		{"keep-alive", sysex(0x00, 0x7F, 0x7E, 0x00, 0x7F, 0x00)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok, _ := d.Parse(tt.msg); ok {
				t.Error("Parse() consumed the message")
			}
			if d.State() != StateOffline {
				t.Errorf("State() = %v, want offline", d.State())
			}
		})
	}
}

func TestProtocolLeaseExpiry(t *testing.T) {
	d, clock := newTestDevice(t, 0)
	d.Parse(handshake(0, 1, 0, 3))

	for elapsed := 100 * time.Millisecond; elapsed < 6*time.Second; elapsed += 100 * time.Millisecond {
		clock.Advance(100 * time.Millisecond)
		d.Update()
		if d.State() != StateConnected {
			t.Fatalf("offline after %v, want 6s lease", elapsed)
		}
	}

	clock.Advance(100 * time.Millisecond)
	d.Update()
	if d.State() != StateOffline {
		t.Fatal("still connected after the lease expired")
	}
	if _, ok := d.ActiveParameterSet(); ok {
		t.Error("active set still reported after expiry")
	}
	if d.Protocol().KeepAliveStep() != 0 {
		t.Errorf("KeepAliveStep() = %d, want 0", d.Protocol().KeepAliveStep())
	}
}

func TestProtocolNoKeepAliveOnExpiry(t *testing.T) {
	d, clock := newTestDevice(t, 0)
	d.Parse(handshake(0, 1, 0, 1))

	clock.Advance(2 * time.Second)
	d.Update()

	if d.State() != StateOffline {
		t.Fatal("still connected")
	}
	if n := d.Outbox().Len(); n != 0 {
		t.Errorf("queued %d messages on expiry", n)
	}

	clock.Advance(time.Second)
	d.Update()
	if n := d.Outbox().Len(); n != 0 {
		t.Errorf("keep-alive sent while offline")
	}
}

func TestProtocolHandshakeRenewsLease(t *testing.T) {
	d, clock := newTestDevice(t, 0)
	d.Parse(handshake(0, 1, 0, 1))

	clock.Advance(1500 * time.Millisecond)
	d.Update()
	d.Parse(handshake(0, 2, 0, 1))

	clock.Advance(1500 * time.Millisecond)
	d.Update()
	if d.State() != StateConnected {
		t.Fatal("renewed lease expired early")
	}
	if set, _ := d.ActiveParameterSet(); set != 2 {
		t.Errorf("ActiveParameterSet() = %d, want 2", set)
	}

	clock.Advance(500 * time.Millisecond)
	d.Update()
	if d.State() != StateOffline {
		t.Error("renewed lease did not expire")
	}
}

func TestProtocolKeepAliveCadence(t *testing.T) {
	d, clock := newTestDevice(t, 0)

	// idle time before the connection must not count towards the first frame
	clock.Advance(10 * time.Second)
	d.Update()
	d.Parse(handshake(0, 1, 0, 5))

	for i := 0; i < 25; i++ {
		clock.Advance(100 * time.Millisecond)
		d.Update()
	}

	got := d.Outbox().Messages()
	if len(got) != 5 {
		t.Fatalf("sent %d keep-alives in 2.5s, want 5", len(got))
	}
	for i, m := range got {
		want := sysex(0x00, 0x7F, 0x7E, 0x00, 0x7F, byte(i))
		if !bytes.Equal(m.Data, want) {
			t.Errorf("keep-alive %d = % X, want % X", i, m.Data, want)
		}
		if m.Label != "Protocol Keep-Alive" {
			t.Errorf("label = %q", m.Label)
		}
	}
}

func TestProtocolKeepAliveStepWraps(t *testing.T) {
	d, clock := newTestDevice(t, 0)
	d.Parse(handshake(0, 1, 0, 127))

	for i := 0; i < 130; i++ {
		clock.Advance(KeepAlivePeriod)
		d.Update()
	}

	got := d.Outbox().Messages()
	if len(got) != 130 {
		t.Fatalf("sent %d keep-alives, want 130", len(got))
	}
	for _, i := range []int{0, 127, 128, 129} {
		if step := got[i].Data[9]; step != byte(i%128) {
			t.Errorf("keep-alive %d step = %d, want %d", i, step, i%128)
		}
	}
}

func TestProtocolInitialPush(t *testing.T) {
	d, _ := newTestDevice(t, 1)
	mustAdd(t, d, ParameterOptions{Name: "Morph", Value: NumericValue(0), Send: NRPN(0, 11), ParameterSets: []int{2}})
	mustAdd(t, d, ParameterOptions{Name: "Tuner", Value: NumericValue(0), Send: NRPN(127, 126), ParameterSets: []int{3}})
	mustAdd(t, d, ParameterOptions{Name: "Amp", Value: TextValue(""), Send: NRPN(0, 16), ParameterSets: []int{1, 2}})

	msg := []byte{0xF0, 0x00, 0x20, 0x33, 0x01, 0x7F, 0x7E, 0x00, 0x40, 0x02, 0x01, 0x05, 0xF7}
	if _, ok, _ := d.Parse(msg); !ok {
		t.Fatal("handshake not accepted")
	}

	want := [][]byte{
		{0xF0, 0x00, 0x20, 0x33, 0x00, 0x00, 0x01, 0x00, 0x00, 0x0B, 0x00, 0x00, 0xF7},
		{0xF0, 0x00, 0x20, 0x33, 0x00, 0x00, 0x03, 0x00, 0x00, 0x10, 0x00, 0xF7},
	}
	got := d.Outbox().Messages()
	if len(got) != len(want) {
		t.Fatalf("pushed %d messages, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if !bytes.Equal(got[i].Data, want[i]) {
			t.Errorf("message %d = % X, want % X", i, got[i].Data, want[i])
		}
	}
}

func TestProtocolUnsupportedSetWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	d, _ := newTestDevice(t, 0, WithLogger(zap.New(core)))
	mustAdd(t, d, ParameterOptions{Name: "Rig", Value: TextValue(""), Send: NRPN(0, 1), ParameterSets: []int{1}})

	if _, ok, _ := d.Parse(handshake(0, 9, FlagInit, 5)); !ok {
		t.Fatal("handshake not accepted")
	}
	if d.State() != StateConnected {
		t.Error("unsupported set must still connect")
	}
	if d.Outbox().Len() != 0 {
		t.Errorf("pushed %d messages for an empty set", d.Outbox().Len())
	}

	entries := logs.FilterMessage("parameter set not supported by the virtual device").All()
	if len(entries) != 1 {
		t.Fatalf("warnings = %d, want 1", len(entries))
	}
	if set, ok := entries[0].ContextMap()["set"]; !ok || set != int64(9) {
		t.Errorf("set field = %v", set)
	}
}

func TestProtocolInitWithoutFlagDoesNotPush(t *testing.T) {
	d, _ := newTestDevice(t, 0)
	mustAdd(t, d, ParameterOptions{Name: "Rig", Value: TextValue("x"), Send: NRPN(0, 1), ParameterSets: []int{1}})

	d.Parse(handshake(0, 1, 0, 5))
	if d.Outbox().Len() != 0 {
		t.Errorf("pushed %d messages without the init flag", d.Outbox().Len())
	}
}
