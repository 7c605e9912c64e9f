package kemper

import "testing"

func TestOutboxDrain(t *testing.T) {
	o := NewOutbox()
	msg := []byte{0xB0, 1, 2}
	o.QueueMessage(msg, "a")
	msg[2] = 9

	got := o.Drain()
	if len(got) != 1 || got[0].Data[2] != 2 {
		t.Fatalf("Drain() = %+v, want a copy of the queued bytes", got)
	}
	if o.Len() != 0 {
		t.Errorf("Len() after Drain() = %d", o.Len())
	}
}

func TestTeeSkipsNil(t *testing.T) {
	a, b := NewOutbox(), NewOutbox()
	s := Tee(a, nil, b)
	s.QueueMessage([]byte{0xC0, 1}, "pc")
	s.MessageReceived([]byte{0xC0, 2}, "pc")

	for _, o := range []*Outbox{a, b} {
		if o.Len() != 1 || len(o.Received()) != 1 {
			t.Errorf("outbox saw %d sent, %d received", o.Len(), len(o.Received()))
		}
	}
}

func TestEventString(t *testing.T) {
	tests := []struct {
		ev   Event
		want string
	}{
		{Event{Name: "Volume", Value: NumericValue(3)}, "Volume: 3"},
		{Event{Name: "Rig", Value: TextValue("Lead")}, "Rig: Lead"},
		{Event{Name: "request Rig", Value: TextValue(""), Request: true}, "request Rig"},
		{Event{Name: "Protocol Init", Value: TextValue("")}, "Protocol Init"},
	}
	for _, tt := range tests {
		if got := tt.ev.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
