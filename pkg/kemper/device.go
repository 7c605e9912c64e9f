package kemper

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"
)

// Device is a virtual Kemper: the parameter registry, the protocol state
// machine and the outbound sink. It is not safe for concurrent use; the
// host loop owns it.
type Device struct {
	productType uint8
	clock       Clock
	logger      *zap.Logger

	outbox   *Outbox
	sink     MessageSink
	extra    []MessageSink
	registry *Registry
	protocol *Protocol
}

// Option configures a Device
type Option func(*Device)

// WithClock sets the time source of all device timers
func WithClock(c Clock) Option {
	return func(d *Device) {
		d.clock = c
	}
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Device) {
		d.logger = l
	}
}

// WithSink adds a sink that receives all traffic next to the built-in outbox
func WithSink(s MessageSink) Option {
	return func(d *Device) {
		d.extra = append(d.extra, s)
	}
}

// New creates a device emulating the given product type
func New(productType uint8, opts ...Option) *Device {
	d := &Device{
		productType: productType,
		outbox:      NewOutbox(),
		registry:    NewRegistry(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.clock == nil {
		d.clock = SystemClock{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	d.sink = Tee(append([]MessageSink{d.outbox}, d.extra...)...)
	d.protocol = newProtocol(d, d.clock)
	return d
}

func (d *Device) ProductType() uint8  { return d.productType }
func (d *Device) Clock() Clock        { return d.clock }
func (d *Device) Logger() *zap.Logger { return d.logger }
func (d *Device) Registry() *Registry { return d.registry }
func (d *Device) Protocol() *Protocol { return d.protocol }
func (d *Device) Outbox() *Outbox     { return d.outbox }
func (d *Device) State() State        { return d.protocol.State() }

// Parameters returns every parameter in registration order
func (d *Device) Parameters() []*Parameter {
	return d.registry.All()
}

// ActiveParameterSet returns the active set of the connection
func (d *Device) ActiveParameterSet() (int, bool) {
	return d.protocol.ActiveParameterSet()
}

func (d *Device) QueueMessage(msg []byte, label string) {
	d.sink.QueueMessage(msg, label)
}

func (d *Device) MessageReceived(msg []byte, label string) {
	d.sink.MessageReceived(msg, label)
}

// AddParameter creates a parameter and registers it
func (d *Device) AddParameter(opts ParameterOptions) (*Parameter, error) {
	p, err := newParameter(d, opts)
	if err != nil {
		return nil, err
	}
	d.registry.Add(p)
	return p, nil
}

// Parameter returns the parameter registered for key
func (d *Device) Parameter(key Key) (*Parameter, error) {
	p, ok := d.registry.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParameter, key.ID())
	}
	return p, nil
}

// Parse handles one inbound message: protocol frames first, then the
// parameters in registration order. ok is false for unrelated traffic.
func (d *Device) Parse(msg []byte) (Event, bool, error) {
	if d.protocol.Parse(msg, false) {
		return Event{Name: eventInit, Value: TextValue("")}, true, nil
	}

	ev, p, err := d.registry.Dispatch(msg, false)
	if err != nil {
		return Event{}, false, err
	}
	if p == nil {
		d.logger.Debug("unmatched message", zap.Binary("msg", msg))
		return Event{}, false, nil
	}

	d.sink.MessageReceived(msg, ev.Name)
	return ev, true, nil
}

// Update advances the protocol timers
func (d *Device) Update() {
	d.protocol.Update()
}

// Describe classifies msg for diagnostics without changing any state
func (d *Device) Describe(msg []byte) (Event, bool) {
	if ev, ok := d.protocol.Describe(msg); ok {
		return ev, true
	}
	if ev, p, err := d.registry.Dispatch(msg, true); err == nil && p != nil {
		return ev, true
	}
	if name, ok := channelMessageName(msg); ok {
		return Event{Name: name, Value: TextValue("")}, true
	}
	return Event{}, false
}

// FindSent reports which parameter would have sent msg, and the carried value
func (d *Device) FindSent(msg []byte) (Event, *Parameter, bool) {
	for _, p := range d.registry.All() {
		if ev, ok := p.ParseSendMessage(msg); ok {
			return ev, p, true
		}
	}
	return Event{}, nil, false
}

// channelMessageName names well formed channel voice messages
func channelMessageName(msg []byte) (string, bool) {
	if len(msg) == 0 || msg[0] < 0x80 || msg[0] >= SysExStart {
		return "", false
	}
	want := 3
	if s := msg[0] & 0xF0; s == StatusProgramChange || s == 0xD0 {
		want = 2
	}
	if len(msg) != want {
		return "", false
	}
	return midi.Message(msg).String(), true
}
