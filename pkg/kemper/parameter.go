package kemper

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"go.uber.org/zap"
)

// ChangeCallback is invoked after a parameter accepted a new value
type ChangeCallback func(p *Parameter, v Value)

// ParameterOptions configures a parameter. Zero function codes select the
// defaults of the value type.
type ParameterOptions struct {
	Name          string
	Value         Value // initial value, fixes the type
	Receive       []Key // matched in order for requests and sets
	Send          Key   // optional, used when pushing state
	ParameterSets []int
	NoBuffer      bool // accept (and propagate) repeated equal values

	RequestFunctionCode byte
	SetFunctionCode     byte
	ReturnFunctionCode  byte

	Callback ChangeCallback
}

// host is the device a parameter is attached to
type host interface {
	ProductType() uint8
	ActiveParameterSet() (int, bool)
	QueueMessage(msg []byte, label string)
	Logger() *zap.Logger
}

// Parameter is one addressable device parameter
type Parameter struct {
	host host

	name     string
	value    Value
	typ      ValueType
	receive  []Key
	send     Key
	sets     []int
	noBuffer bool

	requestFn byte
	setFn     byte
	returnFn  byte

	callbacks []ChangeCallback
}

func newParameter(h host, opts ParameterOptions) (*Parameter, error) {
	for i, k := range opts.Receive {
		if k == nil {
			return nil, fmt.Errorf("%w: receive key %d of %q is nil", ErrInvalidKeyType, i, opts.Name)
		}
	}

	p := &Parameter{
		host:     h,
		name:     opts.Name,
		value:    opts.Value,
		typ:      opts.Value.Type(),
		receive:  append([]Key(nil), opts.Receive...),
		send:     opts.Send,
		sets:     append([]int(nil), opts.ParameterSets...),
		noBuffer: opts.NoBuffer,
	}

	switch p.typ {
	case Numeric:
		p.requestFn = orDefault(opts.RequestFunctionCode, FuncNumericRequest)
		p.setFn = orDefault(opts.SetFunctionCode, FuncNumericSet)
		p.returnFn = orDefault(opts.ReturnFunctionCode, FuncNumericReturn)
	case Text:
		p.requestFn = orDefault(opts.RequestFunctionCode, FuncTextRequest)
		p.setFn = orDefault(opts.SetFunctionCode, FuncTextSet)
		p.returnFn = orDefault(opts.ReturnFunctionCode, FuncTextReturn)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidValueType, p.typ)
	}

	if opts.Callback != nil {
		p.AddChangeCallback(opts.Callback)
	}
	return p, nil
}

func orDefault(code, def byte) byte {
	if code == 0 {
		return def
	}
	return code
}

// DisplayName returns the name used in logs and sink labels
func (p *Parameter) DisplayName() string {
	var tokens []string
	if p.name != "" {
		tokens = append(tokens, p.name)
	}
	if k := p.Key(); k != nil {
		tokens = append(tokens, k.DisplayName())
	}
	if len(tokens) == 0 {
		return "??"
	}
	return strings.Join(tokens, " ")
}

// Key returns the send key, or the first receive key without one
func (p *Parameter) Key() Key {
	if p.send != nil {
		return p.send
	}
	if len(p.receive) > 0 {
		return p.receive[0]
	}
	return nil
}

func (p *Parameter) Name() string         { return p.name }
func (p *Parameter) Value() Value         { return p.value }
func (p *Parameter) ValueType() ValueType { return p.typ }
func (p *Parameter) SendKey() Key         { return p.send }
func (p *Parameter) NoBuffer() bool       { return p.noBuffer }

// ReceiveKeys returns a copy of the receive keys
func (p *Parameter) ReceiveKeys() []Key {
	return append([]Key(nil), p.receive...)
}

// ParameterSets returns a copy of the set ids the parameter belongs to
func (p *Parameter) ParameterSets() []int {
	return append([]int(nil), p.sets...)
}

// FunctionCodes returns the request, set and return function codes
func (p *Parameter) FunctionCodes() (request, set, ret byte) {
	return p.requestFn, p.setFn, p.returnFn
}

// InSet reports whether the parameter belongs to parameter set id
func (p *Parameter) InSet(id int) bool {
	for _, s := range p.sets {
		if s == id {
			return true
		}
	}
	return false
}

// AddChangeCallback registers cb; callbacks run in registration order
func (p *Parameter) AddChangeCallback(cb ChangeCallback) {
	p.callbacks = append(p.callbacks, cb)
}

// Parse tries every receive key in order against msg. With simulate set the
// message is only classified, nothing is changed or sent.
func (p *Parameter) Parse(msg []byte, simulate bool) (Event, bool, error) {
	for _, key := range p.receive {
		ev, ok, err := p.parseKey(key, msg, simulate)
		if err != nil {
			return Event{}, false, err
		}
		if ok {
			return ev, true, nil
		}
	}
	return Event{}, false, nil
}

func (p *Parameter) parseKey(key Key, msg []byte, simulate bool) (Event, bool, error) {
	switch k := key.(type) {
	case NRPNKey:
		pt := p.host.ProductType()

		request := append(envelope(pt, DeviceOmni, p.requestFn), k.Address[:]...)
		if hasPrefix(msg, request) {
			if !simulate {
				if err := p.Send(); err != nil {
					p.host.Logger().Error("answer request", zap.String("param", p.DisplayName()), zap.Error(err))
				}
			}
			return Event{Name: "request " + p.DisplayName(), Value: TextValue(""), Request: true}, true, nil
		}

		set := append(envelope(pt, DeviceOmni, p.setFn), k.Address[:]...)
		if hasPrefix(msg, set) {
			return p.accept(k, sysExPayload(msg, len(set)), simulate)
		}

	case CCKey:
		if len(msg) >= 2 && msg[0] == StatusControlChange && msg[1] == k.Control {
			return p.accept(k, dataByte(msg, 2), simulate)
		}

	case PCKey:
		if len(msg) >= 1 && msg[0] == StatusProgramChange {
			return p.accept(k, dataByte(msg, 1), simulate)
		}

	default:
		return Event{}, false, fmt.Errorf("%w: %T", ErrInvalidKeyType, key)
	}
	return Event{}, false, nil
}

func dataByte(msg []byte, i int) []byte {
	if len(msg) <= i {
		return nil
	}
	return msg[i : i+1]
}

// accept decodes a matched payload and applies it. Undecodable payloads
// count as no match.
func (p *Parameter) accept(key Key, payload []byte, simulate bool) (Event, bool, error) {
	v, err := key.Decode(payload, p.typ)
	if err != nil {
		p.host.Logger().Debug("payload rejected", zap.String("param", p.DisplayName()), zap.Error(err))
		return Event{}, false, nil
	}
	if !simulate {
		if err := p.SetValue(v); err != nil {
			return Event{}, false, err
		}
	}
	return Event{Name: p.DisplayName(), Value: v}, true, nil
}

// SetValue stores v, notifies the callbacks and pushes the value if the
// parameter is part of the active parameter set. Equal values are ignored
// unless the parameter does not buffer.
func (p *Parameter) SetValue(v Value) error {
	if !p.noBuffer && p.value.Equal(v) {
		return nil
	}
	if v.Type() != p.typ {
		return fmt.Errorf("%w: %s value for %s parameter %s", ErrInvalidValueType, v.Type(), p.typ, p.DisplayName())
	}

	p.value = v
	p.host.Logger().Debug("set value", zap.String("param", p.DisplayName()), zap.Stringer("value", v))

	for _, cb := range p.callbacks {
		cb(p, v)
	}

	// Only parameters of the active set are pushed, all others must be requested
	if set, ok := p.host.ActiveParameterSet(); ok && p.InSet(set) {
		return p.Send()
	}
	return nil
}

// Send pushes the current value using the send key
func (p *Parameter) Send() error {
	msg, err := p.sendMessage()
	if err != nil || msg == nil {
		return err
	}
	p.host.QueueMessage(msg, p.DisplayName())
	p.host.Logger().Debug("send", zap.String("param", p.DisplayName()), zap.Stringer("value", p.value), zap.Binary("msg", msg))
	return nil
}

func (p *Parameter) sendMessage() ([]byte, error) {
	if p.send == nil {
		return nil, nil
	}

	payload, err := p.send.Encode(p.value)
	if err != nil {
		return nil, err
	}

	switch k := p.send.(type) {
	case NRPNKey:
		msg := envelope(0, 0, p.returnFn)
		msg = append(msg, k.Address[:]...)
		msg = append(msg, payload...)
		return append(msg, SysExEnd), nil
	case CCKey:
		return midi.ControlChange(0, k.Control, payload[0]), nil
	case PCKey:
		return midi.ProgramChange(0, payload[0]), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrInvalidKeyType, p.send)
}

// ParseSendMessage reports whether msg has the shape Send would produce and
// returns the carried value. The two device address bytes are not compared.
func (p *Parameter) ParseSendMessage(msg []byte) (Event, bool) {
	if p.send == nil {
		return Event{}, false
	}

	var payload []byte
	switch k := p.send.(type) {
	case NRPNKey:
		if len(msg) < headerLen+2 {
			return Event{}, false
		}
		if !hasPrefix(msg, []byte{SysExStart, ManufacturerID1, ManufacturerID2, ManufacturerID3}) {
			return Event{}, false
		}
		if msg[6] != p.returnFn || msg[7] != InstanceDefault || msg[8] != k.Address[0] || msg[9] != k.Address[1] {
			return Event{}, false
		}
		payload = sysExPayload(msg, headerLen+2)
	case CCKey:
		if !hasPrefix(msg, []byte{StatusControlChange, k.Control}) {
			return Event{}, false
		}
		payload = dataByte(msg, 2)
	case PCKey:
		if !hasPrefix(msg, []byte{StatusProgramChange}) {
			return Event{}, false
		}
		payload = dataByte(msg, 1)
	default:
		return Event{}, false
	}

	v, err := p.send.Decode(payload, p.typ)
	if err != nil {
		return Event{}, false
	}
	return Event{Name: p.DisplayName(), Value: v}, true
}
