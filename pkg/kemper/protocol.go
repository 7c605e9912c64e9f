package kemper

import (
	"time"

	"go.uber.org/zap"
)

// State is the connection state of the bidirectional protocol
type State int

const (
	StateOffline State = iota
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// HandshakeFlags is the flag byte of the last handshake. Only FlagInit has
// behaviour; the others are kept for diagnostics.
type HandshakeFlags byte

func (f HandshakeFlags) Init() bool     { return f&FlagInit != 0 }
func (f HandshakeFlags) SysEx() bool    { return f&FlagSysEx != 0 }
func (f HandshakeFlags) Echo() bool     { return f&FlagEcho != 0 }
func (f HandshakeFlags) NoFE() bool     { return f&FlagNoFE != 0 }
func (f HandshakeFlags) NoCtr() bool    { return f&FlagNoCtr != 0 }
func (f HandshakeFlags) TuneMode() bool { return f&FlagTuneMode != 0 }

const (
	handshakeLen = 12

	labelProtocol  = "Protocol"
	labelKeepAlive = "Protocol Keep-Alive"
	eventKeepAlive = "Protocol KeepAlive"
	eventInit      = "Protocol Init"
)

type protocolHost interface {
	ProductType() uint8
	QueueMessage(msg []byte, label string)
	MessageReceived(msg []byte, label string)
	Registry() *Registry
	Logger() *zap.Logger
}

// Protocol is the connection state machine: handshake detection, time
// leased session, keep-alive cadence and active parameter set.
type Protocol struct {
	host  protocolHost
	clock Clock

	state     State
	activeSet int
	flags     HandshakeFlags

	lease     *PeriodCounter
	keepAlive *PeriodCounter
	step      byte
}

func newProtocol(h protocolHost, clock Clock) *Protocol {
	return &Protocol{
		host:      h,
		clock:     clock,
		state:     StateOffline,
		keepAlive: NewPeriodCounter(KeepAlivePeriod, clock),
	}
}

func (p *Protocol) State() State { return p.state }

// ActiveParameterSet returns the active set; ok is false while offline
func (p *Protocol) ActiveParameterSet() (int, bool) {
	if p.state != StateConnected {
		return 0, false
	}
	return p.activeSet, true
}

// KeepAliveStep returns the step the next keep-alive frame will carry
func (p *Protocol) KeepAliveStep() byte { return p.step }

// Flags returns the flags of the last accepted handshake
func (p *Protocol) Flags() HandshakeFlags { return p.flags }

// Lease returns the current lease length and the time left on it
func (p *Protocol) Lease() (length, remaining time.Duration) {
	if p.lease == nil || p.state != StateConnected {
		return 0, 0
	}
	return p.lease.Period(), p.lease.Remaining()
}

func (p *Protocol) handshakePrefix() []byte {
	return append(envelope(p.host.ProductType(), DeviceOmni, FuncBidirectional), cmdHandshake)
}

func (p *Protocol) keepAlivePrefix() []byte {
	return append(envelope(p.host.ProductType(), DeviceOmni, FuncBidirectional), cmdKeepAlive)
}

// Parse consumes handshake frames. It returns false for every other
// message, which must then be offered to the parameters.
func (p *Protocol) Parse(msg []byte, simulate bool) bool {
	if !hasPrefix(msg, p.handshakePrefix()) {
		return false
	}
	if len(msg) < handshakeLen {
		p.host.Logger().Debug("short handshake ignored", zap.Binary("msg", msg))
		return false
	}
	if simulate {
		return true
	}

	wasOffline := p.state != StateConnected

	p.activeSet = int(msg[9])
	p.flags = HandshakeFlags(msg[10])
	p.lease = NewPeriodCounter(time.Duration(msg[11])*LeaseUnit, p.clock)
	p.state = StateConnected

	if wasOffline {
		p.keepAlive.Reset()
		p.host.Logger().Info("connected",
			zap.Int("set", p.activeSet),
			zap.Duration("lease", p.lease.Period()))
	}

	if p.flags.Init() {
		p.sendParameterSet()
	}

	p.host.MessageReceived(msg, labelProtocol)
	return true
}

// sendParameterSet pushes every parameter of the active set
func (p *Protocol) sendParameterSet() {
	params := p.host.Registry().Set(p.activeSet)
	if len(params) == 0 {
		p.host.Logger().Warn("parameter set not supported by the virtual device", zap.Int("set", p.activeSet))
		return
	}
	for _, param := range params {
		if err := param.Send(); err != nil {
			p.host.Logger().Error("initial push", zap.String("param", param.DisplayName()), zap.Error(err))
		}
	}
}

// Update must be called regularly by the host loop. It expires the lease
// and emits keep-alive frames.
func (p *Protocol) Update() {
	if p.state != StateConnected {
		return
	}

	if p.lease.Exceeded() {
		p.state = StateOffline
		p.step = 0
		p.activeSet = 0
		p.host.Logger().Info("lease expired, offline")
		return
	}

	if p.keepAlive.Exceeded() {
		p.sendKeepAlive(p.step)
		p.step = (p.step + 1) % 128
	}
}

func (p *Protocol) sendKeepAlive(step byte) {
	msg := append(p.keepAlivePrefix(), step, SysExEnd)
	p.host.QueueMessage(msg, labelKeepAlive)
}

// Describe names keep-alive and handshake frames without changing state
func (p *Protocol) Describe(msg []byte) (Event, bool) {
	if hasPrefix(msg, p.keepAlivePrefix()) {
		return Event{Name: eventKeepAlive, Value: TextValue("")}, true
	}
	if p.Parse(msg, true) {
		return Event{Name: eventInit, Value: TextValue("")}, true
	}
	return Event{}, false
}
