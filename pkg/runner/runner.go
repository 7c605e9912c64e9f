// Package runner hosts a virtual device: it drives the protocol timers on a
// ticker, serializes access from other goroutines and fans traffic out to
// subscribers
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/james-see/virtualkemper/pkg/kemper"
	"github.com/james-see/virtualkemper/pkg/trace"
	"go.uber.org/zap"
)

// DefaultTick is the default host loop interval
const DefaultTick = 20 * time.Millisecond

// Traffic is one message seen by the runner
type Traffic struct {
	Time      time.Time `json:"time"`
	Direction string    `json:"direction"` // in, out
	Label     string    `json:"label"`
	Data      []byte    `json:"-"`
	Hex       string    `json:"hex"`
}

// Option configures a Runner
type Option func(*Runner)

// WithTick sets the host loop interval
func WithTick(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.tick = d
		}
	}
}

// WithObserver registers a function called with the protocol after every
// update, e.g. to export its state
func WithObserver(fn func(*kemper.Protocol)) Option {
	return func(r *Runner) {
		r.observers = append(r.observers, fn)
	}
}

// Runner owns a device. The device itself is single threaded; every access
// goes through the runner's lock.
type Runner struct {
	mu        sync.Mutex
	device    *kemper.Device
	tick      time.Duration
	observers []func(*kemper.Protocol)

	subMu sync.Mutex
	subs  map[chan Traffic]struct{}
}

// New creates a runner for d
func New(d *kemper.Device, opts ...Option) *Runner {
	r := &Runner{
		device: d,
		tick:   DefaultTick,
		subs:   make(map[chan Traffic]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tick returns the host loop interval
func (r *Runner) Tick() time.Duration {
	return r.tick
}

func (r *Runner) logger() *zap.Logger {
	return r.device.Logger()
}

// Run polls the device until ctx is cancelled (blocking - run in goroutine)
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.logger().Info("runner started", zap.Duration("tick", r.tick), zap.Uint8("product_type", r.device.ProductType()))

	for {
		select {
		case <-ctx.Done():
			r.logger().Info("runner stopped")
			r.closeSubscribers()
			return
		case <-ticker.C:
			r.Update()
		}
	}
}

// Update runs one host loop iteration
func (r *Runner) Update() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.device.Update()
	r.observe()
	r.flush()
}

func (r *Runner) observe() {
	for _, fn := range r.observers {
		fn(r.device.Protocol())
	}
}

// flush publishes and clears the device's queued outbound messages.
// Callers hold r.mu.
func (r *Runner) flush() []kemper.Message {
	sent := r.device.Outbox().Drain()
	now := time.Now()
	for _, m := range sent {
		r.publish(Traffic{Time: now, Direction: "out", Label: m.Label, Data: m.Data, Hex: trace.FormatHex(m.Data)})
	}
	return sent
}

// Inject hands msg to the device as if the controller had sent it. It
// returns the recognised event and the messages the device answered with.
func (r *Runner) Inject(msg []byte) (kemper.Event, bool, []kemper.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok, err := r.device.Parse(msg)
	label := ev.Name
	if !ok {
		label = "unmatched"
	}
	r.publish(Traffic{Time: time.Now(), Direction: "in", Label: label, Data: append([]byte(nil), msg...), Hex: trace.FormatHex(msg)})

	r.observe()
	sent := r.flush()
	return ev, ok, sent, err
}

// Play injects the inbound entries, keeping their relative timing. It
// returns the number of messages injected.
func (r *Runner) Play(ctx context.Context, entries []trace.Entry) (int, error) {
	var last time.Duration
	n := 0
	for _, e := range entries {
		if e.Direction == trace.Out {
			continue
		}
		if wait := e.At - last; wait > 0 {
			select {
			case <-ctx.Done():
				return n, ctx.Err()
			case <-time.After(wait):
			}
		}
		last = e.At
		if _, _, _, err := r.Inject(e.Data); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// SetValue sets the parameter registered under key id (see kemper.ParseKey)
// and returns the messages it pushed
func (r *Runner) SetValue(id string, v kemper.Value) ([]kemper.Message, error) {
	key, err := kemper.ParseKey(id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.device.Parameter(key)
	if err != nil {
		return nil, err
	}
	if err := p.SetValue(v); err != nil {
		return nil, err
	}
	return r.flush(), nil
}

// Describe classifies msg without changing the device
func (r *Runner) Describe(msg []byte) (kemper.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.device.Describe(msg)
}

// Subscribe returns a channel receiving all traffic from now on. Slow
// subscribers lose messages.
func (r *Runner) Subscribe(buffer int) <-chan Traffic {
	ch := make(chan Traffic, buffer)
	r.subMu.Lock()
	r.subs[ch] = struct{}{}
	r.subMu.Unlock()
	return ch
}

// Unsubscribe stops delivery to ch and closes it
func (r *Runner) Unsubscribe(ch <-chan Traffic) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for c := range r.subs {
		if c == ch {
			delete(r.subs, c)
			close(c)
			return
		}
	}
}

func (r *Runner) publish(t Traffic) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- t:
		default:
			r.logger().Debug("subscriber lagging, traffic dropped", zap.String("label", t.Label))
		}
	}
}

func (r *Runner) closeSubscribers() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for ch := range r.subs {
		close(ch)
		delete(r.subs, ch)
	}
}
