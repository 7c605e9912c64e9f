package kemper

import (
	"fmt"
	"sync"
)

// MessageSink accepts outbound messages and records inbound statistics
type MessageSink interface {
	QueueMessage(msg []byte, label string)
	MessageReceived(msg []byte, label string)
}

// Event describes a recognised message
type Event struct {
	Name    string `json:"name"`
	Value   Value  `json:"-"`
	Request bool   `json:"request,omitempty"`
}

func (e Event) String() string {
	if e.Request || e.Value == TextValue("") {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Value)
}

// Message is one labelled MIDI message
type Message struct {
	Data  []byte
	Label string
}

// Outbox is an append-only in-memory sink
type Outbox struct {
	mu       sync.Mutex
	sent     []Message
	received []Message
}

// NewOutbox returns an empty outbox
func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) QueueMessage(msg []byte, label string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, Message{Data: cloneBytes(msg), Label: label})
}

func (o *Outbox) MessageReceived(msg []byte, label string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.received = append(o.received, Message{Data: cloneBytes(msg), Label: label})
}

// Messages returns a copy of all queued outbound messages not yet drained
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.sent))
	copy(out, o.sent)
	return out
}

// Drain returns and clears the queued outbound messages
func (o *Outbox) Drain() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.sent
	o.sent = nil
	return out
}

// Received returns the inbound statistics recorded so far
func (o *Outbox) Received() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Message, len(o.received))
	copy(out, o.received)
	return out
}

// Len returns the number of queued outbound messages
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

type teeSink []MessageSink

// Tee returns a sink that forwards to every non-nil sink in order
func Tee(sinks ...MessageSink) MessageSink {
	out := make(teeSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (t teeSink) QueueMessage(msg []byte, label string) {
	for _, s := range t {
		s.QueueMessage(msg, label)
	}
}

func (t teeSink) MessageReceived(msg []byte, label string) {
	for _, s := range t {
		s.MessageReceived(msg, label)
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
