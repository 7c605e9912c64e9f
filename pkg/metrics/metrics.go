// Package metrics exports virtual device traffic as Prometheus metrics
package metrics

import (
	"net/http"

	"github.com/james-see/virtualkemper/pkg/kemper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "virtualkemper"

// Sink is a kemper.MessageSink that counts traffic and forwards it to an
// optional next sink
type Sink struct {
	next     kemper.MessageSink
	gatherer prometheus.Gatherer

	sent     *prometheus.CounterVec // Messages queued for the controller (by label)
	received *prometheus.CounterVec // Messages recognised from the controller (by label)
	bytes    *prometheus.CounterVec // Bytes by direction: in, out

	connected     prometheus.Gauge // 1 while a handshake lease is active
	activeSet     prometheus.Gauge // Active parameter set, -1 while offline
	keepAliveStep prometheus.Gauge // Step of the next keep-alive frame
}

// NewSink creates the collectors on reg. A nil reg uses a fresh registry.
func NewSink(reg *prometheus.Registry, next kemper.MessageSink) *Sink {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Sink{
		next:     next,
		gatherer: reg,
		sent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Total messages sent to the controller by label",
			},
			[]string{"label"},
		),
		received: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Total messages received from the controller by label",
			},
			[]string{"label"},
		),
		bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "message_bytes_total",
				Help:      "Total MIDI bytes by direction",
			},
			[]string{"direction"}, // in, out
		),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the bidirectional protocol is connected",
		}),
		activeSet: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_parameter_set",
			Help:      "Active parameter set, -1 while offline",
		}),
		keepAliveStep: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "keepalive_step",
			Help:      "Step counter of the next keep-alive frame",
		}),
	}
}

func (s *Sink) QueueMessage(msg []byte, label string) {
	s.sent.WithLabelValues(label).Inc()
	s.bytes.WithLabelValues("out").Add(float64(len(msg)))
	if s.next != nil {
		s.next.QueueMessage(msg, label)
	}
}

func (s *Sink) MessageReceived(msg []byte, label string) {
	s.received.WithLabelValues(label).Inc()
	s.bytes.WithLabelValues("in").Add(float64(len(msg)))
	if s.next != nil {
		s.next.MessageReceived(msg, label)
	}
}

// ObserveProtocol records the connection state of p
func (s *Sink) ObserveProtocol(p *kemper.Protocol) {
	if p == nil {
		return
	}
	if set, ok := p.ActiveParameterSet(); ok {
		s.connected.Set(1)
		s.activeSet.Set(float64(set))
	} else {
		s.connected.Set(0)
		s.activeSet.Set(-1)
	}
	s.keepAliveStep.Set(float64(p.KeepAliveStep()))
}

// Handler serves the registry the sink was created on
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}
