package shardrpc

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the metrics sink for the fabric. Implement this interface to write
// to other kinds of systems.
type Sink interface {
	LogRequest(direction, handler string)
	LogFanout(handler string)
}

// The list of supported metrics sinks.
const (
	PrometheusSink = "prometheus"
	NoSink         = "none"
)

const (
	directionServe = "serve"
	directionCall  = "call"
	directionLocal = "local"
)

// NewSinkFromString returns a named sink. Unknown names get the blackhole.
func NewSinkFromString(name string, node string) Sink {
	switch name {
	case PrometheusSink:
		return newPrometheusSink(node)
	default:
		return blackHoleSink{}
	}
}

type blackHoleSink struct{}

func (blackHoleSink) LogRequest(direction, handler string) {}
func (blackHoleSink) LogFanout(handler string)             {}

var oneTimeRegister sync.Once

type prometheusSink struct {
	requests *prometheus.CounterVec
	fanouts  *prometheus.CounterVec
}

var promMetrics *prometheusSink

// newPrometheusSink creates a metrics sink for Prometheus. Registration is a
// one-time operation so repeated fabric construction (unit tests) reuses the
// first sink.
func newPrometheusSink(node string) Sink {
	oneTimeRegister.Do(func() {
		promMetrics = &prometheusSink{
			// requests counts calls through the fabric: served, issued, or
			// short-circuited on the local fast path.
			requests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "pannier",
					Subsystem: "fabric",
					Name:      "requests",
					Help:      "Requests through the fabric",
					ConstLabels: prometheus.Labels{
						"node": node,
					},
				},
				[]string{"direction", "handler"}),
			// fanouts counts all-shard aggregate operations.
			fanouts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "pannier",
					Subsystem: "fabric",
					Name:      "fanouts",
					Help:      "Fan-out operations issued by this node",
					ConstLabels: prometheus.Labels{
						"node": node,
					},
				},
				[]string{"handler"}),
		}
		prometheus.MustRegister(promMetrics.requests)
		prometheus.MustRegister(promMetrics.fanouts)
	})
	return promMetrics
}

func (p *prometheusSink) LogRequest(direction, handler string) {
	p.requests.With(prometheus.Labels{
		"direction": direction,
		"handler":   handler,
	}).Inc()
}

func (p *prometheusSink) LogFanout(handler string) {
	p.fanouts.With(prometheus.Labels{
		"handler": handler,
	}).Inc()
}
