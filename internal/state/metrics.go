package state

import (
	"strconv"
	"time"

	"github.com/AlexGustafsson/relay/internal/completion"
	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Metrics)(nil)
var _ completion.Observer = (*Metrics)(nil)

type Metrics struct {
	Invocations          *prometheus.CounterVec
	InstructionFallbacks prometheus.Counter
	APIErrors            *prometheus.CounterVec
	InvocationDuration   prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "core",
			Name:      "invocations_total",
			Help:      "Total number of handled invocations",
		}, []string{"provider", "type"}),
		InstructionFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "core",
			Name:      "instruction_fallbacks_total",
			Help:      "Total number of invocations using the default instruction",
		}),
		APIErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "core",
			Name:      "api_errors_total",
			Help:      "Total number of non-2xx responses from completion APIs",
		}, []string{"status"}),
		InvocationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "core",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of invocations",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}

// ObserveInstruction implements completion.Observer.
func (m *Metrics) ObserveInstruction(fetched bool) {
	if !fetched {
		m.InstructionFallbacks.Inc()
	}
}

// ObserveResult implements completion.Observer.
func (m *Metrics) ObserveResult(provider string, result completion.Result, err *completion.Error, duration time.Duration) {
	if provider == "" {
		provider = "default"
	}

	m.Invocations.WithLabelValues(provider, string(result.Type)).Inc()
	if err != nil && err.Kind == completion.ErrorKindAPI {
		m.APIErrors.WithLabelValues(strconv.Itoa(err.StatusCode)).Inc()
	}
	m.InvocationDuration.Observe(duration.Seconds())
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(c chan<- prometheus.Metric) {
	m.Invocations.Collect(c)
	m.InstructionFallbacks.Collect(c)
	m.APIErrors.Collect(c)
	m.InvocationDuration.Collect(c)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(d chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(m, d)
}
