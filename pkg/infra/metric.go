package infra

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "partiture"

type MetricInstance struct {
	Abort int32
	Valid int32

	registry     *prometheus.Registry
	flows        *prometheus.CounterVec
	inFlight     prometheus.Gauge
	stepDuration *prometheus.HistogramVec
}

// NewMetricInstance registers the driver metrics on a private registry so
// that several drivers can live in one process.
func NewMetricInstance() *MetricInstance {
	m := &MetricInstance{
		registry: prometheus.NewRegistry(),
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "flows_total",
			Help:      "Number of completed flow invocations by result.",
		}, []string{"flow", "result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "flows_in_flight",
			Help:      "Number of flow invocations currently running.",
		}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "step_duration_seconds",
			Help:      "Time spent in each lifecycle step.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"step"}),
	}
	m.registry.MustRegister(m.flows, m.inFlight, m.stepDuration)
	return m
}

func (m *MetricInstance) Registry() *prometheus.Registry {
	return m.registry
}

func (m *MetricInstance) AddAbort(flowName string) {
	atomic.AddInt32(&m.Abort, 1)
	m.flows.WithLabelValues(flowName, "aborted").Inc()
}

func (m *MetricInstance) AddValid(flowName string) {
	atomic.AddInt32(&m.Valid, 1)
	m.flows.WithLabelValues(flowName, "finalized").Inc()
}

func (m *MetricInstance) Aborted() int32 {
	return atomic.LoadInt32(&m.Abort)
}

func (m *MetricInstance) Finalized() int32 {
	return atomic.LoadInt32(&m.Valid)
}

func (m *MetricInstance) flowStarted() {
	m.inFlight.Inc()
}

func (m *MetricInstance) flowEnded() {
	m.inFlight.Dec()
}

func (m *MetricInstance) observeStep(step string, d time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}
