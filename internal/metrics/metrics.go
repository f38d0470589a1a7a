package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxjob/internal/domain"
)

// Metrics contains the Prometheus collectors for the job client.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Transport
	Requests        *prometheus.CounterVec
	RequestFailures *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Orchestrator
	Submissions *prometheus.CounterVec
	Polls       *prometheus.CounterVec
	Resolutions *prometheus.CounterVec
	ActiveLoops prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return NewWith(reg, reg)
}

// NewWith registers collectors on reg. gatherer backs Handler and may be nil
// when the caller serves metrics elsewhere.
func NewWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,

		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxjob_backend_requests_total",
			Help: "Total number of requests sent to the transcription backend",
		}, []string{"endpoint"}),
		RequestFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxjob_backend_request_failures_total",
			Help: "Total number of backend requests that failed at the transport level",
		}, []string{"endpoint"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxjob_backend_request_duration_seconds",
			Help:    "Latency of backend requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),

		Submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxjob_submissions_total",
			Help: "Total number of jobs submitted for transcription",
		}, []string{"provider"}),
		Polls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxjob_polls_total",
			Help: "Total number of status polls by observed outcome",
		}, []string{"outcome"}),
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voxjob_job_resolutions_total",
			Help: "Total number of jobs resolved by outcome",
		}, []string{"outcome"}),
		ActiveLoops: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voxjob_active_poll_loops",
			Help: "Current number of live poll loops",
		}),
	}
}

func (m *Metrics) RequestObserved(endpoint string, duration time.Duration, failed bool) {
	m.Requests.WithLabelValues(endpoint).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
	if failed {
		m.RequestFailures.WithLabelValues(endpoint).Inc()
	}
}

func (m *Metrics) SubmissionStarted(provider domain.Provider) {
	m.Submissions.WithLabelValues(string(provider)).Inc()
}

func (m *Metrics) PollObserved(outcome string) {
	m.Polls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) JobResolved(outcome string) {
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) LoopStarted() { m.ActiveLoops.Inc() }

func (m *Metrics) LoopStopped() { m.ActiveLoops.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
