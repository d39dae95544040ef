package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes replay pipeline metrics via Prometheus.
// ⭐ SSOT: 메트릭 등록은 여기서만
type Recorder struct {
	samplesTotal   *prometheus.CounterVec
	labelsTotal    *prometheus.CounterVec
	vendorRequests *prometheus.CounterVec
	sampleDuration *prometheus.HistogramVec
	batchesRunning prometheus.Gauge
}

// New creates a recorder on the default Prometheus registry
func New() *Recorder {
	return NewFor(prometheus.DefaultRegisterer)
}

// NewFor creates a recorder on a specific registry. Tests pass a fresh
// registry so repeated construction never collides.
func NewFor(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		samplesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_replay_samples_total",
				Help: "Replay samples executed, by terminal status",
			},
			[]string{"symbol", "status"},
		),
		labelsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_outcome_labels_total",
				Help: "Outcome labels written, by label",
			},
			[]string{"symbol", "label"},
		),
		vendorRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_vendor_requests_total",
				Help: "Requests made to the market data vendor",
			},
			[]string{"endpoint", "result"},
		),
		sampleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "argus_replay_sample_duration_seconds",
				Help:    "Duration of one replay sample execution",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
		batchesRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "argus_replay_batches_running",
				Help: "Number of batches currently executing",
			},
		),
	}
}

// RecordSample records a terminal sample status.
func (r *Recorder) RecordSample(symbol, status string) {
	r.samplesTotal.WithLabelValues(symbol, status).Inc()
}

// RecordLabel records an outcome label write.
func (r *Recorder) RecordLabel(symbol, label string) {
	r.labelsTotal.WithLabelValues(symbol, label).Inc()
}

// RecordVendorRequest records a vendor call outcome ("ok", "rate_limited", "error").
func (r *Recorder) RecordVendorRequest(endpoint, result string) {
	r.vendorRequests.WithLabelValues(endpoint, result).Inc()
}

// RecordSampleDuration records one sample execution time in seconds.
func (r *Recorder) RecordSampleDuration(symbol string, seconds float64) {
	r.sampleDuration.WithLabelValues(symbol).Observe(seconds)
}

// BatchStarted increments the running batch gauge.
func (r *Recorder) BatchStarted() { r.batchesRunning.Inc() }

// BatchFinished decrements the running batch gauge.
func (r *Recorder) BatchFinished() { r.batchesRunning.Dec() }
