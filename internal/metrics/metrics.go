package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	QuotaRefusalsTotal *prometheus.CounterVec
	RetriesTotal       prometheus.Counter

	ModelSwitchesTotal       prometheus.Counter
	CredentialRotationsTotal prometheus.Counter
}

// New registers the client metrics with reg. Pass a fresh registry in
// tests so independent clients do not collide; nil falls back to the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genclient_requests_total",
				Help: "Total number of generate calls by terminal outcome",
			},
			[]string{"model", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "genclient_request_duration_seconds",
				Help:    "Generate call duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "genclient_requests_in_flight",
				Help: "Number of generate calls currently being processed",
			},
		),

		QuotaRefusalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "genclient_quota_refusals_total",
				Help: "Requests refused before the remote call by quota scope",
			},
			[]string{"scope"},
		),
		RetriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "genclient_retries_total",
				Help: "Total number of transient-error retries",
			},
		),

		ModelSwitchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "genclient_model_switches_total",
				Help: "Total number of fallbacks to the next model candidate",
			},
		),
		CredentialRotationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "genclient_credential_rotations_total",
				Help: "Total number of credential rotations",
			},
		),
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) RecordRequest(model, outcome string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(model, outcome).Inc()
	m.RequestDuration.WithLabelValues(model).Observe(duration.Seconds())
}

func (m *Metrics) RecordQuotaRefusal(scope string) {
	m.QuotaRefusalsTotal.WithLabelValues(scope).Inc()
}

func (m *Metrics) RecordRetry() {
	m.RetriesTotal.Inc()
}

func (m *Metrics) RecordModelSwitch() {
	m.ModelSwitchesTotal.Inc()
}

func (m *Metrics) RecordCredentialRotation() {
	m.CredentialRotationsTotal.Inc()
}

func (m *Metrics) IncRequestsInFlight() {
	m.RequestsInFlight.Inc()
}

func (m *Metrics) DecRequestsInFlight() {
	m.RequestsInFlight.Dec()
}
