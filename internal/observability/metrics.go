// Package observability exposes Prometheus metrics for the weight pipeline.
// All recording methods are nil-safe so callers never need to guard against
// a disabled metrics setup.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	iterationsTotal    *prometheus.CounterVec
	iterationDuration  prometheus.Histogram
	campaignFailures   prometheus.Counter
	providerErrors     *prometheus.CounterVec
	submissionsTotal   *prometheus.CounterVec
	beneficiaryWeight  prometheus.Gauge
	aggregateWeightSum prometheus.Gauge
	minersScored       *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		iterationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weightd_iterations_total",
			Help: "Total count of completed epoch iterations by outcome.",
		}, []string{"outcome"}),
		iterationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "weightd_iteration_duration_seconds",
			Help:    "Histogram of full epoch iteration durations.",
			Buckets: prometheus.DefBuckets,
		}),
		campaignFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "weightd_campaign_failures_total",
			Help: "Total campaigns that failed to score and contributed zero weight.",
		}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weightd_provider_errors_total",
			Help: "Total collaborator errors by operation.",
		}, []string{"op"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "weightd_submissions_total",
			Help: "Total ledger submission attempts by outcome.",
		}, []string{"outcome"}),
		beneficiaryWeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weightd_beneficiary_weight",
			Help: "Weight assigned to the burn beneficiary in the last aggregate.",
		}),
		aggregateWeightSum: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "weightd_aggregate_weight_sum",
			Help: "Sum of the last aggregate weight vector; anything but 1 is a bug.",
		}),
		minersScored: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "weightd_miners_scored",
			Help: "Miners scored per scope in the last iteration.",
		}, []string{"scope"}),
	}

	prometheus.MustRegister(
		m.iterationsTotal,
		m.iterationDuration,
		m.campaignFailures,
		m.providerErrors,
		m.submissionsTotal,
		m.beneficiaryWeight,
		m.aggregateWeightSum,
		m.minersScored,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

func (m *Metrics) IterationCompleted(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.iterationsTotal.WithLabelValues(outcome).Inc()
	m.iterationDuration.Observe(duration.Seconds())
}

func (m *Metrics) CampaignFailed() {
	if m == nil {
		return
	}
	m.campaignFailures.Inc()
}

func (m *Metrics) ProviderError(op string) {
	if m == nil {
		return
	}
	m.providerErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SubmissionResult(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAggregate(weights map[string]float64, beneficiary string) {
	if m == nil {
		return
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	m.aggregateWeightSum.Set(total)
	m.beneficiaryWeight.Set(weights[beneficiary])
}

func (m *Metrics) MinersScored(scope string, count int) {
	if m == nil {
		return
	}
	m.minersScored.WithLabelValues(scope).Set(float64(count))
}
