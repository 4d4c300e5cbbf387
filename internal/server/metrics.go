package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsRegistry struct {
	registry           *prometheus.Registry
	quotesTotal        *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	offrampsTotal      *prometheus.CounterVec
	executionsTotal    *prometheus.CounterVec
	webhooksTotal      *prometheus.CounterVec
	dlqDepth           prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offrails_quotes_total",
		Help: "Total number of rate quote requests",
	}, []string{"status"})

	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offrails_verifications_total",
		Help: "Total number of account verification attempts",
	}, []string{"status"})

	offramps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offrails_offramps_total",
		Help: "Total number of off-ramp submissions",
	}, []string{"status"})

	executions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offrails_executions_total",
		Help: "On-chain transfers by execution path",
	}, []string{"via"})

	webhooks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "offrails_webhooks_total",
		Help: "Settlement status webhooks processed",
	}, []string{"status"})

	dlq := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "offrails_webhook_dlq_depth",
		Help: "Number of failed webhook deliveries parked in the DLQ",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(quotes, verifications, offramps, executions, webhooks, dlq)

	return &metricsRegistry{
		registry:           r,
		quotesTotal:        quotes,
		verificationsTotal: verifications,
		offrampsTotal:      offramps,
		executionsTotal:    executions,
		webhooksTotal:      webhooks,
		dlqDepth:           dlq,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incQuote(status string) {
	m.quotesTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incVerification(status string) {
	m.verificationsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incOfframp(status string) {
	m.offrampsTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) incExecution(via string) {
	m.executionsTotal.WithLabelValues(via).Inc()
}

func (m *metricsRegistry) incWebhook(status string) {
	m.webhooksTotal.WithLabelValues(status).Inc()
}

func (m *metricsRegistry) setDLQDepth(depth int) {
	m.dlqDepth.Set(float64(depth))
}
