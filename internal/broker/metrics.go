package broker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the broker's Prometheus collectors.
type Metrics struct {
	Requests     *prometheus.CounterVec
	Flushes      *prometheus.CounterVec
	FlushRetries *prometheus.CounterVec
	Records      *prometheus.GaugeVec
}

// NewMetrics creates the broker collectors and registers them with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadsync_broker_requests_total",
			Help: "Requests handled by the broker by action and outcome",
		}, []string{"action", "status"}),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadsync_broker_flushes_total",
			Help: "Durable flush attempts by namespace and outcome",
		}, []string{"version", "status"}),
		FlushRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "leadsync_broker_flush_retries_total",
			Help: "Flush retries by namespace and failure reason",
		}, []string{"version", "reason"}),
		Records: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "leadsync_broker_records",
			Help: "Saved records currently cached per namespace",
		}, []string{"version"}),
	}
}
