package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConsumerMetrics tracks Pub/Sub deliveries handled by the worker.
type ConsumerMetrics struct {
	handled *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

func NewConsumerMetrics(reg prometheus.Registerer) *ConsumerMetrics {
	m := &ConsumerMetrics{
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_messages_total",
			Help: "Pub/Sub deliveries by consumer, event type and outcome.",
		}, []string{"consumer", "event_type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "consumer_message_duration_seconds",
			Help:    "Time spent handling one delivery.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"consumer"}),
	}
	if reg != nil {
		reg.MustRegister(m.handled, m.latency)
	}
	return m
}

func (m *ConsumerMetrics) ObserveDelivery(consumer, eventType, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.handled.WithLabelValues(consumer, normalizeLabel(eventType), outcome).Inc()
	m.latency.WithLabelValues(consumer).Observe(took.Seconds())
}
