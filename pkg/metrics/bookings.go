package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics tracks lifecycle activity and gate rejections.
type BookingMetrics struct {
	transitions *prometheus.CounterVec
	limits      *prometheus.CounterVec
	masked      prometheus.Counter
}

// NewBookingMetrics registers the booking counters on the provided registerer.
func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	if reg == nil {
		return &BookingMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_transitions_total",
		Help: "Booking state transitions by target status.",
	}, []string{"from", "to"})
	limits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plan_limit_rejections_total",
		Help: "Requests rejected because the provider plan limit was reached.",
	}, []string{"limit"})
	masked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "messages_masked_total",
		Help: "Messages stored with contact details masked.",
	})
	reg.MustRegister(transitions, limits, masked)
	return &BookingMetrics{transitions: transitions, limits: limits, masked: masked}
}

// ObserveTransition counts a committed status change.
func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

// IncLimitRejection counts a booking or lead gate refusal.
func (m *BookingMetrics) IncLimitRejection(limit string) {
	if m == nil || m.limits == nil {
		return
	}
	m.limits.WithLabelValues(normalizeLabel(limit)).Inc()
}

func (m *BookingMetrics) IncMaskedMessage() {
	if m == nil || m.masked == nil {
		return
	}
	m.masked.Inc()
}
