package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters and histograms for booking turns.
type BookingMetrics struct {
	turnsTotal         *prometheus.CounterVec
	turnLatency        prometheus.Histogram
	handoffsTotal      *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	collaboratorErrors *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbot",
			Name:      "turns_total",
			Help:      "Dialogue turns by outcome",
		}, []string{"outcome"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicbot",
			Name:      "turn_latency_seconds",
			Help:      "End-to-end latency of a dialogue turn",
			Buckets:   prometheus.DefBuckets,
		}),
		handoffsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbot",
			Name:      "handoffs_total",
			Help:      "Bookings handed to the scheduler",
		}, []string{"cached"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbot",
			Name:      "state_transitions_total",
			Help:      "Session state transitions",
		}, []string{"from", "to"}),
		collaboratorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbot",
			Name:      "collaborator_errors_total",
			Help:      "Failures of external collaborators",
		}, []string{"collaborator"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.handoffsTotal, m.transitionsTotal, m.collaboratorErrors)
	return m
}

func (m *BookingMetrics) ObserveTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveHandoff(cached bool) {
	if m == nil {
		return
	}
	m.handoffsTotal.WithLabelValues(strconv.FormatBool(cached)).Inc()
}

// ObserveTransition counts state changes; unchanged states are ignored.
func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObserveCollaboratorError(collaborator string) {
	if m == nil {
		return
	}
	m.collaboratorErrors.WithLabelValues(collaborator).Inc()
}
