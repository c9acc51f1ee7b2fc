package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestBookingMetricsObserve(t *testing.T) {
	m := NewBookingMetrics(prometheus.NewRegistry())
	m.ObserveTurn("ok", 0.2)
	m.ObserveTurn("ok", 0.1)
	m.ObserveHandoff(false)
	m.ObserveTransition("idle", "confirming_name")
	m.ObserveTransition("idle", "idle")
	m.ObserveCollaboratorError("calendar")

	if got := counterValue(t, m.turnsTotal.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok turns, got %v", got)
	}
	if got := counterValue(t, m.handoffsTotal.WithLabelValues("false")); got != 1 {
		t.Fatalf("expected 1 handoff, got %v", got)
	}
	if got := counterValue(t, m.transitionsTotal.WithLabelValues("idle", "idle")); got != 0 {
		t.Fatalf("self transitions should not count, got %v", got)
	}
	if got := counterValue(t, m.collaboratorErrors.WithLabelValues("calendar")); got != 1 {
		t.Fatalf("expected 1 calendar error, got %v", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveTurn("ok", 0.1)
	m.ObserveHandoff(true)
	m.ObserveTransition("a", "b")
	m.ObserveCollaboratorError("nlu")
}
