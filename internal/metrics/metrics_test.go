package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveBooking("success")
	m.ObserveBooking("success")
	m.ObserveBooking("no_availability")
	m.ObserveAllocation("split")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("no_availability")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.allocationsTotal.WithLabelValues("split")))
}

func TestBookingMetricsObserveAll(t *testing.T) {
	m := NewBookingMetrics(prometheus.NewRegistry())
	m.ObserveUpdate("success")
	m.ObserveNotification("booking", "enqueued")
	m.ObserveRequest("POST", "/appointments/book", "201", 0.02)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("success")
	m.ObserveAllocation("full")
	m.ObserveUpdate("success")
	m.ObserveNotification("booking", "failed")
	m.ObserveRequest("GET", "/", "200", 0.1)
	m.SetQueueDepth(3)
}

func TestQueueDepthGauge(t *testing.T) {
	m := NewBookingMetrics(prometheus.NewRegistry())

	m.SetQueueDepth(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.queueDepth))

	m.SetQueueDepth(0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queueDepth))
}
