package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records counters for the payment orchestration flows.
type PaymentMetrics struct {
	refundResolutions *prometheus.CounterVec
	webhookEvents     *prometheus.CounterVec
	checkoutSessions  *prometheus.CounterVec
	processorDuration *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	refundResolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_resolutions_total",
		Help: "Refund/void resolutions by resulting action.",
	}, []string{"action"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Processor webhook events by type and outcome.",
	}, []string{"event_type", "outcome"})
	checkoutSessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout session creations by outcome.",
	}, []string{"outcome"})
	processorDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "processor_call_duration_seconds",
		Help:    "Duration of payment processor calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(refundResolutions, webhookEvents, checkoutSessions, processorDuration)
	return &PaymentMetrics{
		refundResolutions: refundResolutions,
		webhookEvents:     webhookEvents,
		checkoutSessions:  checkoutSessions,
		processorDuration: processorDuration,
	}
}

// IncRefundResolution increments the resolution counter for the action.
func (m *PaymentMetrics) IncRefundResolution(action string) {
	if m == nil || m.refundResolutions == nil {
		return
	}
	m.refundResolutions.WithLabelValues(normalizeLabel(action)).Inc()
}

// IncWebhookEvent increments the webhook counter for the event type and outcome.
func (m *PaymentMetrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// IncCheckoutSession increments the checkout counter for the outcome.
func (m *PaymentMetrics) IncCheckoutSession(outcome string) {
	if m == nil || m.checkoutSessions == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveProcessorCall records the duration of a processor call.
func (m *PaymentMetrics) ObserveProcessorCall(operation string, duration time.Duration) {
	if m == nil || m.processorDuration == nil {
		return
	}
	m.processorDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
