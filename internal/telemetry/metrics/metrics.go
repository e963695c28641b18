// Package metrics defines the gateway's Prometheus instrumentation:
// counters and gauges for the anti-echo/LWW suppression decisions, the
// setpoint retry loop, and driver connection lifecycle, grounded in the
// teacher's pkg/metrics/prometheus constructors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every gauge/counter the gateway exposes. A nil *Metrics is
// valid and every method is a no-op on it, so components can be
// constructed before metrics are enabled without a nil check at every
// call site, matching the teacher's nil-safe metrics methods.
type Metrics struct {
	shadowSuppressions *prometheus.CounterVec
	lwwSuppressions    *prometheus.CounterVec
	setpointRetries    *prometheus.CounterVec
	setpointAbandoned  *prometheus.CounterVec
	driverReconnects   *prometheus.CounterVec
	driverStatus       *prometheus.GaugeVec
	pageEpoch          prometheus.Gauge
	refreshDuration    prometheus.Histogram
}

// New registers every metric against reg and returns the handle. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the process
// default registry across test runs.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		shadowSuppressions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtouch_gw_shadow_suppressions_total",
				Help: "Total number of inbound events suppressed as driver-feedback echo, by MIDI family",
			},
			[]string{"family"},
		),
		lwwSuppressions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtouch_gw_lww_suppressions_total",
				Help: "Total number of outbound writes suppressed by the last-writer-wins grace period, by MIDI family",
			},
			[]string{"family"},
		),
		setpointRetries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtouch_gw_setpoint_retries_total",
				Help: "Total number of fader setpoint re-emissions by the Surface Driver's retry loop",
			},
			[]string{"channel"},
		),
		setpointAbandoned: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtouch_gw_setpoint_abandoned_total",
				Help: "Total number of fader setpoints abandoned (retry budget exhausted or page epoch changed)",
			},
			[]string{"channel", "reason"},
		),
		driverReconnects: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "xtouch_gw_driver_reconnects_total",
				Help: "Total number of driver connection-status transitions into StatusConnecting, by app",
			},
			[]string{"app"},
		),
		driverStatus: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "xtouch_gw_driver_status",
				Help: "Current driver connection status by app (0=disconnected, 1=connecting, 2=connected, 3=error)",
			},
			[]string{"app"},
		),
		pageEpoch: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "xtouch_gw_page_epoch",
				Help: "Current page epoch, incremented on every page switch",
			},
		),
		refreshDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "xtouch_gw_page_refresh_duration_milliseconds",
				Help: "Duration of a full page refresh plan execution",
				Buckets: []float64{
					5, 10, 25, 50, 100, 250, 500, 1000, 2000,
				},
			},
		),
	}
}

// RecordShadowSuppression increments the shadow-suppression counter for family.
func (m *Metrics) RecordShadowSuppression(family string) {
	if m == nil {
		return
	}
	m.shadowSuppressions.WithLabelValues(family).Inc()
}

// RecordLWWSuppression increments the LWW-suppression counter for family.
func (m *Metrics) RecordLWWSuppression(family string) {
	if m == nil {
		return
	}
	m.lwwSuppressions.WithLabelValues(family).Inc()
}

// RecordSetpointRetry increments the retry counter for channel.
func (m *Metrics) RecordSetpointRetry(channel string) {
	if m == nil {
		return
	}
	m.setpointRetries.WithLabelValues(channel).Inc()
}

// RecordSetpointAbandoned increments the abandoned-setpoint counter.
// reason is "retries_exhausted" or "epoch_changed".
func (m *Metrics) RecordSetpointAbandoned(channel, reason string) {
	if m == nil {
		return
	}
	m.setpointAbandoned.WithLabelValues(channel, reason).Inc()
}

// RecordDriverReconnect increments the reconnect counter for app.
func (m *Metrics) RecordDriverReconnect(app string) {
	if m == nil {
		return
	}
	m.driverReconnects.WithLabelValues(app).Inc()
}

// SetDriverStatus records app's current connection status as a gauge
// value (0..3, matching driver.Status's ordinal).
func (m *Metrics) SetDriverStatus(app string, status int) {
	if m == nil {
		return
	}
	m.driverStatus.WithLabelValues(app).Set(float64(status))
}

// SetPageEpoch records the current page epoch.
func (m *Metrics) SetPageEpoch(epoch uint64) {
	if m == nil {
		return
	}
	m.pageEpoch.Set(float64(epoch))
}

// ObserveRefreshDuration records how long a page refresh plan took to execute.
func (m *Metrics) ObserveRefreshDuration(ms float64) {
	if m == nil {
		return
	}
	m.refreshDuration.Observe(ms)
}
