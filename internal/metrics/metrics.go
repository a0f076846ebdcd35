// Package metrics exports Prometheus metrics and the health endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/akarazhev/crypto-scout-collector-sub000/internal/breaker"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/collector"
	"github.com/akarazhev/crypto-scout-collector-sub000/internal/stream"
)

// Metrics holds all Prometheus metrics for the collector service.
type Metrics struct {
	// Collector flushes
	FlushesTotal  *prometheus.CounterVec   // labels: collector, trigger
	FlushDuration *prometheus.HistogramVec // labels: collector
	RowsWritten   *prometheus.CounterVec   // labels: collector
	SaveErrors    *prometheus.CounterVec   // labels: collector, route
	Rejected      *prometheus.CounterVec   // labels: collector

	// Stream progress
	CommittedOffset *prometheus.GaugeVec   // labels: stream
	InvalidMessages *prometheus.CounterVec // labels: stream
	Reconnects      *prometheus.CounterVec // labels: stream
	SubscriberUp    *prometheus.GaugeVec   // labels: stream

	// Analyst
	AnalystBars *prometheus.CounterVec // labels: result=accepted|rejected

	// Circuit breaker
	BreakerState *prometheus.GaugeVec   // labels: breaker; 0=closed, 1=open, 2=half-open
	BreakerTrips *prometheus.CounterVec // labels: breaker

	// Query surface
	RPCRequests *prometheus.CounterVec   // labels: method, status
	RPCDuration *prometheus.HistogramVec // labels: method
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FlushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_flushes_total",
			Help: "Completed flushes by trigger",
		}, []string{"collector", "trigger"}),
		FlushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_flush_duration_seconds",
			Help:    "Flush latency including the SQLite commit",
			Buckets: prometheus.DefBuckets,
		}, []string{"collector"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_rows_written_total",
			Help: "Rows persisted",
		}, []string{"collector"}),
		SaveErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_save_errors_total",
			Help: "Batches dropped because persistence failed",
		}, []string{"collector", "route"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_rejected_payloads_total",
			Help: "Payloads rejected for an unsupported provider",
		}, []string{"collector"}),

		CommittedOffset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collector_committed_offset",
			Help: "Last committed stream offset",
		}, []string{"stream"}),
		InvalidMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_invalid_messages_total",
			Help: "Stream messages skipped because they could not be decoded",
		}, []string{"stream"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_subscriber_reconnects_total",
			Help: "Subscription reconnection attempts",
		}, []string{"stream"}),
		SubscriberUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collector_subscriber_up",
			Help: "Subscription state (0=down, 1=up)",
		}, []string{"stream"}),

		AnalystBars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_analyst_bars_total",
			Help: "Candles offered to the indicator calculator",
		}, []string{"result"}),

		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collector_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_circuit_breaker_trips_total",
			Help: "Times the circuit breaker tripped open",
		}, []string{"breaker"}),

		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_rpc_requests_total",
			Help: "Query requests by method and outcome",
		}, []string{"method", "status"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_rpc_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method"}),
	}

	reg.MustRegister(
		m.FlushesTotal,
		m.FlushDuration,
		m.RowsWritten,
		m.SaveErrors,
		m.Rejected,
		m.CommittedOffset,
		m.InvalidMessages,
		m.Reconnects,
		m.SubscriberUp,
		m.AnalystBars,
		m.BreakerState,
		m.BreakerTrips,
		m.RPCRequests,
		m.RPCDuration,
	)
	return m
}

// CollectorHooks returns hooks feeding the flush metrics. h may be nil.
func (m *Metrics) CollectorHooks(h *HealthStatus) collector.Hooks {
	return collector.Hooks{
		OnFlush: func(s collector.FlushStats) {
			m.FlushesTotal.WithLabelValues(s.Collector, s.Trigger).Inc()
			m.FlushDuration.WithLabelValues(s.Collector).Observe(s.Duration.Seconds())
			m.RowsWritten.WithLabelValues(s.Collector).Add(float64(s.Rows))
			if h != nil && s.Failed == 0 {
				h.SetLastFlush(time.Now())
			}
		},
		OnSaveError: func(c, route string, _ error) {
			m.SaveErrors.WithLabelValues(c, route).Inc()
		},
		OnReject: func(c string) {
			m.Rejected.WithLabelValues(c).Inc()
		},
		OnOffset: func(s string, offset int64) {
			m.CommittedOffset.WithLabelValues(s).Set(float64(offset))
		},
	}
}

// SubscriberHooks returns hooks feeding the subscription metrics and h.
func (m *Metrics) SubscriberHooks(h *HealthStatus) stream.Hooks {
	return stream.Hooks{
		OnUp: func(s string) {
			m.SubscriberUp.WithLabelValues(s).Set(1)
			h.SetSubscription(s, true)
		},
		OnReconnect: func(s string, _ int) {
			m.Reconnects.WithLabelValues(s).Inc()
			m.SubscriberUp.WithLabelValues(s).Set(0)
		},
		OnDown: func(s string, _ error) {
			m.SubscriberUp.WithLabelValues(s).Set(0)
			h.SetSubscription(s, false)
		},
	}
}

// OnInvalid counts an undecodable stream message.
func (m *Metrics) OnInvalid(s string) { m.InvalidMessages.WithLabelValues(s).Inc() }

// OnBar counts a candle offered to the calculator.
func (m *Metrics) OnBar(accepted bool) {
	if accepted {
		m.AnalystBars.WithLabelValues("accepted").Inc()
		return
	}
	m.AnalystBars.WithLabelValues("rejected").Inc()
}

// OnRequest records one dispatched query.
func (m *Metrics) OnRequest(method, status string, took time.Duration) {
	m.RPCRequests.WithLabelValues(method, status).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(took.Seconds())
}

// WatchBreaker exports b's state transitions.
func (m *Metrics) WatchBreaker(b *breaker.Breaker) {
	m.BreakerState.WithLabelValues(b.Name()).Set(float64(b.State()))
	b.OnStateChange = func(name string, _, to breaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.StateOpen {
			m.BreakerTrips.WithLabelValues(name).Inc()
		}
	}
}
