package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fieldops_"

	resultSuccess = "success"
	resultError   = "error"

	dispatchResultInvalid      = "invalid"
	dispatchResultNotConnected = "not_connected"
	dispatchResultExpired      = "expired"
	dispatchResultDuplicate    = "duplicate"
	dispatchResultPublishError = "publish_error"

	ackOutcomeTerminal     = "terminal"
	ackOutcomeIntermediate = "intermediate"
	ackOutcomeUnknown      = "unknown_command"
	ackOutcomeMalformed    = "malformed"
)

var (
	registerOnce sync.Once

	commandRequests  prometheus.Counter
	dispatchTotal    *prometheus.CounterVec
	dispatchLatency  *prometheus.HistogramVec
	commandResults   *prometheus.CounterVec
	ackTotal         *prometheus.CounterVec
	inFlightCommands prometheus.Gauge
	reconcileTotal   *prometheus.CounterVec

	templateValidations *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		commandRequests = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_requests_total",
				Help: "Total command execution requests",
			},
		)
		dispatchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_dispatch_total",
				Help: "Total dispatch attempts by result",
			},
			[]string{"result"},
		)
		dispatchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "command_dispatch_latency_seconds",
				Help:    "Dispatch latency up to publish confirmation in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		commandResults = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_results_total",
				Help: "Total terminal command results by status",
			},
			[]string{"status"},
		)
		ackTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_acks_total",
				Help: "Total inbound acknowledgments by correlation outcome",
			},
			[]string{"outcome"},
		)
		inFlightCommands = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "commands_in_flight",
				Help: "Commands awaiting a terminal acknowledgment or timeout",
			},
		)
		reconcileTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "command_reconcile_total",
				Help: "Total status reconciliations by result",
			},
			[]string{"result"},
		)
		templateValidations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "template_validations_total",
				Help: "Total template validations by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			commandRequests,
			dispatchTotal,
			dispatchLatency,
			commandResults,
			ackTotal,
			inFlightCommands,
			reconcileTotal,
			templateValidations,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncCommandIssued increments the execution request counter.
func IncCommandIssued() {
	if commandRequests != nil {
		commandRequests.Inc()
	}
}

// ObserveDispatch records dispatch duration and result.
func ObserveDispatch(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if dispatchTotal != nil {
		dispatchTotal.WithLabelValues(result).Inc()
	}
	if dispatchLatency != nil {
		dispatchLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncCommandResult increments the terminal result counter.
func IncCommandResult(status string) {
	if status == "" {
		status = "unknown"
	}
	if commandResults != nil {
		commandResults.WithLabelValues(status).Inc()
	}
}

// IncAck increments the acknowledgment counter.
func IncAck(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if ackTotal != nil {
		ackTotal.WithLabelValues(outcome).Inc()
	}
}

// SetInFlight sets the in-flight command gauge.
func SetInFlight(count int) {
	if count < 0 {
		count = 0
	}
	if inFlightCommands != nil {
		inFlightCommands.Set(float64(count))
	}
}

// IncReconcile increments the reconciliation counter.
func IncReconcile(result string) {
	if result == "" {
		result = resultSuccess
	}
	if reconcileTotal != nil {
		reconcileTotal.WithLabelValues(result).Inc()
	}
}

// IncTemplateValidation increments the template validation counter.
func IncTemplateValidation(result string) {
	if result == "" {
		result = resultSuccess
	}
	if templateValidations != nil {
		templateValidations.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	DispatchResultInvalid      = dispatchResultInvalid
	DispatchResultNotConnected = dispatchResultNotConnected
	DispatchResultExpired      = dispatchResultExpired
	DispatchResultDuplicate    = dispatchResultDuplicate
	DispatchResultPublishError = dispatchResultPublishError

	AckOutcomeTerminal     = ackOutcomeTerminal
	AckOutcomeIntermediate = ackOutcomeIntermediate
	AckOutcomeUnknown      = ackOutcomeUnknown
	AckOutcomeMalformed    = ackOutcomeMalformed
)
