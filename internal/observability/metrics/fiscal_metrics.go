package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/sygmef/pkg/db"
)

const (
	PersistenceReasonDeadlineExceeded     = "deadline_exceeded"
	PersistenceReasonDBLockTimeout        = "db_lock_timeout"
	PersistenceReasonSerializationFailure = "serialization_failure"
	PersistenceReasonUniqueViolation      = "unique_violation"
	PersistenceReasonStateConflict        = "state_conflict"
	PersistenceReasonUnknown              = "unknown"
)

const (
	GatewayOutcomeSuccess = "success"
)

// FiscalMetrics captures e-MECeF gateway health and local persistence drift.
type FiscalMetrics struct {
	gatewayCalls        *prometheus.CounterVec
	gatewayDuration     *prometheus.HistogramVec
	gatewayRetries      *prometheus.CounterVec
	statusTransitions   *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec
	reconciliationTasks *prometheus.CounterVec
}

var (
	fiscalMetricsOnce sync.Once
	fiscalMetrics     *FiscalMetrics
)

// Fiscal returns the singleton fiscal metrics registry.
func Fiscal() *FiscalMetrics {
	return FiscalWithConfig(Config{})
}

// FiscalWithConfig returns the singleton fiscal metrics registry using config
// labels.
func FiscalWithConfig(cfg Config) *FiscalMetrics {
	fiscalMetricsOnce.Do(func() {
		fiscalMetrics = newFiscalMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return fiscalMetrics
}

// ResetFiscalMetricsForTest resets the fiscal metrics singleton for tests.
func ResetFiscalMetricsForTest() {
	fiscalMetricsOnce = sync.Once{}
	fiscalMetrics = nil
}

func newFiscalMetrics(registerer prometheus.Registerer, cfg Config) *FiscalMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	gatewayCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sygmef_emecf_calls_total",
		Help:        "e-MECeF calls by operation and outcome kind.",
		ConstLabels: constLabels,
	}, []string{"operation", "outcome"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "sygmef_emecf_call_duration_seconds",
		Help:        "e-MECeF call latency including retries.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		ConstLabels: constLabels,
	}, []string{"operation"})
	gatewayRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sygmef_emecf_retries_total",
		Help:        "e-MECeF attempts beyond the first one.",
		ConstLabels: constLabels,
	}, []string{"operation"})
	statusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sygmef_invoice_status_transitions_total",
		Help:        "Local invoice status transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	persistenceFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sygmef_invoice_persistence_failures_total",
		Help:        "Local writes that failed after the authority accepted the operation.",
		ConstLabels: constLabels,
	}, []string{"operation", "reason"})
	reconciliationTasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sygmef_reconciliation_tasks_total",
		Help:        "Reconciliation tasks opened by kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})

	registerer.MustRegister(
		gatewayCalls,
		gatewayDuration,
		gatewayRetries,
		statusTransitions,
		persistenceFailures,
		reconciliationTasks,
	)

	return &FiscalMetrics{
		gatewayCalls:        gatewayCalls,
		gatewayDuration:     gatewayDuration,
		gatewayRetries:      gatewayRetries,
		statusTransitions:   statusTransitions,
		persistenceFailures: persistenceFailures,
		reconciliationTasks: reconciliationTasks,
	}
}

// ObserveGatewayCall records one logical gateway call. outcome is either
// GatewayOutcomeSuccess or the remote error kind.
func (m *FiscalMetrics) ObserveGatewayCall(operation, outcome string, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(operation, outcome).Inc()
	m.gatewayDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if attempts > 1 {
		m.gatewayRetries.WithLabelValues(operation).Add(float64(attempts - 1))
	}
}

func (m *FiscalMetrics) IncStatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(strings.ToLower(from), strings.ToLower(to)).Inc()
}

// IncPersistenceFailure counts a local write failure with a low-cardinality
// reason derived from err.
func (m *FiscalMetrics) IncPersistenceFailure(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.persistenceFailures.WithLabelValues(operation, ClassifyPersistenceReason(err)).Inc()
}

func (m *FiscalMetrics) IncReconciliationTask(kind string) {
	if m == nil {
		return
	}
	m.reconciliationTasks.WithLabelValues(kind).Inc()
}

// ErrStateConflict marks a compare-and-set that matched no row.
var ErrStateConflict = errors.New("state_conflict")

// ClassifyPersistenceReason maps local write errors to low-cardinality
// reasons.
func ClassifyPersistenceReason(err error) string {
	if err == nil {
		return PersistenceReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return PersistenceReasonDeadlineExceeded
	}
	if errors.Is(err, ErrStateConflict) {
		return PersistenceReasonStateConflict
	}
	if isDBLockTimeout(err) {
		return PersistenceReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return PersistenceReasonSerializationFailure
	}
	if db.IsDuplicateKeyErr(err) {
		return PersistenceReasonUniqueViolation
	}
	return PersistenceReasonUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
