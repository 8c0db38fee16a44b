// Package metrics exposes Prometheus counters for ledger activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cardledger"

// Metrics holds the ledger collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	transfersTotal     *prometheus.CounterVec
	cardOpsTotal       *prometheus.CounterVec
	blockRequestsTotal *prometheus.CounterVec
	cryptoFailures     prometheus.Counter
	cardsExpiredTotal  prometheus.Counter
	sweepRunsTotal     *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		transfersTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "transfer",
				Name:      "total",
				Help:      "Transfers by final status.",
			},
			[]string{"status"},
		),
		cardOpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "card",
				Name:      "operations_total",
				Help:      "Card ledger operations by operation and result.",
			},
			[]string{"operation", "result"},
		),
		blockRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "block_request",
				Name:      "total",
				Help:      "Block request events by action.",
			},
			[]string{"action"},
		),
		cryptoFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pan",
				Name:      "integrity_failures_total",
				Help:      "Card numbers that failed to decrypt or verify.",
			},
		),
		cardsExpiredTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "card",
				Name:      "expired_total",
				Help:      "Cards moved to EXPIRED by the expiry sweep.",
			},
		),
		sweepRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "card",
				Name:      "expiry_sweep_runs_total",
				Help:      "Expiry sweep runs by result.",
			},
			[]string{"result"},
		),
		retriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "conflict_retries_total",
				Help:      "Retries after a concurrent update, by operation.",
			},
			[]string{"operation"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveTransfer(status string) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveCardOp(operation string, err error) {
	if m == nil {
		return
	}
	m.cardOpsTotal.WithLabelValues(operation, result(err)).Inc()
}

func (m *Metrics) ObserveBlockRequest(action string) {
	if m == nil {
		return
	}
	m.blockRequestsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveCryptoFailure() {
	if m == nil {
		return
	}
	m.cryptoFailures.Inc()
}

func (m *Metrics) ObserveExpirySweep(expired int64, err error) {
	if m == nil {
		return
	}
	m.sweepRunsTotal.WithLabelValues(result(err)).Inc()
	if expired > 0 {
		m.cardsExpiredTotal.Add(float64(expired))
	}
}

func (m *Metrics) ObserveRetry(operation string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(operation).Inc()
}
