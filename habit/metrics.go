package habit

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the ledger and streak calculator
// =============================================================================

// Recompute triggers.
const (
	triggerMutation = "mutation"
	triggerManual   = "manual"
	triggerLazy     = "lazy"
	triggerRefresh  = "refresh"
)

var (
	// recomputeDuration measures one streak derivation including its store I/O.
	// Labels: trigger (mutation, manual, lazy, refresh)
	recomputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "streakd",
		Subsystem: "streak",
		Name:      "recompute_duration_seconds",
		Help:      "Streak recompute latency in seconds",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
	}, []string{"trigger"})

	// recomputeTotal counts recomputes.
	// Labels: trigger, status (ok, error)
	recomputeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streakd",
		Subsystem: "streak",
		Name:      "recomputes_total",
		Help:      "Total streak recomputes",
	}, []string{"trigger", "status"})

	// ledgerOps counts ledger mutations.
	// Labels: op (insert, update, delete), result (ok, duplicate, not_found, invalid, error)
	ledgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streakd",
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Total completion ledger mutations by result",
	}, []string{"op", "result"})
)

func observeRecompute(trigger string, start time.Time, err error) {
	recomputeDuration.WithLabelValues(trigger).Observe(time.Since(start).Seconds())
	status := "ok"
	if err != nil {
		status = "error"
	}
	recomputeTotal.WithLabelValues(trigger, status).Inc()
}

func observeLedgerOp(op string, err error) {
	ledgerOps.WithLabelValues(op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsNotFound(err):
		return "not_found"
	case errors.Is(err, ErrDuplicateDate):
		return "duplicate"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
