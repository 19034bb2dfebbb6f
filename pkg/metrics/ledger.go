package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks credit movements and metering outcomes.
type LedgerMetrics struct {
	creditsGranted   *prometheus.CounterVec
	creditsConsumed  *prometheus.CounterVec
	usageDuplicates  prometheus.Counter
	insufficient     prometheus.Counter
	rateLimitDenials *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
// A nil registerer yields a no-op instance.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	granted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lumora_credits_granted_total",
		Help: "Credits granted to accounts, by reason.",
	}, []string{"reason"})
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lumora_credits_consumed_total",
		Help: "Credits consumed by metered usage, by event type.",
	}, []string{"event_type"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lumora_usage_duplicates_total",
		Help: "Usage submissions replayed with an already-recorded request id.",
	})
	insufficient := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lumora_usage_insufficient_credits_total",
		Help: "Usage submissions rejected for insufficient balance.",
	})
	denials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lumora_rate_limit_denials_total",
		Help: "Requests rejected by the rate limiter, by scope.",
	}, []string{"scope"})
	reg.MustRegister(granted, consumed, duplicates, insufficient, denials)
	return &LedgerMetrics{
		creditsGranted:   granted,
		creditsConsumed:  consumed,
		usageDuplicates:  duplicates,
		insufficient:     insufficient,
		rateLimitDenials: denials,
	}
}

// AddGranted records credits granted for a reason.
func (m *LedgerMetrics) AddGranted(reason string, amount int64) {
	if m == nil || m.creditsGranted == nil {
		return
	}
	m.creditsGranted.WithLabelValues(normalizeLabel(reason)).Add(float64(amount))
}

// AddConsumed records credits consumed for an event type.
func (m *LedgerMetrics) AddConsumed(eventType string, amount int64) {
	if m == nil || m.creditsConsumed == nil {
		return
	}
	m.creditsConsumed.WithLabelValues(normalizeLabel(eventType)).Add(float64(amount))
}

// IncDuplicate counts an idempotent replay of a usage submission.
func (m *LedgerMetrics) IncDuplicate() {
	if m == nil || m.usageDuplicates == nil {
		return
	}
	m.usageDuplicates.Inc()
}

// IncInsufficient counts a usage submission rejected for balance.
func (m *LedgerMetrics) IncInsufficient() {
	if m == nil || m.insufficient == nil {
		return
	}
	m.insufficient.Inc()
}

// IncRateLimited counts a request denied by the rate limiter.
func (m *LedgerMetrics) IncRateLimited(scope string) {
	if m == nil || m.rateLimitDenials == nil {
		return
	}
	m.rateLimitDenials.WithLabelValues(normalizeLabel(scope)).Inc()
}
