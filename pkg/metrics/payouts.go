package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PayoutMetrics records counters for the payout dispatch pipeline.
type PayoutMetrics struct {
	batches   *prometheus.CounterVec
	transfers *prometheus.CounterVec
	amount    *prometheus.CounterVec
}

// NewPayoutMetrics registers the payout metrics on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_batches_total",
		Help: "Payout batches by terminal status.",
	}, []string{"status"})
	transfers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_transfers_total",
		Help: "Bank transfer dispatch attempts by outcome.",
	}, []string{"outcome"})
	amount := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_amount_minor_total",
		Help: "Total amount paid out in minor units, by currency.",
	}, []string{"currency"})
	reg.MustRegister(batches, transfers, amount)
	return &PayoutMetrics{
		batches:   batches,
		transfers: transfers,
		amount:    amount,
	}
}

// IncBatch increments the batch counter for the given terminal status.
func (p *PayoutMetrics) IncBatch(status string) {
	if p == nil || p.batches == nil {
		return
	}
	p.batches.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncTransfer increments the transfer counter for the given outcome.
func (p *PayoutMetrics) IncTransfer(outcome string) {
	if p == nil || p.transfers == nil {
		return
	}
	p.transfers.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddPaidAmount adds a completed payout amount to the currency counter.
func (p *PayoutMetrics) AddPaidAmount(currency string, amountMinor int64) {
	if p == nil || p.amount == nil || amountMinor <= 0 {
		return
	}
	p.amount.WithLabelValues(normalizeLabel(currency)).Add(float64(amountMinor))
}
