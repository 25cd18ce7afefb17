package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the policy module.
type Metrics struct {
	// Ledger operations by outcome
	PoliciesCreated  *prometheus.CounterVec
	SharesPurchased  *prometheus.CounterVec
	PoliciesExpired  *prometheus.CounterVec
	SharesRedeemed   *prometheus.CounterVec
	IndicatorUpdates *prometheus.CounterVec

	// Policies flipped Active -> Claimable per indicator
	ClaimableTransitions *prometheus.CounterVec

	// Duration of an indicator update including the bound-policy scan
	UpdateScanLatency prometheus.Histogram
}

// New creates a new Metrics instance with all policy module metrics registered.
func New() *Metrics {
	return &Metrics{
		PoliciesCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "indexcover_policies_created_total",
			Help: "Total policy creations by outcome",
		}, []string{"outcome"}), // outcome: "ok", "rejected", "error"

		SharesPurchased: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "indexcover_shares_purchased_total",
			Help: "Total share purchases by outcome",
		}, []string{"outcome"}),

		PoliciesExpired: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "indexcover_policies_expired_total",
			Help: "Total policy expiries by outcome",
		}, []string{"outcome"}),

		SharesRedeemed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "indexcover_shares_redeemed_total",
			Help: "Total share redemptions by outcome",
		}, []string{"outcome"}),

		IndicatorUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "indexcover_indicator_updates_total",
			Help: "Total accepted indicator updates by indicator",
		}, []string{"indicator"}),

		ClaimableTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "indexcover_claimable_transitions_total",
			Help: "Policies flipped to claimable by indicator",
		}, []string{"indicator"}),

		UpdateScanLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "indexcover_update_scan_duration_seconds",
			Help:    "Duration of an indicator update including the bound-policy scan",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// IncrementCreated records a policy creation attempt.
func (m *Metrics) IncrementCreated(outcome string) {
	if m != nil {
		m.PoliciesCreated.WithLabelValues(outcome).Inc()
	}
}

// IncrementPurchased records a share purchase attempt.
func (m *Metrics) IncrementPurchased(outcome string) {
	if m != nil {
		m.SharesPurchased.WithLabelValues(outcome).Inc()
	}
}

// IncrementExpired records an expiry attempt.
func (m *Metrics) IncrementExpired(outcome string) {
	if m != nil {
		m.PoliciesExpired.WithLabelValues(outcome).Inc()
	}
}

// IncrementRedeemed records a redemption attempt.
func (m *Metrics) IncrementRedeemed(outcome string) {
	if m != nil {
		m.SharesRedeemed.WithLabelValues(outcome).Inc()
	}
}

// IncrementIndicatorUpdate records an accepted oracle update.
func (m *Metrics) IncrementIndicatorUpdate(indicator string) {
	if m != nil {
		m.IndicatorUpdates.WithLabelValues(indicator).Inc()
	}
}

// AddClaimableTransitions records policies flipped to claimable by one update.
func (m *Metrics) AddClaimableTransitions(indicator string, n int) {
	if m != nil && n > 0 {
		m.ClaimableTransitions.WithLabelValues(indicator).Add(float64(n))
	}
}

// ObserveUpdateScan records the duration of an indicator update.
func (m *Metrics) ObserveUpdateScan(d time.Duration) {
	if m != nil {
		m.UpdateScanLatency.Observe(d.Seconds())
	}
}
