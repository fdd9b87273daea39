package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type VaultMetrics struct {
	operations      *prometheus.CounterVec
	stagedCandidate *prometheus.CounterVec
	feesEarned      *prometheus.GaugeVec
	lastPrice       *prometheus.GaugeVec
	priceDrift      *prometheus.HistogramVec
}

var (
	vaultOnce     sync.Once
	vaultRegistry *VaultMetrics
)

// Vault returns the process-wide vault metrics, registering them on first use.
func Vault() *VaultMetrics {
	vaultOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operations_total",
				Help: "Count of guarded vault operations by operation and result.",
			}, []string{"op", "result"}),
			stagedCandidate: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_rebalance_candidates_total",
				Help: "Number of rebalance candidates staged by the price monitor.",
			}, []string{"vault"}),
			feesEarned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "vault_total_fees_earned",
				Help: "Cumulative harvested fees per vault.",
			}, []string{"vault"}),
			lastPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "vault_last_price",
				Help: "Last recorded price sample per vault.",
			}, []string{"vault"}),
			priceDrift: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "vault_price_drift_percent",
				Help:    "Observed drift between consecutive price samples.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100},
			}, []string{"vault"}),
		}
		prometheus.MustRegister(
			vaultRegistry.operations,
			vaultRegistry.stagedCandidate,
			vaultRegistry.feesEarned,
			vaultRegistry.lastPrice,
			vaultRegistry.priceDrift,
		)
	})
	return vaultRegistry
}

func (m *VaultMetrics) ObserveOperation(op, result string) {
	if m == nil {
		return
	}
	if result == "" {
		result = "unknown"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *VaultMetrics) ObserveCandidate(vault string) {
	if m == nil {
		return
	}
	m.stagedCandidate.WithLabelValues(vault).Inc()
}

func (m *VaultMetrics) SetFeesEarned(vault string, total uint64) {
	if m == nil {
		return
	}
	m.feesEarned.WithLabelValues(vault).Set(float64(total))
}

func (m *VaultMetrics) ObservePrice(vault string, price, driftPct float64) {
	if m == nil {
		return
	}
	m.lastPrice.WithLabelValues(vault).Set(price)
	m.priceDrift.WithLabelValues(vault).Observe(driftPct)
}
