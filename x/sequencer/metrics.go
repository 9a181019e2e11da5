package sequencer

import (
	"github.com/prometheus/client_golang/prometheus"

	metrics2 "github.com/compose-network/sequencer/metrics"
)

// Metrics holds all sequencer-level metrics
type Metrics struct {
	registry *metrics2.ComponentRegistry

	StateGauge         prometheus.Gauge
	FilledSlots        prometheus.Counter
	FailedBlocks       prometheus.Counter
	TooSlowTotal       *prometheus.CounterVec
	NotReadyTotal      prometheus.Counter
	VoteErrorsTotal    *prometheus.CounterVec
	ForksOutstanding   prometheus.Gauge
	BlockBuildDuration prometheus.Histogram
	TxsPerBlock        prometheus.Histogram
	AttestationWait    prometheus.Histogram
	EvictedTxsTotal    prometheus.Counter
}

// NewMetrics creates sequencer metrics on the given registerer. A nil
// registerer uses the global registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	r := metrics2.NewComponentRegistryOn(reg, "sequencer", "core")

	return &Metrics{
		registry: r,

		StateGauge: r.NewGauge(prometheus.GaugeOpts{
			Name: "state",
			Help: "Current sequencer state",
		}),

		FilledSlots: r.NewCounter(prometheus.CounterOpts{
			Name: "filled_slots_total",
			Help: "Slots in which a block proposal landed on L1",
		}),

		FailedBlocks: r.NewCounter(prometheus.CounterOpts{
			Name: "failed_blocks_total",
			Help: "Block candidates abandoned after assembly started",
		}),

		TooSlowTotal: r.NewCounterVec(prometheus.CounterOpts{
			Name: "too_slow_total",
			Help: "Slot iterations abandoned for missing a phase deadline",
		}, []string{"phase"}),

		NotReadyTotal: r.NewCounter(prometheus.CounterOpts{
			Name: "not_ready_total",
			Help: "Iterations ended early: sources out of sync or not the proposer",
		}),

		VoteErrorsTotal: r.NewCounterVec(prometheus.CounterOpts{
			Name: "vote_errors_total",
			Help: "Governance and slashing vote enqueue failures",
		}, []string{"vote"}),

		ForksOutstanding: r.NewGauge(prometheus.GaugeOpts{
			Name: "forks_outstanding",
			Help: "World-state forks currently open",
		}),

		BlockBuildDuration: r.NewHistogram(prometheus.HistogramOpts{
			Name:    "block_build_duration_seconds",
			Help:    "Time from fork open to completed block",
			Buckets: metrics2.DurationBuckets,
		}),

		TxsPerBlock: r.NewHistogram(prometheus.HistogramOpts{
			Name:    "txs_per_block",
			Help:    "Transactions included per built block",
			Buckets: metrics2.CountBuckets,
		}),

		AttestationWait: r.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestation_wait_seconds",
			Help:    "Time spent collecting committee attestations",
			Buckets: metrics2.DurationBuckets,
		}),

		EvictedTxsTotal: r.NewCounter(prometheus.CounterOpts{
			Name: "evicted_txs_total",
			Help: "Failed transactions removed from the pool after processing",
		}),
	}
}
