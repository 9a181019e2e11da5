package metrics

import "github.com/prometheus/client_golang/prometheus"

// Shared histogram bucket presets so dashboards line up across components.
var (
	// DurationBuckets covers sub-slot latencies from 10ms up to ~20s.
	DurationBuckets = prometheus.ExponentialBuckets(0.01, 2, 12)

	// CountBuckets covers per-block item counts (txs, attestations).
	CountBuckets = prometheus.ExponentialBuckets(1, 2, 12)

	// SizeBuckets covers payload sizes from 256B to ~8MB.
	SizeBuckets = prometheus.ExponentialBuckets(256, 2, 16)
)
