// Package metrics exposes Prometheus metrics for sandbox executions.
//
// Metrics registers its collectors on its own registry so several instances
// can coexist (one per test, for example). Handler serves that registry in the
// Prometheus text format.
package metrics
