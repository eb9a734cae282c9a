// Package metrics defines and registers the coordinator's Prometheus
// metrics: node and blob gauges sampled by Collector, the orphan and
// rebalance-move counters incremented by the coordinator, and the
// /health, /ready and /live checks used by operators and orchestrators
// to probe the process. The API request, placement, query and
// rebalance-cycle metrics are registered, but no component observes
// them.
package metrics
