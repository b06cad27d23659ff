// Package metrics records pipeline counters in a private Prometheus registry
// and exports them as a node_exporter textfile at the end of a run.
package metrics
