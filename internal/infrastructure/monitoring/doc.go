/*
Package monitoring provides metrics collection for temp storage, spill
buffers and process runs.

# Overview

This package implements Prometheus-based metrics. Collectors are created
against an injected prometheus.Registerer so that several instances (tests,
embedded use) never collide on the default registry.

# Features

- Temp item registrations, deletions, delete failures and active count
- Rename-or-copy outcomes and orphan sweeps
- Spill buffer migrations and bytes per storage tier
- Process runs by terminal state, run duration and pumped bytes

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	timer := monitoring.NewTimer(metrics)
	timer.Running()
	// ... wait for the child ...
	timer.Stop("completed")

# Metrics Endpoint

Expose metrics via the standard Prometheus handler:

	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
*/
package monitoring
