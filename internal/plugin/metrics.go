// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for lifecycle transition metrics.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusPanic   = "panic"
)

// Transitions is the counter for lifecycle hook executions.
// Use RegisterMetrics to register this with a Prometheus registry.
var Transitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wand_plugin_transitions_total",
		Help: "Total number of plugin lifecycle hook executions",
	},
	[]string{"phase", "status"},
)

// HookDuration is the histogram for lifecycle hook duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var HookDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "wand_plugin_hook_duration_seconds",
		Help:    "Plugin lifecycle hook duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"phase"},
)

// LivePlugins is the number of registered plugin instances.
var LivePlugins = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "wand_plugins_live",
		Help: "Number of registered plugin instances",
	},
)

// RegisterMetrics registers plugin package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Transitions)
	reg.MustRegister(HookDuration)
	reg.MustRegister(LivePlugins)
}

func recordTransition(phase Phase, status string, d time.Duration) {
	Transitions.WithLabelValues(string(phase), status).Inc()
	HookDuration.WithLabelValues(string(phase)).Observe(d.Seconds())
}
