// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package bridge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for invocation metrics.
const (
	StatusSuccess    = "success"
	StatusUnresolved = "unresolved"
	StatusShape      = "shape_error"
	StatusDenied     = "denied"
	StatusFault      = "fault"
)

// UnresolvedKey is the key label for calls to unknown bindings. Caller
// supplied keys never become label values.
const UnresolvedKey = "unresolved"

// Invocations is the counter for bridge invocations.
// Use RegisterMetrics to register this with a Prometheus registry.
var Invocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "wand_bridge_invocations_total",
		Help: "Total number of call bridge invocations",
	},
	[]string{"key", "status"},
)

// InvocationDuration is the histogram for native call duration. Only calls
// that reached the native side are observed.
var InvocationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "wand_bridge_invocation_duration_seconds",
		Help:    "Native call duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"key"},
)

// RegisterMetrics registers bridge metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Invocations)
	reg.MustRegister(InvocationDuration)
}

func recordInvocation(key, status string) {
	Invocations.WithLabelValues(key, status).Inc()
}

func recordDuration(key string, d time.Duration) {
	InvocationDuration.WithLabelValues(key).Observe(d.Seconds())
}
