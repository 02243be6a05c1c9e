// Package metrics holds Prometheus instruments used across the proxy tier.
// All collectors are registered with the global registry, so serving
// promhttp.Handler() in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_requests_total",
			Help: "Proxied requests by route and browser-facing status code.",
		}, []string{"route", "code"})

	UpstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proxy_upstream_errors_total",
			Help: "Backend calls that failed at the transport level.",
		}, []string{"route"})

	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "proxy_upstream_duration_seconds",
			Help:    "Latency of backend calls by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"})

	RoleGateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_gate_decisions_total",
			Help: "Admin role gate outcomes (granted, denied, unauthenticated, error).",
		}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		ProxyRequestsTotal,
		UpstreamErrorsTotal,
		UpstreamDuration,
		RoleGateDecisionsTotal,
	)
}
