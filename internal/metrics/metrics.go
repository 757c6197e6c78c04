// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics holds the Prometheus instruments for the resolution and
// execution pipeline. Instruments live on an injected registry rather than
// the process-global default, so multiple pipelines can coexist in one
// process and tests stay isolated.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the pipeline's instruments with their registry.
type Metrics struct {
	registry *prometheus.Registry

	// Resolutions counts resolved messages by the provider that handled
	// them: rules, local, cloud, or hybrid.
	Resolutions *prometheus.CounterVec

	// ResolutionDuration observes end-to-end resolve latency.
	ResolutionDuration prometheus.Histogram

	// CacheHits and CacheMisses count dispatcher response-cache lookups.
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Executions counts skill and workflow executions by terminal status.
	Executions *prometheus.CounterVec

	// ExecutionDuration observes execution latency per skill or workflow.
	ExecutionDuration *prometheus.HistogramVec
}

// New creates a metrics bundle backed by a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_resolutions_total",
				Help: "Total resolved messages by provider",
			},
			[]string{"provider"},
		),
		ResolutionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assistant_resolution_duration_seconds",
				Help:    "End-to-end message resolution latency",
				Buckets: prometheus.DefBuckets,
			},
		),
		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assistant_response_cache_hits_total",
				Help: "Dispatcher response cache hits",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "assistant_response_cache_misses_total",
				Help: "Dispatcher response cache misses",
			},
		),
		Executions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_executions_total",
				Help: "Skill and workflow executions by terminal status",
			},
			[]string{"name", "status"},
		),
		ExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_execution_duration_seconds",
				Help:    "Skill and workflow execution latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"name"},
		),
	}
}

// Registry exposes the backing registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
