// SPDX-FileCopyrightText: © 2026 The pageclone Authors
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package metrics exposes the application's prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pageclone"

// Metrics holds the collectors of one registry.
type Metrics struct {
	registry *prometheus.Registry

	fetchRequests  *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	clones         *prometheus.CounterVec
	cloneDuration  prometheus.Histogram
	resources      *prometheus.CounterVec
	serverRequests *prometheus.CounterVec
}

// New returns a [Metrics] instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "requests_total",
			Help:      "Outgoing resource requests by status code.",
		}, []string{"code"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "request_duration_seconds",
			Help:      "Duration of outgoing resource requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{}),
		clones: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clones_total",
			Help:      "Clone operations by result.",
		}, []string{"result"}),
		cloneDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clone_duration_seconds",
			Help:      "Duration of successful clone operations.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resources_total",
			Help:      "Discovered resources by inlining result.",
		}, []string{"result"}),
		serverRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Served HTTP requests by status code and method.",
		}, []string{"code", "method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetchRequests,
		m.fetchDuration,
		m.clones,
		m.cloneDuration,
		m.resources,
		m.serverRequests,
	)

	return m
}

// Handler returns the /metrics handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RoundTripper instruments an [http.RoundTripper] with the fetch metrics.
func (m *Metrics) RoundTripper(next http.RoundTripper) http.RoundTripper {
	return promhttp.InstrumentRoundTripperCounter(m.fetchRequests,
		promhttp.InstrumentRoundTripperDuration(m.fetchDuration, next),
	)
}

// Middleware counts served requests.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.serverRequests, next)
}

// ObserveClone records the outcome of a clone operation.
func (m *Metrics) ObserveClone(d time.Duration, inlined, failed int, err error) {
	if err != nil {
		m.clones.WithLabelValues("failure").Inc()
		return
	}

	m.clones.WithLabelValues("success").Inc()
	m.cloneDuration.Observe(d.Seconds())
	m.resources.WithLabelValues("inlined").Add(float64(inlined))
	m.resources.WithLabelValues("failed").Add(float64(failed))
}
