// Copyright 2025 The MiReporTec Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the Prometheus instruments of the service.
//
// A nil *Metrics is valid and records nothing, so packages can take one as an
// optional dependency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mireportec"

// Metrics holds the Prometheus counters and histograms.
type Metrics struct {
	GeocodeRequests *prometheus.CounterVec   // labels: provider, outcome={success,empty,rate_limit,quota,timeout,network,error}
	GeocodeDuration *prometheus.HistogramVec // labels: provider
	Assignments     *prometheus.CounterVec   // labels: tier={district,display_name,canton,none,no_province,incomplete}
	Searches        prometheus.Counter
	ReportsCreated  prometheus.Counter
	ReportMutations *prometheus.CounterVec // labels: kind={vote,comment,status,update,delete,reassign}
}

// New creates the metrics and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		GeocodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_duration_seconds",
			Help:      "Reverse geocoding request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		Assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "municipality_assignments_total",
			Help:      "Municipality assignments by the matching tier that resolved them.",
		}, []string{"tier"}),
		Searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_searches_total",
			Help:      "Report searches served.",
		}),
		ReportsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_created_total",
			Help:      "Reports created by citizens.",
		}),
		ReportMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_mutations_total",
			Help:      "Changes applied to existing reports by kind.",
		}, []string{"kind"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.GeocodeRequests,
			m.GeocodeDuration,
			m.Assignments,
			m.Searches,
			m.ReportsCreated,
			m.ReportMutations,
		)
	}

	return m
}

// ObserveGeocode records the outcome and latency of one provider call.
func (m *Metrics) ObserveGeocode(provider, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.GeocodeRequests.WithLabelValues(provider, outcome).Inc()
	m.GeocodeDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveAssignment records which tier resolved a municipality.
func (m *Metrics) ObserveAssignment(tier string) {
	if m == nil {
		return
	}

	m.Assignments.WithLabelValues(tier).Inc()
}

// ObserveSearch counts a search.
func (m *Metrics) ObserveSearch() {
	if m == nil {
		return
	}

	m.Searches.Inc()
}

// ObserveCreated counts a new report.
func (m *Metrics) ObserveCreated() {
	if m == nil {
		return
	}

	m.ReportsCreated.Inc()
}

// ObserveMutation counts a change to an existing report.
func (m *Metrics) ObserveMutation(kind string) {
	if m == nil {
		return
	}

	m.ReportMutations.WithLabelValues(kind).Inc()
}
