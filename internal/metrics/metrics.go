// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

// Package metrics defines the prometheus collectors streamformd exposes on
// GET /metrics: one histogram for transform duration, gauges for the shape
// of the last physical model produced, a counter for CC-region merges, and
// an error counter broken down by model.FailureKind. The CC-region merge
// counter is registered but nothing in this module increments it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/conjugate/streamform/internal/model"
)

// Registry bundles every collector streamformd registers once at startup
// and updates per request, constructor-injected into the HTTP handlers
// rather than reached through package-level globals.
type Registry struct {
	TransformDuration prometheus.Histogram
	OperatorCount     prometheus.Gauge
	PECount           prometheus.Gauge
	CCMergeCount      prometheus.Counter
	ErrorsByKind      *prometheus.CounterVec
}

// New constructs a Registry and registers every collector against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		TransformDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "streamform",
			Name:      "transform_duration_seconds",
			Help:      "Duration of a single transform.Run invocation.",
			Buckets:   prometheus.DefBuckets,
		}),
		OperatorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamform",
			Name:      "physical_operator_count",
			Help:      "Number of physical operators produced by the last transform.",
		}),
		PECount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "streamform",
			Name:      "physical_pe_count",
			Help:      "Number of processing elements produced by the last transform.",
		}),
		CCMergeCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "streamform",
			Name:      "cc_region_merges_total",
			Help:      "Total number of consistent-cut region merges performed.",
		}),
		ErrorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamform",
			Name:      "transform_errors_total",
			Help:      "Total transform failures, labeled by model.FailureKind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.TransformDuration, m.OperatorCount, m.PECount, m.CCMergeCount, m.ErrorsByKind)
	return m
}

// ObserveError increments the ErrorsByKind counter for err's FailureKind, or
// the "unknown" label when err is not a *model.Failure.
func (m *Registry) ObserveError(err error) {
	kind := "unknown"
	var f *model.Failure
	if asFailure(err, &f) {
		kind = f.Kind.String()
	}
	m.ErrorsByKind.WithLabelValues(kind).Inc()
}

func asFailure(err error, target **model.Failure) bool {
	f, ok := err.(*model.Failure)
	if !ok {
		return false
	}
	*target = f
	return true
}
