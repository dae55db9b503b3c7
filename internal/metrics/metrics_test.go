// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conjugate/streamform/internal/model"
)

func TestNew_RegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	require.NotNil(t, m.TransformDuration)
	m.TransformDuration.Observe(0.5)
	m.OperatorCount.Set(3)
	m.PECount.Set(2)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRegistry_ObserveErrorLabelsByFailureKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveError(model.NewFailure(model.InvalidParallelWidth, "bad width"))
	m.ObserveError(model.NewFailure(model.InvalidParallelWidth, "bad width again"))
	m.ObserveError(assertError{})

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ErrorsByKind.WithLabelValues("InvalidParallelWidth")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ErrorsByKind.WithLabelValues("unknown")))
}

type assertError struct{}

func (assertError) Error() string { return "not a model.Failure" }
