// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogicalModel_AddOperatorRejectsDuplicateIndex(t *testing.T) {
	lm := NewLogicalModel()
	idx := lm.NextOperatorIndex()

	require.NoError(t, lm.AddOperator(&PrimitiveOperator{OperatorBase: NewOperatorBase(idx, "p1")}))

	err := lm.AddOperator(&PrimitiveOperator{OperatorBase: NewOperatorBase(idx, "p1-dup")})
	require.Error(t, err)
	failure, ok := err.(*Failure)
	require.True(t, ok)
	assert.Equal(t, MalformedInput, failure.Kind)
}

func TestLogicalModel_PrimitiveAndCompositeOperatorRejectWrongKind(t *testing.T) {
	lm := NewLogicalModel()
	primIdx := lm.NextOperatorIndex()
	compIdx := lm.NextOperatorIndex()

	require.NoError(t, lm.AddOperator(&PrimitiveOperator{OperatorBase: NewOperatorBase(primIdx, "p1")}))
	require.NoError(t, lm.AddOperator(&CompositeOperator{OperatorBase: NewOperatorBase(compIdx, "main"), IsMain: true}))

	_, err := lm.PrimitiveOperator(compIdx)
	require.Error(t, err)

	_, err = lm.CompositeOperator(primIdx)
	require.Error(t, err)

	prim, err := lm.PrimitiveOperator(primIdx)
	require.NoError(t, err)
	assert.Equal(t, "p1", prim.LogicalName())

	comp, err := lm.CompositeOperator(compIdx)
	require.NoError(t, err)
	assert.True(t, comp.IsMain)
}

func TestLogicalModel_AllPrimitiveOperatorsOrderedByIndex(t *testing.T) {
	lm := NewLogicalModel()
	third := lm.NextOperatorIndex()
	first := lm.NextOperatorIndex()
	second := lm.NextOperatorIndex()

	require.NoError(t, lm.AddOperator(&PrimitiveOperator{OperatorBase: NewOperatorBase(third, "c")}))
	require.NoError(t, lm.AddOperator(&PrimitiveOperator{OperatorBase: NewOperatorBase(first, "a")}))
	require.NoError(t, lm.AddOperator(&CompositeOperator{OperatorBase: NewOperatorBase(second, "main")}))

	prims := lm.AllPrimitiveOperators()
	require.Len(t, prims, 2)
	assert.Equal(t, third, prims[0].Index())
	assert.Equal(t, first, prims[1].Index())
}

func TestLogicalModel_ImportedAndExportedStreamLookup(t *testing.T) {
	lm := NewLogicalModel()
	lm.RegisterImportedStream(&ImportedStream{OperatorName: "src"})
	lm.RegisterExportedStream(&ExportedStream{OperatorName: "sink"})

	s, ok := lm.FindImportedStream("src")
	require.True(t, ok)
	assert.Equal(t, "src", s.OperatorName)

	_, ok = lm.FindImportedStream("missing")
	assert.False(t, ok)

	e, ok := lm.FindExportedStream("sink")
	require.True(t, ok)
	assert.Equal(t, "sink", e.OperatorName)
}

func TestLogicalModel_ParallelRegionRegistrationAndLookup(t *testing.T) {
	lm := NewLogicalModel()
	region := &ParallelRegion{OperIndex: 4, Width: 3}
	lm.RegisterParallelRegion(region)

	got, ok := lm.ParallelRegionFor(4)
	require.True(t, ok)
	assert.Equal(t, 3, got.Width)

	_, ok = lm.ParallelRegionFor(99)
	assert.False(t, ok)
	assert.Len(t, lm.AllParallelRegions(), 1)
}

func TestLogicalModel_CanonicalCCRegionsDeduplicatesMergedRegions(t *testing.T) {
	lm := NewLogicalModel()
	a := NewCCRegion(lm.NextRegionIndex(), 5, true, 1.0, 1.0)
	b := NewCCRegion(lm.NextRegionIndex(), 2, true, 1.0, 1.0)
	lm.AddCCRegion(a)
	lm.AddCCRegion(b)

	canonical := Merge(a, b)

	got := lm.CanonicalCCRegions()
	require.Len(t, got, 1)
	assert.Same(t, canonical, got[0])
}

func TestLogicalModel_HostpoolRegistrationOrderedByIndex(t *testing.T) {
	lm := NewLogicalModel()
	lm.AddHostpool(&Hostpool{Index: 2, Name: "b"})
	lm.AddHostpool(&Hostpool{Index: 0, Name: "a"})

	all := lm.AllHostpools()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)

	hp, err := lm.Hostpool(2)
	require.NoError(t, err)
	assert.Equal(t, "b", hp.Name)

	_, err = lm.Hostpool(99)
	assert.Error(t, err)
}
