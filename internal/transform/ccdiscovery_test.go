// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	"testing"

	streamio "github.com/conjugate/streamform/internal/io"
	"github.com/conjugate/streamform/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCCRegions_FallsBackToEveryPrimitiveAsEntryPoint(t *testing.T) {
	app := linearApp()
	app.MainComposite.CCRegions = []streamio.CCAnnotation{{LogicalIndex: 1}}

	lm, err := buildLogicalModel(app)
	require.NoError(t, err)
	require.NoError(t, performParallelTransform(lm, Options{}))
	require.NoError(t, computeCCRegions(lm))

	regions := lm.AllCCRegions()
	require.Len(t, regions, 1)

	p1, err := lm.PrimitiveOperator(primitiveIndexByName(t, lm, "p1"))
	require.NoError(t, err)
	p2, err := lm.PrimitiveOperator(primitiveIndexByName(t, lm, "p2"))
	require.NoError(t, err)

	assert.Contains(t, regions[0].Operators(), p1.Index())
	assert.Contains(t, regions[0].Operators(), p2.Index())
}

func TestComputeCCRegions_ObliviousOperatorStopsWalk(t *testing.T) {
	app := linearApp()
	app.MainComposite.CCRegions = []streamio.CCAnnotation{{LogicalIndex: 1}}
	app.MainComposite.Primitives[0].CCAnnotation = &streamio.CCAnnotation{IsStartOfRegion: true}
	app.MainComposite.Primitives[1].CCAnnotation = &streamio.CCAnnotation{IsOblivious: true}

	lm, err := buildLogicalModel(app)
	require.NoError(t, err)
	require.NoError(t, performParallelTransform(lm, Options{}))
	require.NoError(t, computeCCRegions(lm))

	regions := lm.AllCCRegions()
	require.Len(t, regions, 1)

	p1, err := lm.PrimitiveOperator(primitiveIndexByName(t, lm, "p1"))
	require.NoError(t, err)
	p2, err := lm.PrimitiveOperator(primitiveIndexByName(t, lm, "p2"))
	require.NoError(t, err)

	assert.Contains(t, regions[0].Operators(), p1.Index())
	assert.NotContains(t, regions[0].Operators(), p2.Index(), "an oblivious operator is excluded from the region it sits inside")
}

func primitiveIndexByName(t *testing.T, lm *model.LogicalModel, name string) uint64 {
	t.Helper()
	for _, prim := range lm.AllPrimitiveOperators() {
		if prim.LogicalName() == name {
			return prim.Index()
		}
	}
	t.Fatalf("no primitive named %q", name)
	return 0
}
