// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge_UnionsOperatorsAndKeepsSmallerLogicalIndexCanonical(t *testing.T) {
	a := NewCCRegion(0, 5, true, 1.0, 1.0)
	a.AddOperator(1)
	b := NewCCRegion(1, 2, true, 1.0, 1.0)
	b.AddOperator(2)

	canonical := Merge(a, b)

	assert.Same(t, b, canonical)
	assert.True(t, a.WasMerged())
	assert.False(t, b.WasMerged())
	assert.ElementsMatch(t, []uint64{1, 2}, canonical.Operators())
}

func TestMerge_IsIdempotentOnAlreadyMergedPair(t *testing.T) {
	a := NewCCRegion(0, 1, true, 1.0, 1.0)
	b := NewCCRegion(1, 2, true, 1.0, 1.0)

	first := Merge(a, b)
	second := Merge(a, b)

	assert.Same(t, first, second)
}

func TestMergedRegion_CompressesPathThroughChain(t *testing.T) {
	a := NewCCRegion(0, 3, true, 1.0, 1.0)
	b := NewCCRegion(1, 2, true, 1.0, 1.0)
	c := NewCCRegion(2, 1, true, 1.0, 1.0)

	Merge(a, b)         // b becomes canonical (2 < 3)
	root := Merge(b, c) // c becomes canonical (1 < 2), b now points at c

	assert.Same(t, c, root)
	assert.Same(t, c, a.MergedRegion())
	assert.Same(t, c, b.MergedRegion())
}

func TestCCInfo_CanonicalizeClearsObliviousAndCollapsesToRoot(t *testing.T) {
	oblivious := NewCCInfo(10)
	oblivious.IsOblivious = true
	oblivious.AddedToRegion(NewCCRegion(0, 1, true, 1.0, 1.0))
	oblivious.Canonicalize()
	assert.Nil(t, oblivious.Regions)

	a := NewCCRegion(0, 5, true, 1.0, 1.0)
	b := NewCCRegion(1, 2, true, 1.0, 1.0)
	canonical := Merge(a, b)

	info := NewCCInfo(11)
	info.AddedToRegion(a)
	info.AddedToRegion(b)
	assert.True(t, info.IsMultiRegion())

	info.Canonicalize()
	assert.Equal(t, []*CCRegion{canonical}, info.Regions)
}

func TestCCInfo_AddedToRegionDeduplicates(t *testing.T) {
	r := NewCCRegion(0, 1, true, 1.0, 1.0)
	info := NewCCInfo(1)
	info.AddedToRegion(r)
	info.AddedToRegion(r)
	assert.Len(t, info.Regions, 1)
	assert.False(t, info.IsMultiRegion())
}
