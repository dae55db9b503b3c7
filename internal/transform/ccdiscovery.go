// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	"github.com/conjugate/streamform/internal/model"
)

// computeCCRegions discovers consistent-cut regions after parallel
// expansion. It must run after performParallelTransform so the regions it
// discovers are scoped to the replicated, post-splitter/merger graph
// rather than the pre-replication template.
func computeCCRegions(lm *model.LogicalModel) error {
	for _, op := range lm.AllOperators() {
		comp, ok := op.(*model.CompositeOperator)
		if !ok {
			continue
		}
		for _, ann := range comp.CCAnnotations {
			region := model.NewCCRegion(lm.NextRegionIndex(), ann.LogicalIndex, ann.IsOperatorDriven, ann.DrainTimeout, ann.ResetTimeout)
			lm.AddCCRegion(region)
			if err := populateRegion(lm, comp, region); err != nil {
				return err
			}
		}
	}

	if err := mergeMultiRegionOperators(lm); err != nil {
		return err
	}

	for _, prim := range lm.AllPrimitiveOperators() {
		if prim.CCInfo != nil {
			prim.CCInfo.Canonicalize()
		}
	}
	return nil
}

// populateRegion walks outward from every entry-point primitive nested
// (transitively) inside comp, following output-port -> reverse-connection
// links, stopping at operators marked end-of-region or oblivious. The
// entry points are the primitives inside comp annotated as start-of-region
// operators; when there are none, every primitive inside comp is an entry
// point.
func populateRegion(lm *model.LogicalModel, comp *model.CompositeOperator, region *model.CCRegion) error {
	members := collectSubtree(lm, comp)
	visited := make(map[uint64]bool)

	var entryPoints []uint64
	for _, idx := range members {
		op, err := lm.ModelOperator(idx)
		if err != nil {
			return err
		}
		prim, ok := op.(*model.PrimitiveOperator)
		if !ok || prim.CCInfo == nil {
			continue
		}
		if prim.CCInfo.IsStartOfRegion {
			entryPoints = append(entryPoints, idx)
		}
	}
	if len(entryPoints) == 0 {
		for _, idx := range members {
			op, err := lm.ModelOperator(idx)
			if err != nil {
				return err
			}
			if prim, ok := op.(*model.PrimitiveOperator); ok {
				entryPoints = append(entryPoints, prim.Index())
			}
		}
	}

	for _, idx := range entryPoints {
		if err := walkReachable(lm, idx, region, visited); err != nil {
			return err
		}
	}
	return nil
}

// walkReachable adds operIndex to region (if it is a primitive and not
// oblivious) and recurses along every forward connection on its output
// ports, stopping at operators marked end-of-region or oblivious.
func walkReachable(lm *model.LogicalModel, operIndex uint64, region *model.CCRegion, visited map[uint64]bool) error {
	if visited[operIndex] {
		return nil
	}
	visited[operIndex] = true

	op, err := lm.ModelOperator(operIndex)
	if err != nil {
		return err
	}
	prim, ok := op.(*model.PrimitiveOperator)
	if !ok {
		return nil
	}
	if prim.CCInfo != nil && prim.CCInfo.IsOblivious {
		return nil
	}

	region.AddOperator(prim.Index())
	if prim.CCInfo != nil {
		prim.CCInfo.AddedToRegion(region)
	}
	if prim.CCInfo != nil && prim.CCInfo.IsEndOfRegion {
		return nil
	}

	for _, outPort := range prim.OutputPorts {
		for _, conn := range outPort.Connections() {
			if conn.PortKind != model.Input {
				continue
			}
			if err := walkReachable(lm, conn.OperIndex, region, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// mergeMultiRegionOperators merges overlapping regions: every primitive
// operator belonging to more than one region has all of its containing
// regions transitively merged, with each unordered pair merged at most
// once.
func mergeMultiRegionOperators(lm *model.LogicalModel) error {
	type pairKey struct{ a, b *model.CCRegion }
	merged := make(map[pairKey]bool)

	for _, prim := range lm.AllPrimitiveOperators() {
		if prim.CCInfo == nil || !prim.CCInfo.IsMultiRegion() {
			continue
		}
		regions := prim.CCInfo.Regions
		first := regions[0]
		for _, other := range regions[1:] {
			a, b := first.MergedRegion(), other.MergedRegion()
			if a == b {
				continue
			}
			key := pairKey{a, b}
			if a.Index > b.Index {
				key = pairKey{b, a}
			}
			if merged[key] {
				continue
			}
			merged[key] = true
			model.Merge(a, b)
		}
	}
	return nil
}
