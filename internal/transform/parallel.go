// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	"github.com/conjugate/streamform/internal/model"
)

// performParallelTransform walks the model post-order from the main
// composite, replicating every parallel-annotated composite it finds.
// Innermost regions are replicated first, so by the time an outer
// region clones its subtree the inner region's splitters, mergers, and
// channel replicas are already part of what gets cloned — "replication is
// nested: regions inside regions multiply widths."
//
// Connections crossing a parallel region's boundary are assumed to always
// pass through the region's own composite input/output ports (standard
// composite-nesting discipline); a primitive deep inside a region
// connecting directly to an operator outside it without transiting a
// composite port is not a shape this transform is asked to handle.
func performParallelTransform(lm *model.LogicalModel, opts Options) error {
	return transformComposite(lm, lm.MainCompositeIndex())
}

func transformComposite(lm *model.LogicalModel, compIdx uint64) error {
	comp, err := lm.CompositeOperator(compIdx)
	if err != nil {
		return err
	}
	// Copy Children before recursing: replication appends new siblings to
	// the *parent's* Children list, which may be comp itself.
	children := append([]uint64(nil), comp.Children...)
	for _, childIdx := range children {
		child, err := lm.ModelOperator(childIdx)
		if err != nil {
			return err
		}
		if _, ok := child.(*model.CompositeOperator); ok {
			if err := transformComposite(lm, childIdx); err != nil {
				return err
			}
		}
	}

	region, isRegion := lm.ParallelRegionFor(compIdx)
	if !isRegion || comp.IsMain {
		return nil
	}
	return replicateRegion(lm, comp, region)
}

// replicateRegion performs the full replication of a single parallel
// region: tag channel 0, clone channels 1..W-1, then inject the splitters
// and mergers that stitch the channels back into the parent composite.
func replicateRegion(lm *model.LogicalModel, comp *model.CompositeOperator, region *model.ParallelRegion) error {
	width := region.Width
	tagSubtree(lm, comp, region.Index, 0)

	replicas := make([]*model.CompositeOperator, width)
	replicas[0] = comp
	for k := 1; k < width; k++ {
		clone, err := cloneSubtree(lm, comp, region, int64(k))
		if err != nil {
			return err
		}
		replicas[k] = clone
	}

	// Channel 0 is the original subtree itself: substitute its intrinsics
	// only now, after every clone above was taken from the unrewritten text.
	for _, idx := range collectSubtree(lm, comp) {
		prim, err := lm.PrimitiveOperator(idx)
		if err != nil {
			continue
		}
		for key, expr := range prim.ConfigExpressions {
			rewritten, err := evalIntrinsic(expr, 0, int64(width))
			if err != nil {
				return err
			}
			prim.ConfigExpressions[key] = rewritten
		}
	}

	parentIdx, hasParent := comp.OwningComposite()
	if !hasParent {
		return model.NewOperatorFailure(model.MalformedInput, comp.Index(), "parallel region has no owning composite")
	}
	parent, err := lm.CompositeOperator(parentIdx)
	if err != nil {
		return err
	}
	for k := 1; k < width; k++ {
		parent.Children = append(parent.Children, replicas[k].Index())
	}

	for i := range comp.InputPorts {
		if err := injectSplitter(lm, parent.Index(), comp, replicas, region, i); err != nil {
			return err
		}
	}
	for i := range comp.OutputPorts {
		if err := injectMerger(lm, parent.Index(), comp, replicas, region, i); err != nil {
			return err
		}
	}
	return nil
}

// tagSubtree sets channelIndex/parallelRegion on every operator in the
// subtree rooted at op that does not already belong to a (necessarily
// inner, already-processed) parallel region.
func tagSubtree(lm *model.LogicalModel, op model.Operator, regionIndex uint64, channel int64) {
	if _, already := op.InParallelRegion(); !already {
		if base, ok := operatorBaseOf(op); ok {
			base.SetParallelRegionInfo(regionIndex, channel)
		}
	}
	comp, ok := op.(*model.CompositeOperator)
	if !ok {
		return
	}
	for _, childIdx := range comp.Children {
		child, err := lm.ModelOperator(childIdx)
		if err != nil {
			continue
		}
		tagSubtree(lm, child, regionIndex, channel)
	}
}

// operatorBaseOf returns the mutable *OperatorBase embedded in op so
// callers outside the model package can still flip its replica/channel
// bookkeeping (the model package exposes the mutators but not the struct
// itself; operators satisfy this via their embedded OperatorBase pointer
// receiver methods, so a type switch suffices).
func operatorBaseOf(op model.Operator) (operatorBaseSetter, bool) {
	s, ok := op.(operatorBaseSetter)
	return s, ok
}

// operatorBaseSetter is satisfied by every *OperatorBase-embedding operator
// variant through the promoted methods.
type operatorBaseSetter interface {
	SetParallelRegionInfo(regionIndex uint64, channelIndex int64)
}
