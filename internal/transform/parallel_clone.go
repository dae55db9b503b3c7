// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	"fmt"

	"github.com/conjugate/streamform/internal/model"
)

// connectionAppender is satisfied by every flat (non-composite) port — the
// four variants that keep a single connections slice rather than a split
// Incoming/Outgoing pair.
type connectionAppender interface {
	AppendConnection(model.Connection)
}

// cloneSubtree deep-clones the composite rooted at root, plus everything
// nested inside it, onto fresh operator indices for replica channel, then
// rewires the clone's interior connections to stay self-contained. External
// (composite-boundary) connections are left pointing at root's original
// neighbors; replicateRegion's splitter/merger injection corrects those
// afterward.
func cloneSubtree(lm *model.LogicalModel, root *model.CompositeOperator, region *model.ParallelRegion, channel int64) (*model.CompositeOperator, error) {
	members := collectSubtree(lm, root)
	indexMap := make(map[uint64]uint64, len(members))
	for _, idx := range members {
		indexMap[idx] = lm.NextOperatorIndex()
	}

	for _, oldIdx := range members {
		oldOp, err := lm.ModelOperator(oldIdx)
		if err != nil {
			return nil, err
		}
		clone, err := cloneOperator(lm, oldOp, indexMap, region, channel)
		if err != nil {
			return nil, err
		}
		if err := lm.AddOperator(clone); err != nil {
			return nil, err
		}
	}

	if err := rewireClonedConnections(lm, members, indexMap); err != nil {
		return nil, err
	}

	clone, err := lm.CompositeOperator(indexMap[root.Index()])
	if err != nil {
		return nil, err
	}
	return clone, nil
}

// collectSubtree returns every operator index reachable from root,
// including root itself, via CompositeOperator.Children.
func collectSubtree(lm *model.LogicalModel, root *model.CompositeOperator) []uint64 {
	var out []uint64
	var walk func(model.Operator)
	walk = func(op model.Operator) {
		out = append(out, op.Index())
		comp, ok := op.(*model.CompositeOperator)
		if !ok {
			return
		}
		for _, childIdx := range comp.Children {
			child, err := lm.ModelOperator(childIdx)
			if err != nil {
				continue
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

// remapOwner returns the clone's owning-composite index: the remapped
// index if the owner is itself part of the cloned subtree, or the original
// owner unchanged if it sits outside it (only true for the subtree root,
// whose parent is never part of what gets cloned).
func remapOwner(old model.Operator, indexMap map[uint64]uint64) (uint64, bool) {
	owner, has := old.OwningComposite()
	if !has {
		return 0, false
	}
	if mapped, ok := indexMap[owner]; ok {
		return mapped, true
	}
	return owner, true
}

// finishClone applies the parallel-region/channel/replica bookkeeping every
// clone needs: an operator already tagged by a strictly inner region (one
// that replicated before this one, per the post-order walk) keeps that
// tag unchanged; everything else is newly attributed to this region and
// channel.
func finishClone(old model.Operator, clone operatorBaseSetter, region *model.ParallelRegion, channel int64) {
	if innerRegion, already := old.InParallelRegion(); already {
		clone.SetParallelRegionInfo(innerRegion, old.ChannelIndex())
		return
	}
	clone.SetParallelRegionInfo(region.Index, channel)
}

func suffixName(name string, channel int64) string {
	return fmt.Sprintf("%s$%d", name, channel)
}

func cloneOperator(lm *model.LogicalModel, old model.Operator, indexMap map[uint64]uint64, region *model.ParallelRegion, channel int64) (model.Operator, error) {
	newIdx := indexMap[old.Index()]
	switch o := old.(type) {
	case *model.PrimitiveOperator:
		return clonePrimitive(lm, o, newIdx, indexMap, region, channel)
	case *model.CompositeOperator:
		return cloneComposite(o, newIdx, indexMap, region, channel), nil
	case *model.ImportOperator:
		return cloneImport(lm, o, newIdx, indexMap, region, channel), nil
	case *model.ExportOperator:
		return cloneExport(lm, o, newIdx, indexMap, region, channel), nil
	case *model.SplitterOperator:
		return cloneSplitter(o, newIdx, indexMap, region, channel), nil
	case *model.MergerOperator:
		return cloneMerger(o, newIdx, indexMap, region, channel), nil
	default:
		return nil, model.NewOperatorFailure(model.MalformedInput, old.Index(), "unknown operator kind during replication")
	}
}

func clonePrimitive(lm *model.LogicalModel, o *model.PrimitiveOperator, newIdx uint64, indexMap map[uint64]uint64, region *model.ParallelRegion, channel int64) (*model.PrimitiveOperator, error) {
	clone := &model.PrimitiveOperator{
		OperatorBase:         newBase(newIdx, suffixName(o.LogicalName(), channel)),
		ToolkitIndex:         o.ToolkitIndex,
		Placement:            o.Placement,
		ColocationConstraint: o.ColocationConstraint,
		ConfigExpressions:    make(map[string]string, len(o.ConfigExpressions)),
	}
	for k, v := range o.ConfigExpressions {
		rewritten, err := evalIntrinsic(v, channel, int64(region.Width))
		if err != nil {
			return nil, err
		}
		clone.ConfigExpressions[k] = rewritten
	}
	if ownerIdx, has := remapOwner(o, indexMap); has {
		clone.SetOwningComposite(ownerIdx)
	}
	if o.OriginalPE != nil {
		pe := *o.OriginalPE
		clone.OriginalPE = &pe
	}
	for _, p := range o.InputPorts {
		clone.InputPorts = append(clone.InputPorts, clonePrimitiveInputPort(p, newIdx))
	}
	for _, p := range o.OutputPorts {
		clone.OutputPorts = append(clone.OutputPorts, clonePrimitiveOutputPort(p, newIdx, channel))
	}
	if o.CCInfo != nil {
		ci := model.NewCCInfo(newIdx)
		ci.IsStartOfRegion = o.CCInfo.IsStartOfRegion
		ci.IsEndOfRegion = o.CCInfo.IsEndOfRegion
		ci.IsOblivious = o.CCInfo.IsOblivious
		for k, v := range o.CCInfo.KeyValues {
			ci.KeyValues[k] = v
		}
		clone.CCInfo = ci
	}
	if o.HostpoolIndex != nil {
		hp, err := lm.Hostpool(*o.HostpoolIndex)
		if err != nil {
			return nil, err
		}
		tags := hp.IntersectTags(region.ReplicateTagSlice())
		if len(tags) > 0 {
			replica, err := hp.FindOrCreateReplica(region.Index, channel, tags, lm.NextHostpoolIndex)
			if err != nil {
				return nil, err
			}
			lm.AddHostpool(replica)
			ridx := replica.Index
			clone.HostpoolIndex = &ridx
		} else {
			hidx := *o.HostpoolIndex
			clone.HostpoolIndex = &hidx
		}
	}
	clone.MarkReplica()
	finishClone(o, clone, region, channel)
	return clone, nil
}

func clonePrimitiveInputPort(p *model.PrimitiveInputPort, newOwner uint64) *model.PrimitiveInputPort {
	np := &model.PrimitiveInputPort{
		PortBase:       model.NewPortBase(p.Index(), newOwner),
		Name:           p.Name,
		Transport:      p.Transport,
		Encoding:       p.Encoding,
		TupleTypeIndex: p.TupleTypeIndex,
		IsMutable:      p.IsMutable,
		IsControl:      p.IsControl,
	}
	if p.ThreadedPort != nil {
		tp := *p.ThreadedPort
		np.ThreadedPort = &tp
	}
	return np
}

func clonePrimitiveOutputPort(p *model.PrimitiveOutputPort, newOwner uint64, channel int64) *model.PrimitiveOutputPort {
	np := &model.PrimitiveOutputPort{
		PortBase:               model.NewPortBase(p.Index(), newOwner),
		Name:                   p.Name,
		Transport:              p.Transport,
		Encoding:               p.Encoding,
		TupleTypeIndex:         p.TupleTypeIndex,
		IsMutable:              p.IsMutable,
		StreamName:             p.StreamName,
		SingleThreadedOnOutput: p.SingleThreadedOnOutput,
	}
	if p.Viewable != nil {
		np.Viewable = &model.Viewable{Name: fmt.Sprintf("%s$%d", p.Viewable.Name, channel)}
	}
	return np
}

func cloneComposite(o *model.CompositeOperator, newIdx uint64, indexMap map[uint64]uint64, region *model.ParallelRegion, channel int64) *model.CompositeOperator {
	clone := &model.CompositeOperator{
		OperatorBase:  newBase(newIdx, suffixName(o.LogicalName(), channel)),
		CCAnnotations: append([]model.CCRegionAnnotation(nil), o.CCAnnotations...),
	}
	if ownerIdx, has := remapOwner(o, indexMap); has {
		clone.SetOwningComposite(ownerIdx)
	}
	for _, childIdx := range o.Children {
		clone.Children = append(clone.Children, indexMap[childIdx])
	}
	for _, p := range o.InputPorts {
		clone.InputPorts = append(clone.InputPorts, &model.CompositeInputPort{PortBase: model.NewPortBase(p.Index(), newIdx)})
	}
	for _, p := range o.OutputPorts {
		clone.OutputPorts = append(clone.OutputPorts, &model.CompositeOutputPort{PortBase: model.NewPortBase(p.Index(), newIdx)})
	}
	clone.MarkReplica()
	finishClone(o, clone, region, channel)
	return clone
}

func cloneImport(lm *model.LogicalModel, o *model.ImportOperator, newIdx uint64, indexMap map[uint64]uint64, region *model.ParallelRegion, channel int64) *model.ImportOperator {
	newName := suffixName(o.LogicalName(), channel)
	clone := &model.ImportOperator{OperatorBase: newBase(newIdx, newName)}
	if ownerIdx, has := remapOwner(o, indexMap); has {
		clone.SetOwningComposite(ownerIdx)
	}
	clone.OutputPort = &model.ImportOutputPort{
		PortBase:       model.NewPortBase(o.OutputPort.Index(), newIdx),
		TupleTypeIndex: o.OutputPort.TupleTypeIndex,
	}
	if o.Stream != nil {
		s := *o.Stream
		s.OperatorName = newName
		clone.Stream = &s
		lm.RegisterImportedStream(&s)
	}
	clone.MarkReplica()
	finishClone(o, clone, region, channel)
	return clone
}

func cloneExport(lm *model.LogicalModel, o *model.ExportOperator, newIdx uint64, indexMap map[uint64]uint64, region *model.ParallelRegion, channel int64) *model.ExportOperator {
	newName := suffixName(o.LogicalName(), channel)
	clone := &model.ExportOperator{OperatorBase: newBase(newIdx, newName)}
	if ownerIdx, has := remapOwner(o, indexMap); has {
		clone.SetOwningComposite(ownerIdx)
	}
	clone.InputPort = &model.ExportInputPort{
		PortBase:       model.NewPortBase(o.InputPort.Index(), newIdx),
		TupleTypeIndex: o.InputPort.TupleTypeIndex,
	}
	if o.Stream != nil {
		s := *o.Stream
		s.OperatorName = newName
		clone.Stream = &s
		lm.RegisterExportedStream(&s)
	}
	clone.MarkReplica()
	finishClone(o, clone, region, channel)
	return clone
}

func cloneSplitter(o *model.SplitterOperator, newIdx uint64, indexMap map[uint64]uint64, region *model.ParallelRegion, channel int64) *model.SplitterOperator {
	clone := &model.SplitterOperator{
		OperatorBase: newBase(newIdx, suffixName(o.LogicalName(), channel)),
		RegionIndex:  o.RegionIndex,
	}
	if ownerIdx, has := remapOwner(o, indexMap); has {
		clone.SetOwningComposite(ownerIdx)
	}
	clone.InputPort = &model.PrimitiveInputPort{PortBase: model.NewPortBase(o.InputPort.Index(), newIdx)}
	for _, p := range o.OutputPorts {
		clone.OutputPorts = append(clone.OutputPorts, clonePrimitiveOutputPort(p, newIdx, channel))
	}
	clone.MarkReplica()
	finishClone(o, clone, region, channel)
	return clone
}

func cloneMerger(o *model.MergerOperator, newIdx uint64, indexMap map[uint64]uint64, region *model.ParallelRegion, channel int64) *model.MergerOperator {
	clone := &model.MergerOperator{
		OperatorBase: newBase(newIdx, suffixName(o.LogicalName(), channel)),
		RegionIndex:  o.RegionIndex,
	}
	if ownerIdx, has := remapOwner(o, indexMap); has {
		clone.SetOwningComposite(ownerIdx)
	}
	for _, p := range o.InputPorts {
		clone.InputPorts = append(clone.InputPorts, clonePrimitiveInputPort(p, newIdx))
	}
	clone.OutputPort = &model.PrimitiveOutputPort{PortBase: model.NewPortBase(o.OutputPort.Index(), newIdx)}
	clone.MarkReplica()
	finishClone(o, clone, region, channel)
	return clone
}

// rewireClonedConnections rebuilds every interior connection on the clones
// produced for members, remapping any endpoint that names another member
// of the same subtree and leaving composite-boundary (external) endpoints
// untouched for splitter/merger injection to fix up.
func rewireClonedConnections(lm *model.LogicalModel, members []uint64, indexMap map[uint64]uint64) error {
	for _, oldIdx := range members {
		oldOp, err := lm.ModelOperator(oldIdx)
		if err != nil {
			return err
		}
		newOp, err := lm.ModelOperator(indexMap[oldIdx])
		if err != nil {
			return err
		}
		switch o := oldOp.(type) {
		case *model.PrimitiveOperator:
			n := newOp.(*model.PrimitiveOperator)
			for i, p := range o.InputPorts {
				copyConnections(p.Connections(), n.InputPorts[i], indexMap)
			}
			for i, p := range o.OutputPorts {
				copyConnections(p.Connections(), n.OutputPorts[i], indexMap)
			}
		case *model.ImportOperator:
			n := newOp.(*model.ImportOperator)
			copyConnections(o.OutputPort.Connections(), n.OutputPort, indexMap)
		case *model.ExportOperator:
			n := newOp.(*model.ExportOperator)
			copyConnections(o.InputPort.Connections(), n.InputPort, indexMap)
		case *model.SplitterOperator:
			n := newOp.(*model.SplitterOperator)
			copyConnections(o.InputPort.Connections(), n.InputPort, indexMap)
			for i, p := range o.OutputPorts {
				copyConnections(p.Connections(), n.OutputPorts[i], indexMap)
			}
		case *model.MergerOperator:
			n := newOp.(*model.MergerOperator)
			for i, p := range o.InputPorts {
				copyConnections(p.Connections(), n.InputPorts[i], indexMap)
			}
			copyConnections(o.OutputPort.Connections(), n.OutputPort, indexMap)
		case *model.CompositeOperator:
			n := newOp.(*model.CompositeOperator)
			for i, p := range o.InputPorts {
				np := n.InputPorts[i]
				np.Incoming = append([]model.Connection(nil), p.Incoming...)
				np.Outgoing = remapConnectionSlice(p.Outgoing, indexMap)
			}
			for i, p := range o.OutputPorts {
				np := n.OutputPorts[i]
				np.Incoming = remapConnectionSlice(p.Incoming, indexMap)
				np.Outgoing = append([]model.Connection(nil), p.Outgoing...)
			}
		}
	}
	return nil
}

func copyConnections(oldConns []model.Connection, dst connectionAppender, indexMap map[uint64]uint64) {
	for _, c := range oldConns {
		nc := c
		if mapped, ok := indexMap[c.OperIndex]; ok {
			nc.OperIndex = mapped
		}
		dst.AppendConnection(nc)
	}
}

func remapConnectionSlice(conns []model.Connection, indexMap map[uint64]uint64) []model.Connection {
	out := make([]model.Connection, len(conns))
	for i, c := range conns {
		nc := c
		if mapped, ok := indexMap[c.OperIndex]; ok {
			nc.OperIndex = mapped
		}
		out[i] = nc
	}
	return out
}

// injectSplitter creates the pseudo-operator fanning a parallel region's
// single external producer for input port portIdx out to each channel's
// own copy of that port.
func injectSplitter(lm *model.LogicalModel, parentIdx uint64, comp *model.CompositeOperator, replicas []*model.CompositeOperator, region *model.ParallelRegion, portIdx int) error {
	width := region.Width
	originalPort := comp.InputPorts[portIdx]
	externalProducers := append([]model.Connection(nil), originalPort.Incoming...)

	splitterIdx := lm.NextOperatorIndex()
	splitter := &model.SplitterOperator{
		OperatorBase: newBase(splitterIdx, fmt.Sprintf("%s_split%d", comp.LogicalName(), portIdx)),
		RegionIndex:  region.Index,
	}
	splitter.SetOwningComposite(parentIdx)
	splitter.InputPort = &model.PrimitiveInputPort{PortBase: model.NewPortBase(0, splitterIdx)}
	for k := 0; k < width; k++ {
		splitter.OutputPorts = append(splitter.OutputPorts, &model.PrimitiveOutputPort{PortBase: model.NewPortBase(k, splitterIdx)})
	}
	if err := lm.AddOperator(splitter); err != nil {
		return err
	}
	parent, err := lm.CompositeOperator(parentIdx)
	if err != nil {
		return err
	}
	parent.Children = append(parent.Children, splitterIdx)

	for _, prodConn := range externalProducers {
		oldEdge := model.Connection{OperIndex: comp.Index(), PortIndex: portIdx, PortKind: model.Input}
		newEdge := model.Connection{OperIndex: splitterIdx, PortIndex: 0, PortKind: model.Input}
		if err := lm.Rewire(prodConn, oldEdge, newEdge); err != nil {
			return err
		}
		splitter.InputPort.AppendConnection(prodConn)
	}

	for k := 0; k < width; k++ {
		replicaPort := replicas[k].InputPorts[portIdx]
		replicaPort.Incoming = []model.Connection{{OperIndex: splitterIdx, PortIndex: k, PortKind: model.Output}}
		splitter.OutputPorts[k].AppendConnection(model.Connection{OperIndex: replicas[k].Index(), PortIndex: portIdx, PortKind: model.Input})
	}
	return nil
}

// injectMerger creates the pseudo-operator gathering a parallel region's
// W channel-local copies of output port portIdx back into the single
// stream its external consumers see. It is a logical bookkeeping
// placeholder only; the physical layer may never realize it as a runtime
// operator.
func injectMerger(lm *model.LogicalModel, parentIdx uint64, comp *model.CompositeOperator, replicas []*model.CompositeOperator, region *model.ParallelRegion, portIdx int) error {
	width := region.Width
	originalPort := comp.OutputPorts[portIdx]
	externalConsumers := append([]model.Connection(nil), originalPort.Outgoing...)

	mergerIdx := lm.NextOperatorIndex()
	merger := &model.MergerOperator{
		OperatorBase: newBase(mergerIdx, fmt.Sprintf("%s_merge%d", comp.LogicalName(), portIdx)),
		RegionIndex:  region.Index,
	}
	merger.SetOwningComposite(parentIdx)
	for k := 0; k < width; k++ {
		merger.InputPorts = append(merger.InputPorts, &model.PrimitiveInputPort{PortBase: model.NewPortBase(k, mergerIdx)})
	}
	merger.OutputPort = &model.PrimitiveOutputPort{PortBase: model.NewPortBase(0, mergerIdx)}
	if err := lm.AddOperator(merger); err != nil {
		return err
	}
	parent, err := lm.CompositeOperator(parentIdx)
	if err != nil {
		return err
	}
	parent.Children = append(parent.Children, mergerIdx)

	for k := 0; k < width; k++ {
		replicaPort := replicas[k].OutputPorts[portIdx]
		replicaPort.Outgoing = []model.Connection{{OperIndex: mergerIdx, PortIndex: k, PortKind: model.Input}}
		merger.InputPorts[k].AppendConnection(model.Connection{OperIndex: replicas[k].Index(), PortIndex: portIdx, PortKind: model.Output})
	}

	for _, consConn := range externalConsumers {
		oldEdge := model.Connection{OperIndex: comp.Index(), PortIndex: portIdx, PortKind: model.Output}
		newEdge := model.Connection{OperIndex: mergerIdx, PortIndex: 0, PortKind: model.Output}
		if err := lm.Rewire(consConn, oldEdge, newEdge); err != nil {
			return err
		}
		merger.OutputPort.AppendConnection(consConn)
	}
	return nil
}
