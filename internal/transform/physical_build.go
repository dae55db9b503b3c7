// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	"github.com/conjugate/streamform/internal/model"
)

// buildPhysicalModel lowers a fully replicated, CC-annotated LogicalModel
// into a PhysicalModel: PE assignment, port allocation, connection
// resolution through composites and splitters, inter-/intra-PE
// classification, then the threaded-port cleanup pass.
func buildPhysicalModel(lm *model.LogicalModel, opts Options) (*model.PhysicalModel, error) {
	pm := model.NewPhysicalModel()
	templatePEs := make(map[uint64]*model.PhysicalPE)

	for _, prim := range lm.AllPrimitiveOperators() {
		if err := assignPhysicalOperator(lm, pm, templatePEs, prim); err != nil {
			return nil, err
		}
	}
	if err := resolvePhysicalConnections(lm, pm); err != nil {
		return nil, err
	}
	if err := classifyConnections(lm, pm); err != nil {
		return nil, err
	}
	if !opts.DisableThreadedPortPruning {
		pruneAutoInjectedThreadedPorts(pm)
		propagateSingleThreaded(lm, pm)
	}
	return pm, nil
}

// assignPhysicalOperator assigns a PE (creating or replicating one as
// needed) and allocates physical ports for a single surviving primitive
// operator.
func assignPhysicalOperator(lm *model.LogicalModel, pm *model.PhysicalModel, templatePEs map[uint64]*model.PhysicalPE, prim *model.PrimitiveOperator) error {
	var templateKey uint64
	if prim.OriginalPE != nil {
		templateKey = *prim.OriginalPE
	} else {
		templateKey = pm.NextIndex()
	}
	template, ok := templatePEs[templateKey]
	if !ok {
		template = &model.PhysicalPE{Index: templateKey, OriginalIndex: templateKey, Restartable: true, Relocatable: true}
		templatePEs[templateKey] = template
		pm.AddPE(template)
	}

	pe := template
	if _, inRegion := prim.InParallelRegion(); inRegion {
		replica := template.FindOrCreateReplica(prim.ChannelIndex(), pm.NextIndex)
		if replica != template {
			if _, err := pm.PE(replica.Index); err != nil {
				pm.AddPE(replica)
			}
		}
		pe = replica
	}

	physOp := &model.PhysicalOperator{
		Index:        pm.NextIndex(),
		LogicalIndex: prim.Index(),
		ChannelIndex: prim.ChannelIndex(),
		PEIndex:      pe.Index,
	}
	if prim.HostpoolIndex != nil {
		physOp.Resources = &model.Resources{PoolLocations: []model.PoolLocation{{HostpoolIndex: *prim.HostpoolIndex}}}
	}
	for _, p := range prim.InputPorts {
		physOp.InputPorts = append(physOp.InputPorts, &model.PhysicalOperatorPort{
			Index: p.Index(), Kind: model.Input, Threaded: p.ThreadedPort,
		})
	}
	for _, p := range prim.OutputPorts {
		physOp.OutputPorts = append(physOp.OutputPorts, &model.PhysicalOperatorPort{
			Index: p.Index(), Kind: model.Output, Viewable: p.Viewable,
		})
	}
	pm.AddOperator(physOp)
	pe.Operators = append(pe.Operators, physOp.Index)
	return nil
}

// resolvedEndpoint is a fully-traversed leaf connection target, optionally
// annotated with the splitter it fanned out through.
type resolvedEndpoint struct {
	Conn          model.Connection
	SplitterIndex *uint64
	ChannelIndex  *int64
}

type splitterTag struct {
	index   uint64
	channel int64
}

// resolvePhysicalConnections walks, for every physical operator port, its
// owning logical port's connections, recursing through composite
// boundaries and splitters/mergers until a primitive or import/export leaf
// is reached.
func resolvePhysicalConnections(lm *model.LogicalModel, pm *model.PhysicalModel) error {
	for _, physOp := range pm.AllOperators() {
		prim, err := lm.PrimitiveOperator(physOp.LogicalIndex)
		if err != nil {
			return err
		}
		for i, lp := range prim.InputPorts {
			leaves, err := physicalTargetsForPrimitivePort(lm, prim, i, model.Input, lp.Connections())
			if err != nil {
				return err
			}
			for _, leaf := range leaves {
				physOp.InputPorts[i].Connections = append(physOp.InputPorts[i].Connections, model.PhysicalConnection{
					FromOperIndex: leaf.Conn.OperIndex, FromPort: leaf.Conn.PortIndex,
					ToOperIndex: prim.Index(), ToPort: i, PortKind: model.Input,
					SplitterIndex: leaf.SplitterIndex, ChannelIndex: leaf.ChannelIndex,
				})
			}
		}
		for i, lp := range prim.OutputPorts {
			leaves, err := physicalTargetsForPrimitivePort(lm, prim, i, model.Output, lp.Connections())
			if err != nil {
				return err
			}
			for _, leaf := range leaves {
				physOp.OutputPorts[i].Connections = append(physOp.OutputPorts[i].Connections, model.PhysicalConnection{
					FromOperIndex: prim.Index(), FromPort: i,
					ToOperIndex: leaf.Conn.OperIndex, ToPort: leaf.Conn.PortIndex, PortKind: model.Output,
					SplitterIndex: leaf.SplitterIndex, ChannelIndex: leaf.ChannelIndex,
				})
			}
		}
	}
	return nil
}

// physicalTargetsForPrimitivePort resolves every leaf endpoint reachable
// from a primitive's port: the direct connections recorded on the port
// itself (the common, non-boundary-crossing case), plus — when this exact
// port is the interior anchor of its owning composite's boundary port —
// whatever sits on the far side of that boundary, expanded the same way.
func physicalTargetsForPrimitivePort(lm *model.LogicalModel, prim *model.PrimitiveOperator, portIdx int, kind model.PortDirection, direct []model.Connection) ([]resolvedEndpoint, error) {
	leaves, err := expandAll(lm, direct, nil)
	if err != nil {
		return nil, err
	}

	ownerIdx, has := prim.OwningComposite()
	if !has {
		return leaves, nil
	}
	owner, err := lm.CompositeOperator(ownerIdx)
	if err != nil {
		return nil, err
	}

	if kind == model.Input {
		for _, p := range owner.InputPorts {
			for _, oc := range p.Outgoing {
				if oc.OperIndex == prim.Index() && oc.PortIndex == portIdx && oc.PortKind == model.Input {
					extra, err := expandAll(lm, p.Incoming, nil)
					if err != nil {
						return nil, err
					}
					leaves = append(leaves, extra...)
				}
			}
		}
		return leaves, nil
	}
	for _, p := range owner.OutputPorts {
		for _, ic := range p.Incoming {
			if ic.OperIndex == prim.Index() && ic.PortIndex == portIdx && ic.PortKind == model.Output {
				extra, err := expandAll(lm, p.Outgoing, nil)
				if err != nil {
					return nil, err
				}
				leaves = append(leaves, extra...)
			}
		}
	}
	return leaves, nil
}

// expandConnection follows a single connection to its leaf: a primitive,
// import, or export port is returned as-is; a composite port is expanded
// by following the list that faces its interior (Outgoing for an input
// port, Incoming for an output port — see the doc comments on
// CompositeInputPort/CompositeOutputPort); a splitter or merger is crossed
// transparently, fanning out (or in) across every channel and tagging the
// result with the splitter's identity and channel.
func expandConnection(lm *model.LogicalModel, conn model.Connection) ([]resolvedEndpoint, error) {
	op, err := lm.ModelOperator(conn.OperIndex)
	if err != nil {
		return nil, err
	}
	switch o := op.(type) {
	case *model.CompositeOperator:
		port, err := lm.Port(conn.OperIndex, conn.PortIndex, conn.PortKind)
		if err != nil {
			return nil, err
		}
		var next []model.Connection
		switch p := port.(type) {
		case *model.CompositeInputPort:
			next = p.Outgoing
		case *model.CompositeOutputPort:
			next = p.Incoming
		default:
			return nil, model.NewOperatorFailure(model.MalformedInput, conn.OperIndex, "composite port resolved to unexpected type")
		}
		return expandAll(lm, next, nil)
	case *model.SplitterOperator:
		if conn.PortKind == model.Output {
			idx := o.Index()
			channel := int64(conn.PortIndex)
			return expandAll(lm, o.InputPort.Connections(), &splitterTag{idx, channel})
		}
		var out []resolvedEndpoint
		for k, op := range o.OutputPorts {
			idx := o.Index()
			channel := int64(k)
			leaves, err := expandAll(lm, op.Connections(), &splitterTag{idx, channel})
			if err != nil {
				return nil, err
			}
			out = append(out, leaves...)
		}
		return out, nil
	case *model.MergerOperator:
		if conn.PortKind == model.Input {
			return expandAll(lm, o.OutputPort.Connections(), nil)
		}
		var out []resolvedEndpoint
		for _, ip := range o.InputPorts {
			leaves, err := expandAll(lm, ip.Connections(), nil)
			if err != nil {
				return nil, err
			}
			out = append(out, leaves...)
		}
		return out, nil
	case *model.PrimitiveOperator, *model.ImportOperator, *model.ExportOperator:
		return []resolvedEndpoint{{Conn: conn}}, nil
	default:
		return nil, model.NewOperatorFailure(model.MalformedInput, conn.OperIndex, "unexpected operator kind during physical connection resolution")
	}
}

func expandAll(lm *model.LogicalModel, conns []model.Connection, tag *splitterTag) ([]resolvedEndpoint, error) {
	var out []resolvedEndpoint
	for _, c := range conns {
		leaves, err := expandConnection(lm, c)
		if err != nil {
			return nil, err
		}
		if tag != nil {
			for i := range leaves {
				if leaves[i].SplitterIndex == nil {
					idx, ch := tag.index, tag.channel
					leaves[i].SplitterIndex = &idx
					leaves[i].ChannelIndex = &ch
				}
			}
		}
		out = append(out, leaves...)
	}
	return out, nil
}

// peChannelKey identifies one PE-port allocation slot: a PE, the operator
// port feeding it, and (if relevant) the splitter channel it fans through
// — PE-port allocation is idempotent per this combination.
type peChannelKey struct {
	peIndex       uint64
	operIndex     uint64
	portIndex     int
	splitterIndex uint64
	channelIndex  int64
}

// classifyConnections resolves every PhysicalConnection into inter-PE or
// intra-PE: each connection whose endpoints sit on different PEs becomes
// one StaticConnection entry; same-PE connections get none.
func classifyConnections(lm *model.LogicalModel, pm *model.PhysicalModel) error {
	seenOut := make(map[peChannelKey]bool)
	seenIn := make(map[peChannelKey]bool)

	for _, physOp := range pm.AllOperators() {
		fromPE, err := pm.PE(physOp.PEIndex)
		if err != nil {
			return err
		}
		prim, err := lm.PrimitiveOperator(physOp.LogicalIndex)
		if err != nil {
			return err
		}
		for pi, outPort := range physOp.OutputPorts {
			for _, pc := range outPort.Connections {
				toPhys, err := pm.Operator(pc.ToOperIndex)
				if err != nil {
					// Import/export terminus: a stream record, not a PE edge.
					continue
				}
				if toPhys.PEIndex == physOp.PEIndex {
					continue
				}
				toPE, err := pm.PE(toPhys.PEIndex)
				if err != nil {
					return err
				}

				var splitterIdx uint64
				var channel int64
				if pc.SplitterIndex != nil {
					splitterIdx = *pc.SplitterIndex
				}
				if pc.ChannelIndex != nil {
					channel = *pc.ChannelIndex
				}

				outKey := peChannelKey{fromPE.Index, physOp.Index, pi, splitterIdx, channel}
				if !seenOut[outKey] {
					fromPE.OutputPorts = append(fromPE.OutputPorts, &model.PhysicalOperatorPort{Index: pi, Kind: model.Output})
					seenOut[outKey] = true
				}
				inKey := peChannelKey{toPE.Index, toPhys.Index, pc.ToPort, splitterIdx, channel}
				if !seenIn[inKey] {
					toPE.InputPorts = append(toPE.InputPorts, &model.PhysicalOperatorPort{Index: pc.ToPort, Kind: model.Input})
					seenIn[inKey] = true
				}

				transport, encoding := "", ""
				if pi < len(prim.OutputPorts) {
					transport, encoding = prim.OutputPorts[pi].Transport, prim.OutputPorts[pi].Encoding
				}
				pm.AddStaticConnection(&model.StaticConnection{
					SourcePEIndex: fromPE.Index, SourceOpIndex: physOp.Index, SourcePort: pi,
					TargetPEIndex: toPE.Index, TargetOpIndex: toPhys.Index, TargetPort: pc.ToPort,
					Transport: transport, Encoding: encoding,
				})
			}
		}
	}
	return nil
}

// pruneAutoInjectedThreadedPorts removes threaded ports the fusion pass
// injected automatically where they turned out unnecessary: an
// auto-injected threaded port fed exclusively by a colocated splitter gains
// nothing from the extra thread hop, so the injected queue is removed.
func pruneAutoInjectedThreadedPorts(pm *model.PhysicalModel) {
	for _, physOp := range pm.AllOperators() {
		for _, inPort := range physOp.InputPorts {
			if inPort.Threaded == nil || !inPort.Threaded.AutoInjected {
				continue
			}
			if len(inPort.Connections) == 0 {
				continue
			}
			allColocatedSplitter := true
			for _, pc := range inPort.Connections {
				fromPhys, err := pm.Operator(pc.FromOperIndex)
				if err != nil || fromPhys.PEIndex != physOp.PEIndex || pc.SplitterIndex == nil {
					allColocatedSplitter = false
					break
				}
			}
			if allColocatedSplitter {
				inPort.Threaded = nil
			}
		}
	}
}

// propagateSingleThreaded runs after pruning: an output port whose
// downstream still crosses a thread boundary can no longer claim
// singleThreadedOnOutput.
func propagateSingleThreaded(lm *model.LogicalModel, pm *model.PhysicalModel) {
	for _, physOp := range pm.AllOperators() {
		prim, err := lm.PrimitiveOperator(physOp.LogicalIndex)
		if err != nil {
			continue
		}
		for pi, outPort := range physOp.OutputPorts {
			if pi >= len(prim.OutputPorts) {
				continue
			}
			for _, pc := range outPort.Connections {
				toPhys, err := pm.Operator(pc.ToOperIndex)
				if err != nil {
					continue
				}
				if pc.ToPort < len(toPhys.InputPorts) && toPhys.InputPorts[pc.ToPort].Threaded != nil {
					prim.OutputPorts[pi].SingleThreadedOnOutput = false
				}
			}
		}
	}
}
