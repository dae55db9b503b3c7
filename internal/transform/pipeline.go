// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	streamio "github.com/conjugate/streamform/internal/io"
	"github.com/conjugate/streamform/internal/model"
)

// Run is the top-level entry point: logical model construction,
// parallel-region expansion, consistent-cut region discovery, then
// physical model construction and output encoding. It never returns a
// partial PhysicalApp on error — any *model.Failure aborts the whole run.
func Run(app *streamio.LogicalApp, opts Options) (*streamio.PhysicalApp, error) {
	_, _, out, err := RunWithModels(app, opts)
	return out, err
}

// RunWithModels is Run's full-fidelity variant, additionally returning the
// intermediate LogicalModel and PhysicalModel — used by `streamformd
// transform --dump` and by tests asserting tree shape rather than only the
// flattened output.
func RunWithModels(app *streamio.LogicalApp, opts Options) (*model.LogicalModel, *model.PhysicalModel, *streamio.PhysicalApp, error) {
	lm, err := buildLogicalModel(app)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := performParallelTransform(lm, opts); err != nil {
		return lm, nil, nil, err
	}
	if err := computeCCRegions(lm); err != nil {
		return lm, nil, nil, err
	}
	pm, err := buildPhysicalModel(lm, opts)
	if err != nil {
		return lm, nil, nil, err
	}
	return lm, pm, toPhysicalApp(lm, pm), nil
}

// toPhysicalApp flattens a PhysicalModel onto the narrow io.PhysicalApp
// write surface. The core never touches XML directly; this is the last
// step before handing off to the encoder.
func toPhysicalApp(lm *model.LogicalModel, pm *model.PhysicalModel) *streamio.PhysicalApp {
	out := &streamio.PhysicalApp{}

	for _, pe := range pm.AllPEs() {
		node := streamio.PhysicalPENode{
			Index:           pe.Index,
			OperatorIndices: append([]uint64(nil), pe.Operators...),
			Restartable:     pe.Restartable,
			Relocatable:     pe.Relocatable,
		}
		for _, sc := range pm.StaticConnections() {
			switch pe.Index {
			case sc.SourcePEIndex:
				node.StaticConnections = append(node.StaticConnections, staticConnectionNode(sc, "Outgoing"))
			case sc.TargetPEIndex:
				node.StaticConnections = append(node.StaticConnections, staticConnectionNode(sc, "Incoming"))
			}
		}
		out.PEs = append(out.PEs, node)
	}

	for _, physOp := range pm.AllOperators() {
		node := streamio.PhysicalOperatorNode{
			Index:        physOp.Index,
			LogicalIndex: physOp.LogicalIndex,
			ChannelIndex: physOp.ChannelIndex,
			PEIndex:      physOp.PEIndex,
		}
		for _, p := range physOp.InputPorts {
			node.InputPorts = append(node.InputPorts, p.Index)
		}
		for _, p := range physOp.OutputPorts {
			node.OutputPorts = append(node.OutputPorts, p.Index)
		}
		out.Operators = append(out.Operators, node)
	}

	for _, hp := range lm.AllHostpools() {
		out.Hostpools = append(out.Hostpools, streamio.HostpoolNode{
			Name:              hp.Name,
			Size:              hp.Size,
			Exclusive:         hp.Membership == model.Exclusive,
			Hosts:             append([]string(nil), hp.Hosts...),
			Tags:              append([]string(nil), hp.Tags...),
			ReplicateHostTags: append([]string(nil), hp.ReplicateHostTags...),
		})
	}

	return out
}

func staticConnectionNode(sc *model.StaticConnection, direction string) streamio.StaticConnectionNode {
	return streamio.StaticConnectionNode{
		FromPE: int(sc.SourcePEIndex), FromOperator: int(sc.SourceOpIndex), FromPort: sc.SourcePort,
		ToPE: int(sc.TargetPEIndex), ToOperator: int(sc.TargetOpIndex), ToPort: sc.TargetPort,
		Direction: direction,
	}
}
