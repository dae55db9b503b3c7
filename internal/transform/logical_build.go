// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	"fmt"

	streamio "github.com/conjugate/streamform/internal/io"
	"github.com/conjugate/streamform/internal/model"
)

// buildLogicalModel walks the input tree depth-first, constructing
// operators, ports, and connection pairs. The root composite is
// created first; composites and primitives are indexed by name during a
// first pass so the connection pass (which references operators by name,
// per the io.EndpointRef shape) can resolve every endpoint.
func buildLogicalModel(app *streamio.LogicalApp) (*model.LogicalModel, error) {
	lm := model.NewLogicalModel()
	names := make(map[string]uint64)
	hostpoolNames := make(map[string]uint64)

	for _, hp := range app.Hostpools {
		membership := model.Shared
		if hp.Exclusive {
			membership = model.Exclusive
		}
		idx := lm.NextHostpoolIndex()
		lm.AddHostpool(&model.Hostpool{
			Index:             idx,
			Name:              hp.Name,
			Size:              hp.Size,
			Membership:        membership,
			Hosts:             append([]string(nil), hp.Hosts...),
			Tags:              append([]string(nil), hp.Tags...),
			ReplicateHostTags: append([]string(nil), hp.ReplicateHostTags...),
		})
		hostpoolNames[hp.Name] = idx
	}

	mainIdx, err := buildComposite(lm, app.MainComposite, nil, names, hostpoolNames)
	if err != nil {
		return nil, err
	}
	lm.SetMainComposite(mainIdx)

	if err := wireConnections(lm, app.MainComposite, names); err != nil {
		return nil, err
	}
	return lm, nil
}

// buildComposite creates the operator skeletons (no connections yet) for a
// composite subtree and returns its operator index.
func buildComposite(lm *model.LogicalModel, node streamio.CompositeNode, owner *uint64, names map[string]uint64, hostpoolNames map[string]uint64) (uint64, error) {
	idx := lm.NextOperatorIndex()
	if _, dup := names[node.Name]; dup {
		return 0, model.NewOperatorFailure(model.MalformedInput, idx, "duplicate operator name %q", node.Name)
	}
	names[node.Name] = idx

	comp := &model.CompositeOperator{IsMain: node.IsMain}
	comp.OperatorBase = newBase(idx, node.Name)
	for _, a := range node.CCRegions {
		comp.CCAnnotations = append(comp.CCAnnotations, model.CCRegionAnnotation{
			LogicalIndex:     a.LogicalIndex,
			IsOperatorDriven: a.IsOperatorDriven,
			DrainTimeout:     a.DrainTimeout,
			ResetTimeout:     a.ResetTimeout,
		})
	}
	if owner != nil {
		comp.SetOwningComposite(*owner)
	}
	for i := range node.InputPorts {
		comp.InputPorts = append(comp.InputPorts, &model.CompositeInputPort{PortBase: newPortBase(i, idx)})
	}
	for i := range node.OutputPorts {
		comp.OutputPorts = append(comp.OutputPorts, &model.CompositeOutputPort{PortBase: newPortBase(i, idx)})
	}
	if err := lm.AddOperator(comp); err != nil {
		return 0, err
	}

	for _, child := range node.Composites {
		childIdx, err := buildComposite(lm, child, &idx, names, hostpoolNames)
		if err != nil {
			return 0, err
		}
		comp.Children = append(comp.Children, childIdx)
	}
	for _, prim := range node.Primitives {
		primIdx, err := buildPrimitive(lm, prim, idx, names, hostpoolNames)
		if err != nil {
			return 0, err
		}
		comp.Children = append(comp.Children, primIdx)
	}
	for _, imp := range node.Imports {
		impIdx, err := buildImport(lm, imp, idx, names)
		if err != nil {
			return 0, err
		}
		comp.Children = append(comp.Children, impIdx)
	}
	for _, exp := range node.Exports {
		expIdx, err := buildExport(lm, exp, idx, names)
		if err != nil {
			return 0, err
		}
		comp.Children = append(comp.Children, expIdx)
	}
	if node.Parallel != nil {
		if node.Parallel.Width <= 0 {
			return 0, model.NewOperatorFailure(model.InvalidParallelWidth, idx,
				"parallel region width must be positive, got %d", node.Parallel.Width)
		}
		region := model.NewParallelRegion(lm.NextRegionIndex(), idx, node.Parallel.Width, node.Parallel.ReplicateTags)
		lm.RegisterParallelRegion(region)
	}
	return idx, nil
}

func buildPrimitive(lm *model.LogicalModel, node streamio.PrimitiveNode, owner uint64, names map[string]uint64, hostpoolNames map[string]uint64) (uint64, error) {
	idx := lm.NextOperatorIndex()
	if _, dup := names[node.Name]; dup {
		return 0, model.NewOperatorFailure(model.MalformedInput, idx, "duplicate operator name %q", node.Name)
	}
	names[node.Name] = idx

	prim := &model.PrimitiveOperator{
		ToolkitIndex:         node.ToolkitIndex,
		OriginalPE:           node.OriginalPE,
		Placement:            node.Placement,
		ColocationConstraint: node.ColocationConstraint,
		ConfigExpressions:    copyStringMap(node.ConfigExpressions),
	}
	prim.OperatorBase = newBase(idx, node.Name)
	prim.SetOwningComposite(owner)
	if node.HostpoolName != "" {
		hpIdx, ok := hostpoolNames[node.HostpoolName]
		if !ok {
			return 0, model.NewOperatorFailure(model.MalformedInput, idx, "unknown hostpool %q", node.HostpoolName)
		}
		prim.HostpoolIndex = &hpIdx
	}

	for _, p := range node.InputPorts {
		port := &model.PrimitiveInputPort{
			PortBase:       newPortBase(p.Index, idx),
			Name:           p.Name,
			Transport:      p.Transport,
			Encoding:       p.Encoding,
			TupleTypeIndex: p.TupleTypeIndex,
			IsMutable:      p.IsMutable,
			IsControl:      p.IsControl,
		}
		if p.ThreadedPort != nil {
			port.ThreadedPort = &model.ThreadedPort{
				CongestionPolicy: p.ThreadedPort.CongestionPolicy,
				QueueSize:        p.ThreadedPort.QueueSize,
				SingleThreaded:   p.ThreadedPort.SingleThreaded,
			}
		}
		prim.InputPorts = append(prim.InputPorts, port)
	}
	for _, p := range node.OutputPorts {
		port := &model.PrimitiveOutputPort{
			PortBase:               newPortBase(p.Index, idx),
			Name:                   p.Name,
			Transport:              p.Transport,
			Encoding:               p.Encoding,
			TupleTypeIndex:         p.TupleTypeIndex,
			IsMutable:              p.IsMutable,
			StreamName:             p.StreamName,
			SingleThreadedOnOutput: p.SingleThreadedOnOutput,
		}
		if p.Viewable {
			port.Viewable = &model.Viewable{Name: p.ViewableName}
		}
		prim.OutputPorts = append(prim.OutputPorts, port)
	}
	if err := lm.AddOperator(prim); err != nil {
		return 0, err
	}

	if node.CCAnnotation != nil {
		a := node.CCAnnotation
		info := model.NewCCInfo(idx)
		info.IsStartOfRegion = a.IsStartOfRegion
		info.IsEndOfRegion = a.IsEndOfRegion
		info.IsOblivious = a.IsOblivious
		info.KeyValues = copyStringMap(a.KeyValues)
		prim.CCInfo = info
	}

	return idx, nil
}

// buildImport creates an Import pseudo-operator: a single output port
// exposing the named imported stream.
func buildImport(lm *model.LogicalModel, node streamio.ImportNode, owner uint64, names map[string]uint64) (uint64, error) {
	idx := lm.NextOperatorIndex()
	if _, dup := names[node.Name]; dup {
		return 0, model.NewOperatorFailure(model.MalformedInput, idx, "duplicate operator name %q", node.Name)
	}
	names[node.Name] = idx

	stream := &model.ImportedStream{
		OperatorName:     node.Name,
		NameBased:        node.Spec.NameBased,
		ApplicationName:  node.Spec.ApplicationName,
		StreamName:       node.Spec.StreamName,
		SubscriptionExpr: node.Spec.SubscriptionExpr,
	}
	imp := &model.ImportOperator{
		OutputPort: &model.ImportOutputPort{
			PortBase:       newPortBase(node.OutputPort.Index, idx),
			TupleTypeIndex: node.OutputPort.TupleTypeIndex,
		},
		Stream: stream,
	}
	imp.OperatorBase = newBase(idx, node.Name)
	imp.SetOwningComposite(owner)
	if err := lm.AddOperator(imp); err != nil {
		return 0, err
	}
	lm.RegisterImportedStream(stream)
	return idx, nil
}

// buildExport creates an Export pseudo-operator: a single input port
// terminating the named exported stream.
func buildExport(lm *model.LogicalModel, node streamio.ExportNode, owner uint64, names map[string]uint64) (uint64, error) {
	idx := lm.NextOperatorIndex()
	if _, dup := names[node.Name]; dup {
		return 0, model.NewOperatorFailure(model.MalformedInput, idx, "duplicate operator name %q", node.Name)
	}
	names[node.Name] = idx

	exp := &model.ExportOperator{
		InputPort: &model.ExportInputPort{
			PortBase:       newPortBase(node.InputPort.Index, idx),
			TupleTypeIndex: node.InputPort.TupleTypeIndex,
		},
		Stream: &model.ExportedStream{
			OperatorName: node.Name,
			StreamName:   node.Spec.StreamName,
			Properties:   copyStringMap(node.Spec.Properties),
		},
	}
	exp.OperatorBase = newBase(idx, node.Name)
	exp.SetOwningComposite(owner)
	if err := lm.AddOperator(exp); err != nil {
		return 0, err
	}
	lm.RegisterExportedStream(exp.Stream)
	return idx, nil
}

// wireConnections is the second pass: now that every operator name is
// indexed, resolve every EndpointRef into a Connection pair and record
// both the forward and reverse entries.
func wireConnections(lm *model.LogicalModel, node streamio.CompositeNode, names map[string]uint64) error {
	selfIdx, ok := names[node.Name]
	if !ok {
		return model.NewFailure(model.MalformedInput, "unresolved composite name %q", node.Name)
	}
	for i, port := range node.InputPorts {
		for _, ref := range port.Incoming {
			if err := connectEndpoints(lm, names, model.Connection{OperIndex: selfIdx, PortIndex: i, PortKind: model.Input}, ref, true); err != nil {
				return err
			}
		}
		for _, ref := range port.Outgoing {
			if err := connectEndpoints(lm, names, model.Connection{OperIndex: selfIdx, PortIndex: i, PortKind: model.Input}, ref, false); err != nil {
				return err
			}
		}
	}
	for i, port := range node.OutputPorts {
		for _, ref := range port.Incoming {
			if err := connectEndpoints(lm, names, model.Connection{OperIndex: selfIdx, PortIndex: i, PortKind: model.Output}, ref, true); err != nil {
				return err
			}
		}
		for _, ref := range port.Outgoing {
			if err := connectEndpoints(lm, names, model.Connection{OperIndex: selfIdx, PortIndex: i, PortKind: model.Output}, ref, false); err != nil {
				return err
			}
		}
	}

	for _, child := range node.Composites {
		if err := wireConnections(lm, child, names); err != nil {
			return err
		}
	}
	// Forward edges are declared exactly once, on the producing output
	// port; the matching reverse entry is synthesized by
	// addSymmetricConnection. Primitive input ports and export input
	// ports never carry their own Connections — walking them here too
	// would double-wire every edge.
	for _, prim := range findPrimitives(node) {
		primIdx, ok := names[prim.Name]
		if !ok {
			return model.NewFailure(model.MalformedInput, "unresolved primitive name %q", prim.Name)
		}
		for _, p := range prim.OutputPorts {
			for _, ref := range p.Connections {
				if err := connectPrimitiveEndpoint(lm, names, model.Connection{OperIndex: primIdx, PortIndex: p.Index, PortKind: model.Output}, ref); err != nil {
					return err
				}
			}
		}
	}
	for _, imp := range node.Imports {
		impIdx, ok := names[imp.Name]
		if !ok {
			return model.NewFailure(model.MalformedInput, "unresolved import name %q", imp.Name)
		}
		for _, ref := range imp.OutputPort.Connections {
			if err := connectPrimitiveEndpoint(lm, names, model.Connection{OperIndex: impIdx, PortIndex: imp.OutputPort.Index, PortKind: model.Output}, ref); err != nil {
				return err
			}
		}
	}
	return nil
}

func findPrimitives(node streamio.CompositeNode) []streamio.PrimitiveNode {
	return node.Primitives
}

// connectPrimitiveEndpoint records the forward connection from `from` to
// the resolved target, plus the symmetric reverse connection. ref always
// names another primitive, import, or export operator — composite
// boundary crossings are expressed through the owning composite's own
// PortNode Incoming/Outgoing lists instead (see connectEndpoints), never
// through a flat port's Connections.
func connectPrimitiveEndpoint(lm *model.LogicalModel, names map[string]uint64, from model.Connection, ref streamio.EndpointRef) error {
	targetIdx, ok := names[ref.OperatorName]
	if !ok {
		return model.NewOperatorFailure(model.MalformedInput, from.OperIndex,
			"connection references unknown operator %q", ref.OperatorName)
	}
	targetKind := model.Input
	if from.PortKind == model.Input {
		targetKind = model.Output
	}
	to := model.Connection{OperIndex: targetIdx, PortIndex: ref.PortIndex, PortKind: targetKind}
	return addSymmetricConnection(lm, from, to)
}

// connectEndpoints handles a composite port's incoming/outgoing reference,
// recording it on the composite port's Incoming or Outgoing list only; no
// entry is added to the referenced primitive/composite port.
func connectEndpoints(lm *model.LogicalModel, names map[string]uint64, self model.Connection, ref streamio.EndpointRef, incoming bool) error {
	targetIdx, ok := names[ref.OperatorName]
	if !ok {
		return model.NewOperatorFailure(model.MalformedInput, self.OperIndex,
			"composite port references unknown operator %q", ref.OperatorName)
	}
	targetKind := model.Input
	if incoming {
		targetKind = model.Output
	}
	other := model.Connection{OperIndex: targetIdx, PortIndex: ref.PortIndex, PortKind: targetKind}

	port, err := lm.Port(self.OperIndex, self.PortIndex, self.PortKind)
	if err != nil {
		return err
	}
	switch p := port.(type) {
	case *model.CompositeInputPort:
		if incoming {
			p.AddIncoming(other)
		} else {
			p.AddOutgoing(other)
		}
	case *model.CompositeOutputPort:
		if incoming {
			p.AddIncoming(other)
		} else {
			p.AddOutgoing(other)
		}
	default:
		return fmt.Errorf("connectEndpoints: port %v is not a composite port", self)
	}
	return nil
}

// addSymmetricConnection appends `to` onto `from`'s connection list and
// `from` onto `to`'s, satisfying the reverse-connection invariant from the
// moment of construction.
func addSymmetricConnection(lm *model.LogicalModel, from, to model.Connection) error {
	return lm.Connect(from, to)
}

func newBase(index uint64, name string) model.OperatorBase {
	return model.NewOperatorBase(index, name)
}

func newPortBase(index int, ownerIndex uint64) model.PortBase {
	return model.NewPortBase(index, ownerIndex)
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
