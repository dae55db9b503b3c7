// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

// LogicalModel is the root entity owning every operator, hostpool, stream
// descriptor, parallel region, and CC region in a logical application. It
// provides index-based lookup tables rather than owning pointers: every
// cross-reference in this package is an index looked up against the model
// that owns the arena.
type LogicalModel struct {
	operators       map[uint64]Operator
	hostpools       map[uint64]*Hostpool
	parallelRegions map[uint64]*ParallelRegion // keyed by composite operator index
	ccRegions       []*CCRegion

	importedStreams map[string]*ImportedStream // keyed by operator name
	exportedStreams map[string]*ExportedStream

	mainCompositeIndex uint64

	// nextIndex is the monotonically-growing counter
	// replication consumes fresh operator indices from. It also backs
	// hostpool-replica and region index allocation so every index space in
	// the model stays disjoint.
	nextIndex uint64
}

// NewLogicalModel returns an empty model ready for buildLogicalModel to
// populate.
func NewLogicalModel() *LogicalModel {
	return &LogicalModel{
		operators:       make(map[uint64]Operator),
		hostpools:       make(map[uint64]*Hostpool),
		parallelRegions: make(map[uint64]*ParallelRegion),
		importedStreams: make(map[string]*ImportedStream),
		exportedStreams: make(map[string]*ExportedStream),
	}
}

// NextOperatorIndex allocates and returns a fresh, model-unique operator
// index. Splitters, mergers, and replicated operators all consume indices
// from this single counter.
func (lm *LogicalModel) NextOperatorIndex() uint64 {
	idx := lm.nextIndex
	lm.nextIndex++
	return idx
}

// NextHostpoolIndex allocates a fresh hostpool index from the same space
// hostpool replicas are drawn from.
func (lm *LogicalModel) NextHostpoolIndex() uint64 { return lm.NextOperatorIndex() }

// NextRegionIndex allocates a fresh CC-region index.
func (lm *LogicalModel) NextRegionIndex() uint64 { return lm.NextOperatorIndex() }

// AddOperator registers a newly constructed operator in the arena. The
// caller is responsible for having allocated its Index via
// NextOperatorIndex first; AddOperator is fatal (MalformedInput) on a
// duplicate index.
func (lm *LogicalModel) AddOperator(op Operator) error {
	if _, exists := lm.operators[op.Index()]; exists {
		return NewOperatorFailure(MalformedInput, op.Index(), "duplicate operator index")
	}
	lm.operators[op.Index()] = op
	return nil
}

// ReplaceOperator overwrites the arena slot for op.Index() — used when a
// replication step produces a brand-new struct for an existing index (the
// channel-0 re-tag case).
func (lm *LogicalModel) ReplaceOperator(op Operator) { lm.operators[op.Index()] = op }

// SetMainComposite records the root composite's index.
func (lm *LogicalModel) SetMainComposite(idx uint64) { lm.mainCompositeIndex = idx }

// MainCompositeIndex returns the root composite's index.
func (lm *LogicalModel) MainCompositeIndex() uint64 { return lm.mainCompositeIndex }

// ModelOperator resolves any operator by index.
func (lm *LogicalModel) ModelOperator(index uint64) (Operator, error) {
	op, ok := lm.operators[index]
	if !ok {
		return nil, NewOperatorFailure(IndexOutOfRange, index, "no such operator")
	}
	return op, nil
}

// PrimitiveOperator resolves a primitive operator by index, failing if the
// index names an operator of a different kind.
func (lm *LogicalModel) PrimitiveOperator(index uint64) (*PrimitiveOperator, error) {
	op, err := lm.ModelOperator(index)
	if err != nil {
		return nil, err
	}
	prim, ok := op.(*PrimitiveOperator)
	if !ok {
		return nil, NewOperatorFailure(MalformedInput, index, "operator is not primitive (kind=%s)", op.Kind())
	}
	return prim, nil
}

// CompositeOperator resolves a composite operator by index.
func (lm *LogicalModel) CompositeOperator(index uint64) (*CompositeOperator, error) {
	op, err := lm.ModelOperator(index)
	if err != nil {
		return nil, err
	}
	comp, ok := op.(*CompositeOperator)
	if !ok {
		return nil, NewOperatorFailure(MalformedInput, index, "operator is not composite (kind=%s)", op.Kind())
	}
	return comp, nil
}

// AllOperators returns every operator in the model, in index order, for
// deterministic traversal.
func (lm *LogicalModel) AllOperators() []Operator {
	out := make([]Operator, 0, len(lm.operators))
	for _, op := range lm.operators {
		out = append(out, op)
	}
	sortOperatorsByIndex(out)
	return out
}

// AllPrimitiveOperators returns every primitive operator, in index order.
func (lm *LogicalModel) AllPrimitiveOperators() []*PrimitiveOperator {
	var out []*PrimitiveOperator
	for _, op := range lm.AllOperators() {
		if prim, ok := op.(*PrimitiveOperator); ok {
			out = append(out, prim)
		}
	}
	return out
}

func sortOperatorsByIndex(ops []Operator) {
	for i := 1; i < len(ops); i++ {
		for j := i; j > 0 && ops[j-1].Index() > ops[j].Index(); j-- {
			ops[j-1], ops[j] = ops[j], ops[j-1]
		}
	}
}

// AddHostpool registers a hostpool.
func (lm *LogicalModel) AddHostpool(hp *Hostpool) { lm.hostpools[hp.Index] = hp }

// Hostpool resolves a hostpool by index.
func (lm *LogicalModel) Hostpool(index uint64) (*Hostpool, error) {
	hp, ok := lm.hostpools[index]
	if !ok {
		return nil, NewFailure(IndexOutOfRange, "no such hostpool: %d", index)
	}
	return hp, nil
}

// AllHostpools returns every hostpool, in index order.
func (lm *LogicalModel) AllHostpools() []*Hostpool {
	out := make([]*Hostpool, 0, len(lm.hostpools))
	for _, hp := range lm.hostpools {
		out = append(out, hp)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Index > out[j].Index; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// RegisterImportedStream indexes an import by its operator name.
func (lm *LogicalModel) RegisterImportedStream(s *ImportedStream) {
	lm.importedStreams[s.OperatorName] = s
}

// FindImportedStream looks up an import by operator name.
func (lm *LogicalModel) FindImportedStream(operName string) (*ImportedStream, bool) {
	s, ok := lm.importedStreams[operName]
	return s, ok
}

// RegisterExportedStream indexes an export by its operator name.
func (lm *LogicalModel) RegisterExportedStream(s *ExportedStream) {
	lm.exportedStreams[s.OperatorName] = s
}

// FindExportedStream looks up an export by operator name.
func (lm *LogicalModel) FindExportedStream(operName string) (*ExportedStream, bool) {
	s, ok := lm.exportedStreams[operName]
	return s, ok
}

// RegisterParallelRegion indexes a parallel region by its root composite's
// operator index.
func (lm *LogicalModel) RegisterParallelRegion(r *ParallelRegion) {
	lm.parallelRegions[r.OperIndex] = r
}

// ParallelRegionFor returns the parallel region rooted at compositeIndex,
// if any.
func (lm *LogicalModel) ParallelRegionFor(compositeIndex uint64) (*ParallelRegion, bool) {
	r, ok := lm.parallelRegions[compositeIndex]
	return r, ok
}

// AllParallelRegions returns every registered parallel region.
func (lm *LogicalModel) AllParallelRegions() []*ParallelRegion {
	out := make([]*ParallelRegion, 0, len(lm.parallelRegions))
	for _, r := range lm.parallelRegions {
		out = append(out, r)
	}
	return out
}

// AddCCRegion registers a freshly constructed CC region.
func (lm *LogicalModel) AddCCRegion(r *CCRegion) { lm.ccRegions = append(lm.ccRegions, r) }

// AllCCRegions returns every CC region created during discovery, including
// ones later merged away (callers typically filter with WasMerged).
func (lm *LogicalModel) AllCCRegions() []*CCRegion { return lm.ccRegions }

// CanonicalCCRegions returns the de-duplicated set of canonical (non-merged)
// regions.
func (lm *LogicalModel) CanonicalCCRegions() []*CCRegion {
	seen := make(map[*CCRegion]bool)
	var out []*CCRegion
	for _, r := range lm.ccRegions {
		canon := r.MergedRegion()
		if !seen[canon] {
			seen[canon] = true
			out = append(out, canon)
		}
	}
	return out
}

// port resolves a Connection's endpoint to its concrete Port, used by
// Rewire and by the physical-connection-resolution traversal.
func (lm *LogicalModel) port(operIndex uint64, portIndex int, kind PortDirection) (Port, error) {
	op, err := lm.ModelOperator(operIndex)
	if err != nil {
		return nil, err
	}
	switch o := op.(type) {
	case *PrimitiveOperator:
		if kind == Input {
			if portIndex < 0 || portIndex >= len(o.InputPorts) {
				return nil, NewPortFailure(IndexOutOfRange, operIndex, portIndex, "input port out of range")
			}
			return o.InputPorts[portIndex], nil
		}
		if portIndex < 0 || portIndex >= len(o.OutputPorts) {
			return nil, NewPortFailure(IndexOutOfRange, operIndex, portIndex, "output port out of range")
		}
		return o.OutputPorts[portIndex], nil
	case *CompositeOperator:
		if kind == Input {
			if portIndex < 0 || portIndex >= len(o.InputPorts) {
				return nil, NewPortFailure(IndexOutOfRange, operIndex, portIndex, "composite input port out of range")
			}
			return o.InputPorts[portIndex], nil
		}
		if portIndex < 0 || portIndex >= len(o.OutputPorts) {
			return nil, NewPortFailure(IndexOutOfRange, operIndex, portIndex, "composite output port out of range")
		}
		return o.OutputPorts[portIndex], nil
	case *ImportOperator:
		return o.OutputPort, nil
	case *ExportOperator:
		return o.InputPort, nil
	case *SplitterOperator:
		if kind == Input {
			return o.InputPort, nil
		}
		if portIndex < 0 || portIndex >= len(o.OutputPorts) {
			return nil, NewPortFailure(IndexOutOfRange, operIndex, portIndex, "splitter output port out of range")
		}
		return o.OutputPorts[portIndex], nil
	case *MergerOperator:
		if kind == Output {
			return o.OutputPort, nil
		}
		if portIndex < 0 || portIndex >= len(o.InputPorts) {
			return nil, NewPortFailure(IndexOutOfRange, operIndex, portIndex, "merger input port out of range")
		}
		return o.InputPorts[portIndex], nil
	default:
		return nil, NewOperatorFailure(MalformedInput, operIndex, "unknown operator kind")
	}
}

// Port exposes the package-private port resolver for transform-package
// callers that need to read a port without going through Rewire.
func (lm *LogicalModel) Port(operIndex uint64, portIndex int, kind PortDirection) (Port, error) {
	return lm.port(operIndex, portIndex, kind)
}
