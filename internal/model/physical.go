// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

// PhysicalModel is the output of the transform: a flat set of processing
// elements (PEs), each owning a set of physical operators, connected by
// inter-PE StaticConnections. Intra-PE data paths get no StaticConnection;
// they appear only in the physical operators' port connection lists.
type PhysicalModel struct {
	pes               map[uint64]*PhysicalPE
	operators         map[uint64]*PhysicalOperator
	staticConnections []*StaticConnection
	nextIndex         uint64
}

// NewPhysicalModel returns an empty model ready for the physical-build stage
// to populate.
func NewPhysicalModel() *PhysicalModel {
	return &PhysicalModel{
		pes:       make(map[uint64]*PhysicalPE),
		operators: make(map[uint64]*PhysicalOperator),
	}
}

// NextIndex allocates a fresh index shared across PEs and physical
// operators. Static connections carry no index of their own.
func (pm *PhysicalModel) NextIndex() uint64 {
	idx := pm.nextIndex
	pm.nextIndex++
	return idx
}

// AddPE registers a new processing element.
func (pm *PhysicalModel) AddPE(pe *PhysicalPE) { pm.pes[pe.Index] = pe }

// PE resolves a processing element by index.
func (pm *PhysicalModel) PE(index uint64) (*PhysicalPE, error) {
	pe, ok := pm.pes[index]
	if !ok {
		return nil, NewFailure(IndexOutOfRange, "no such PE: %d", index)
	}
	return pe, nil
}

// AllPEs returns every PE, in index order.
func (pm *PhysicalModel) AllPEs() []*PhysicalPE {
	out := make([]*PhysicalPE, 0, len(pm.pes))
	for _, pe := range pm.pes {
		out = append(out, pe)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Index > out[j].Index; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// AddOperator registers a physical operator, keyed by the logical operator
// index it was built from.
func (pm *PhysicalModel) AddOperator(op *PhysicalOperator) { pm.operators[op.LogicalIndex] = op }

// Operator resolves a physical operator by the logical operator index it
// was built from.
func (pm *PhysicalModel) Operator(logicalIndex uint64) (*PhysicalOperator, error) {
	op, ok := pm.operators[logicalIndex]
	if !ok {
		return nil, NewFailure(IndexOutOfRange, "no physical operator for logical index %d", logicalIndex)
	}
	return op, nil
}

// AllOperators returns every physical operator, in logical-index order.
func (pm *PhysicalModel) AllOperators() []*PhysicalOperator {
	out := make([]*PhysicalOperator, 0, len(pm.operators))
	for _, op := range pm.operators {
		out = append(out, op)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].LogicalIndex > out[j].LogicalIndex; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// AddStaticConnection records an inter-PE connection.
func (pm *PhysicalModel) AddStaticConnection(c *StaticConnection) {
	pm.staticConnections = append(pm.staticConnections, c)
}

// StaticConnections returns every inter-PE connection discovered during
// classification.
func (pm *PhysicalModel) StaticConnections() []*StaticConnection { return pm.staticConnections }

// Resources is the resource-tag payload a PrimitiveOperator or Hostpool
// carries forward onto its physical counterpart: pool/host placement and
// resource-share bookkeeping.
type Resources struct {
	PoolLocations []PoolLocation
	CPUFraction   float64
	MemoryMB      int64
}

// PoolLocation binds a physical operator or PE to a hostpool and an index
// within it.
type PoolLocation struct {
	HostpoolIndex uint64
	HostIndex     int
}

// PhysicalOperator is the physical counterpart of a logical primitive
// operator. One is produced per (logical operator, replica channel) pair.
type PhysicalOperator struct {
	Index        uint64
	LogicalIndex uint64 // the logical PrimitiveOperator this was built from
	ChannelIndex int64
	InputPorts   []*PhysicalOperatorPort
	OutputPorts  []*PhysicalOperatorPort
	PEIndex      uint64
	Resources    *Resources
}

// PhysicalOperatorPort is a physical operator's port; StaticConnections
// reference it by (PhysicalOperatorIndex, PortIndex, Kind).
type PhysicalOperatorPort struct {
	Index       int
	Kind        PortDirection
	Threaded    *ThreadedPort
	Viewable    *Viewable
	Connections []PhysicalConnection
}

// PhysicalConnection is a fully-resolved directed edge between two physical
// operator ports, produced by the composite/splitter expansion traversal.
// SplitterIndex/ChannelIndex are set when the traversal fanned out through a
// splitter: one PhysicalConnection is emitted per channel.
type PhysicalConnection struct {
	FromOperIndex uint64
	FromPort      int
	ToOperIndex   uint64
	ToPort        int
	PortKind      PortDirection
	SplitterIndex *uint64
	ChannelIndex  *int64
}

// PhysicalPE is a processing element: an OS-process-equivalent container of
// one or more physical operators.
type PhysicalPE struct {
	Index       uint64
	Operators   []uint64 // physical operator indices (PhysicalOperator.Index)
	InputPorts  []*PhysicalOperatorPort
	OutputPorts []*PhysicalOperatorPort
	Resources   *Resources
	Restartable bool
	Relocatable bool

	// OriginalIndex identifies the channel-0 template PE this replica was
	// derived from; equal to Index for a non-replicated (template) PE.
	OriginalIndex uint64
	replicas      map[int64]*PhysicalPE
}

// FindOrCreateReplica returns the PE instance owning channel channelIndex's
// copy of this PE's operators, creating an empty replica on first request.
func (pe *PhysicalPE) FindOrCreateReplica(channelIndex int64, nextIndex func() uint64) *PhysicalPE {
	if channelIndex == 0 {
		return pe
	}
	if pe.replicas == nil {
		pe.replicas = make(map[int64]*PhysicalPE)
	}
	if existing, ok := pe.replicas[channelIndex]; ok {
		return existing
	}
	replica := &PhysicalPE{
		Index:         nextIndex(),
		Resources:     pe.Resources,
		Restartable:   pe.Restartable,
		Relocatable:   pe.Relocatable,
		OriginalIndex: pe.Index,
	}
	pe.replicas[channelIndex] = replica
	return replica
}

// PhysicalParallelChannel records which parallel-region channel a PE (or
// group of PEs) was produced for, letting tooling attribute a fused PE back
// to its originating replica.
type PhysicalParallelChannel struct {
	RegionIndex  uint64
	ChannelIndex int64
}

// PhysicalSplitter is the physical realization of a logical SplitterOperator
// that survived fusion as a standalone routing operator — as opposed to one
// absorbed entirely into a colocated consumer during the late-removal pass.
type PhysicalSplitter struct {
	LogicalIndex uint64
	PEIndex      uint64
	Channels     []PhysicalParallelChannel
}

// StaticConnection is an inter-PE edge in the physical model: a (PE, port)
// pair on each side, classified as crossing a PE boundary during
// connection classification.
type StaticConnection struct {
	SourcePEIndex uint64
	SourceOpIndex uint64
	SourcePort    int
	TargetPEIndex uint64
	TargetOpIndex uint64
	TargetPort    int
	Transport     string
	Encoding      string
}
