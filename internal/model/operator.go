// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

// OperatorKind tags which concrete operator variant a ModelOperator is.
// Rather than a virtual method hierarchy, dispatch is flattened to a kind
// tag plus a type switch at each call site: a tagged sum type, not
// inheritance.
type OperatorKind int

const (
	Composite OperatorKind = iota
	Primitive
	Import
	Export
	Splitter
	Merger
)

func (k OperatorKind) String() string {
	switch k {
	case Composite:
		return "Composite"
	case Primitive:
		return "Primitive"
	case Import:
		return "Import"
	case Export:
		return "Export"
	case Splitter:
		return "Splitter"
	case Merger:
		return "Merger"
	default:
		return "Unknown"
	}
}

// Operator is the common surface every operator variant satisfies.
type Operator interface {
	Index() uint64
	Kind() OperatorKind
	LogicalName() string
	IsReplica() bool
	ChannelIndex() int64
	// OwningComposite returns the owning composite's index and true, or
	// (0, false) for the main composite, which has none.
	OwningComposite() (uint64, bool)
	// InParallelRegion returns the owning parallel region's index and true,
	// or (0, false) if the operator sits outside any parallel region.
	InParallelRegion() (uint64, bool)
}

// OperatorBase carries the fields shared by every operator variant.
// Back-references (owningComposite, parallelRegion) are non-owning index
// references, never pointers, so replication is just integer bookkeeping.
type OperatorBase struct {
	index           uint64
	logicalName     string
	channelIndex    int64 // -1 if outside a parallel region
	owningComposite *uint64
	parallelRegion  *uint64
	isReplica       bool
}

func (o *OperatorBase) Index() uint64       { return o.index }
func (o *OperatorBase) LogicalName() string { return o.logicalName }
func (o *OperatorBase) IsReplica() bool     { return o.isReplica }
func (o *OperatorBase) ChannelIndex() int64 { return o.channelIndex }

func (o *OperatorBase) OwningComposite() (uint64, bool) {
	if o.owningComposite == nil {
		return 0, false
	}
	return *o.owningComposite, true
}

func (o *OperatorBase) InParallelRegion() (uint64, bool) {
	if o.parallelRegion == nil {
		return 0, false
	}
	return *o.parallelRegion, true
}

// SetOwningComposite records the composite this operator is nested in.
func (o *OperatorBase) SetOwningComposite(idx uint64) { o.owningComposite = &idx }

// SetParallelRegionInfo records the parallel region and replica channel
// this operator belongs to. channelIndex must be in [0, region.Width).
func (o *OperatorBase) SetParallelRegionInfo(regionIndex uint64, channelIndex int64) {
	o.parallelRegion = &regionIndex
	o.channelIndex = channelIndex
}

// MarkReplica flags this operator as a clone produced by parallel-region
// replication rather than the original channel-0 instance.
func (o *OperatorBase) MarkReplica() { o.isReplica = true }

func newOperatorBase(index uint64, name string) OperatorBase {
	return OperatorBase{index: index, logicalName: name, channelIndex: -1}
}

// NewOperatorBase constructs the embeddable base every operator variant
// carries. Exported so the transform package's construction code (outside
// this package) can populate it without reimplementing field bookkeeping.
func NewOperatorBase(index uint64, name string) OperatorBase {
	return newOperatorBase(index, name)
}

// CCRegionAnnotation is a composite-level consistent-cut declaration,
// carried forward from the input tree onto the composite it was declared
// on for the CC-discovery stage to consume.
type CCRegionAnnotation struct {
	LogicalIndex     int
	IsOperatorDriven bool
	DrainTimeout     float64
	ResetTimeout     float64
}

// CompositeOperator is a structural container; it never executes.
type CompositeOperator struct {
	OperatorBase
	Children      []uint64
	InputPorts    []*CompositeInputPort
	OutputPorts   []*CompositeOutputPort
	IsMain        bool
	CCAnnotations []CCRegionAnnotation
}

func (o *CompositeOperator) Kind() OperatorKind { return Composite }

// PrimitiveOperator is the leaf unit of execution.
type PrimitiveOperator struct {
	OperatorBase
	ToolkitIndex         int
	InputPorts           []*PrimitiveInputPort
	OutputPorts          []*PrimitiveOutputPort
	OriginalPE           *uint64 // PE pre-assigned by the upstream fusion pass
	Placement            string  // colocation tag string, preserved verbatim
	ColocationConstraint bool
	CCInfo               *CCInfo
	// HostpoolIndex, if set, names the hostpool this operator's PE must be
	// placed within. Replication substitutes it on the clones of channels
	// 1..W-1 with the per-channel replica hostpool's index via
	// Hostpool.FindOrCreateReplica; the channel-0 original keeps the
	// hostpool it was declared with.
	HostpoolIndex *uint64
	// ConfigExpressions holds raw operator-parameter text that may contain
	// embedded intrinsic calls, rewritten in place during replication.
	ConfigExpressions map[string]string
}

func (o *PrimitiveOperator) Kind() OperatorKind { return Primitive }

// ImportOperator is a pseudo-operator exposing an imported stream as a
// single output port.
type ImportOperator struct {
	OperatorBase
	OutputPort *ImportOutputPort
	Stream     *ImportedStream
}

func (o *ImportOperator) Kind() OperatorKind { return Import }

// ExportOperator is a pseudo-operator terminating an exported stream on a
// single input port.
type ExportOperator struct {
	OperatorBase
	InputPort *ExportInputPort
	Stream    *ExportedStream
}

func (o *ExportOperator) Kind() OperatorKind { return Export }

// SplitterOperator fans one input into a parallel region's W channels.
type SplitterOperator struct {
	OperatorBase
	RegionIndex uint64
	InputPort   *PrimitiveInputPort
	OutputPorts []*PrimitiveOutputPort // one per channel, ordered 0..W-1
}

func (o *SplitterOperator) Kind() OperatorKind { return Splitter }

// MergerOperator fans a parallel region's W channels into one output. It
// is a logical bookkeeping placeholder only — the physical layer may never
// realize it as a runtime operator.
type MergerOperator struct {
	OperatorBase
	RegionIndex uint64
	InputPorts  []*PrimitiveInputPort // one per channel, ordered 0..W-1
	OutputPort  *PrimitiveOutputPort
}

func (o *MergerOperator) Kind() OperatorKind { return Merger }
