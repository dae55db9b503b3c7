// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

// Package io defines the narrow external-collaborator surface the
// transform core reads a logical application through and writes a
// physical application through. The core never touches XML directly; it
// reads and fills the plain data types declared here.
package io

// LogicalApp is an input application tree as plain data. Decoders (e.g.
// DecodeLogicalApp in xmlapp.go) own the actual decode; the core only
// reads the fields.
type LogicalApp struct {
	MainComposite CompositeNode
	Hostpools     []HostpoolNode
}

// CompositeNode describes one composite operator instance in the input
// tree: its nested composites, primitives, ports, and (if it roots a
// parallel region) its replication annotation.
type CompositeNode struct {
	Name        string
	IsMain      bool
	Composites  []CompositeNode
	Primitives  []PrimitiveNode
	Imports     []ImportNode
	Exports     []ExportNode
	InputPorts  []PortNode
	OutputPorts []PortNode
	Parallel    *ParallelAnnotation
	CCRegions   []CCAnnotation
}

// PrimitiveNode describes one primitive operator instance.
type PrimitiveNode struct {
	Name                 string
	ToolkitIndex         int
	InputPorts           []PrimitivePortNode
	OutputPorts          []PrimitivePortNode
	OriginalPE           *uint64
	Placement            string
	ColocationConstraint bool
	CCAnnotation         *CCAnnotation
	ConfigExpressions    map[string]string
	// HostpoolName, if non-empty, names the hostpool (by HostpoolNode.Name)
	// this operator's PE must be placed within.
	HostpoolName string
}

// ImportNode is an import pseudo-operator instance: a single output port
// exposing an imported stream, connected like any other operator port.
type ImportNode struct {
	Name       string
	Spec       ImportSpec
	OutputPort PrimitivePortNode
}

// ExportNode is an export pseudo-operator instance: a single input port
// terminating an exported stream.
type ExportNode struct {
	Name      string
	Spec      ExportSpec
	InputPort PrimitivePortNode
}

// PortNode is a composite-level port: index plus the producers feeding it
// (incoming) and the consumers it feeds (outgoing). For an input port the
// producers are outside the composite and the consumers inside it; for an
// output port it is the other way round. Both lists are expressed as
// references to (operator name, port index) pairs resolved during logical
// construction.
type PortNode struct {
	Index    int
	Incoming []EndpointRef
	Outgoing []EndpointRef
}

// PrimitivePortNode is a primitive operator's port.
type PrimitivePortNode struct {
	Index                  int
	Name                   string
	Transport              string
	Encoding               string
	TupleTypeIndex         int
	IsMutable              bool
	IsControl              bool
	StreamName             string
	Viewable               bool
	ViewableName           string
	SingleThreadedOnOutput bool
	ThreadedPort           *ThreadedPortSpec
	Connections            []EndpointRef
}

// ThreadedPortSpec mirrors model.ThreadedPort as read from input.
type ThreadedPortSpec struct {
	CongestionPolicy string
	QueueSize        int
	SingleThreaded   bool
}

// EndpointRef names a port connection target by operator name (resolved to
// an index during logical construction) and port index.
type EndpointRef struct {
	OperatorName string
	PortIndex    int
}

// ParallelAnnotation is the input-side parallel-region annotation on a
// composite.
type ParallelAnnotation struct {
	Width         int
	ReplicateTags []string
}

// CCAnnotation is the input-side consistent-cut annotation, attachable to a
// composite (region boundary) or a primitive operator (per-operator flags).
type CCAnnotation struct {
	LogicalIndex     int
	IsOperatorDriven bool
	DrainTimeout     float64
	ResetTimeout     float64
	IsStartOfRegion  bool
	IsEndOfRegion    bool
	IsOblivious      bool
	KeyValues        map[string]string
}

// ImportSpec describes a name-based or property-based import.
type ImportSpec struct {
	NameBased        bool
	ApplicationName  string
	StreamName       string
	SubscriptionExpr string
}

// ExportSpec describes an export's published stream name and properties.
type ExportSpec struct {
	StreamName string
	Properties map[string]string
}

// HostpoolNode is the input-side hostpool declaration.
type HostpoolNode struct {
	Name              string
	Size              int
	Exclusive         bool
	Hosts             []string
	Tags              []string
	ReplicateHostTags []string
}

// PhysicalApp is the output physical application as plain data, filled in
// by the core. The encoder owns serialization.
type PhysicalApp struct {
	PEs       []PhysicalPENode
	Operators []PhysicalOperatorNode
	Hostpools []HostpoolNode
}

// PhysicalPENode is one PE in the output tree.
type PhysicalPENode struct {
	Index             uint64
	OperatorIndices   []uint64
	StaticConnections []StaticConnectionNode
	Restartable       bool
	Relocatable       bool
}

// StaticConnectionNode records one directed PE-to-PE edge in the output.
type StaticConnectionNode struct {
	FromPE, FromOperator, FromPort int
	ToPE, ToOperator, ToPort       int
	Direction                      string // "Outgoing" or "Incoming"
}

// PhysicalOperatorNode is one physical operator in the output tree.
type PhysicalOperatorNode struct {
	Index        uint64
	LogicalIndex uint64
	ChannelIndex int64
	PEIndex      uint64
	InputPorts   []int
	OutputPorts  []int
}
