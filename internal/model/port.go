// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

// Port is the tagged-union surface for every port variant in the model.
// Concrete types are PrimitiveInputPort, PrimitiveOutputPort,
// ImportOutputPort, ExportInputPort, CompositeInputPort, CompositeOutputPort.
// Dispatch is per-variant via type switches at call sites: no virtual
// method hierarchy, just an index and a kind tag.
type Port interface {
	Index() int
	OwnerIndex() uint64
	Direction() PortDirection
}

// PortBase carries the fields shared by every port variant.
type PortBase struct {
	index      int
	ownerIndex uint64
}

func (p *PortBase) Index() int         { return p.index }
func (p *PortBase) OwnerIndex() uint64 { return p.ownerIndex }

// NewPortBase constructs the embeddable base for a port owned by the
// operator at ownerIndex, at position index within its port list.
func NewPortBase(index int, ownerIndex uint64) PortBase {
	return PortBase{index: index, ownerIndex: ownerIndex}
}

// ThreadedPort decouples an input port's incoming edge with a queue and a
// worker thread.
type ThreadedPort struct {
	CongestionPolicy string // "wait", "dropFirst", "dropLast", "dropAll"
	QueueSize        int
	SingleThreaded   bool
	// AutoInjected records whether the runtime fusion pass injected this
	// threaded port on the operator's behalf (as opposed to the operator
	// author declaring it explicitly). Only auto-injected threaded ports
	// are eligible for the late removal pass.
	AutoInjected bool
}

// Viewable marks an output port as introspectable by the runtime's view
// service.
type Viewable struct {
	Name string
}

// PrimitiveInputPort is an input port on a primitive operator.
type PrimitiveInputPort struct {
	PortBase
	Name           string
	Transport      string
	Encoding       string
	TupleTypeIndex int
	IsMutable      bool
	IsControl      bool
	ThreadedPort   *ThreadedPort
	connections    []Connection
}

func (p *PrimitiveInputPort) Direction() PortDirection      { return Input }
func (p *PrimitiveInputPort) connectionList() *[]Connection { return &p.connections }
func (p *PrimitiveInputPort) Connections() []Connection     { return p.connections }

// AppendConnection records an additional connection on this port without
// disturbing any already present — used by replication when cloning a
// port's edges onto a fresh replica port.
func (p *PrimitiveInputPort) AppendConnection(c Connection) { p.connections = append(p.connections, c) }

// PrimitiveOutputPort is an output port on a primitive operator.
type PrimitiveOutputPort struct {
	PortBase
	Name                   string
	Transport              string
	Encoding               string
	TupleTypeIndex         int
	IsMutable              bool
	StreamName             string
	Viewable               *Viewable
	SingleThreadedOnOutput bool
	connections            []Connection
}

func (p *PrimitiveOutputPort) Direction() PortDirection      { return Output }
func (p *PrimitiveOutputPort) connectionList() *[]Connection { return &p.connections }
func (p *PrimitiveOutputPort) Connections() []Connection     { return p.connections }

// AppendConnection records an additional connection on this port.
func (p *PrimitiveOutputPort) AppendConnection(c Connection) {
	p.connections = append(p.connections, c)
}

// ImportOutputPort is the single output port of an import pseudo-operator.
type ImportOutputPort struct {
	PortBase
	TupleTypeIndex int
	connections    []Connection
}

func (p *ImportOutputPort) Direction() PortDirection      { return Output }
func (p *ImportOutputPort) connectionList() *[]Connection { return &p.connections }
func (p *ImportOutputPort) Connections() []Connection     { return p.connections }

// AppendConnection records an additional connection on this port.
func (p *ImportOutputPort) AppendConnection(c Connection) { p.connections = append(p.connections, c) }

// ExportInputPort is the single input port of an export pseudo-operator.
type ExportInputPort struct {
	PortBase
	TupleTypeIndex int
	connections    []Connection
}

func (p *ExportInputPort) Direction() PortDirection      { return Input }
func (p *ExportInputPort) connectionList() *[]Connection { return &p.connections }
func (p *ExportInputPort) Connections() []Connection     { return p.connections }

// AppendConnection records an additional connection on this port.
func (p *ExportInputPort) AppendConnection(c Connection) { p.connections = append(p.connections, c) }

// CompositeInputPort is a port on a composite operator's interior-facing
// boundary. Connections are split into Incoming (from outside the
// composite, terminating here) and Outgoing (from here, fanning out to the
// interior operators that consume the composite's input).
type CompositeInputPort struct {
	PortBase
	Incoming []Connection
	Outgoing []Connection
}

func (p *CompositeInputPort) Direction() PortDirection { return Input }

// CompositeOutputPort is the output-side counterpart: Incoming connections
// come from the interior operators that produce the composite's output;
// Outgoing connections fan out to consumers outside the composite.
type CompositeOutputPort struct {
	PortBase
	Incoming []Connection
	Outgoing []Connection
}

func (p *CompositeOutputPort) Direction() PortDirection { return Output }

// AddIncoming records a connection arriving at a composite port's interior
// boundary.
func (p *CompositeInputPort) AddIncoming(c Connection) { p.Incoming = append(p.Incoming, c) }

// AddOutgoing records a connection leaving a composite port toward the
// interior operators it feeds.
func (p *CompositeInputPort) AddOutgoing(c Connection) { p.Outgoing = append(p.Outgoing, c) }

// AddIncoming records a connection arriving at a composite output port from
// an interior producer.
func (p *CompositeOutputPort) AddIncoming(c Connection) { p.Incoming = append(p.Incoming, c) }

// AddOutgoing records a connection leaving a composite output port toward an
// exterior consumer.
func (p *CompositeOutputPort) AddOutgoing(c Connection) { p.Outgoing = append(p.Outgoing, c) }
