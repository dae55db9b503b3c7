// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

import "fmt"

// PortDirection distinguishes an input endpoint from an output endpoint.
type PortDirection int

const (
	Input PortDirection = iota
	Output
)

func (d PortDirection) String() string {
	if d == Input {
		return "Input"
	}
	return "Output"
}

// Connection is an endpoint reference: an operator index, a port index
// within that operator, and which port list (Input or Output) it names.
// A directed edge is represented as a pair of Connections: one stored on
// the source output port's connection list pointing at the destination,
// and one stored on the destination input port's connection list pointing
// back at the source. Maintaining that symmetry is the single most
// important invariant in the model. Rewire below edits one side of a pair
// only; code that retargets an edge updates the far side itself.
type Connection struct {
	OperIndex uint64
	PortIndex int
	PortKind  PortDirection
}

func (c Connection) String() string {
	return fmt.Sprintf("oper#%d.%s[%d]", c.OperIndex, c.PortKind, c.PortIndex)
}

// Rewire updates one endpoint of an edge: every occurrence of `oldEdge` on
// `at`'s connection list is replaced in place by `newEdge`, and `newEdge`
// is appended when `oldEdge` does not occur there. The far side's list is
// not touched; the caller adds or replaces the matching entry there.
func (lm *LogicalModel) Rewire(at Connection, oldEdge, newEdge Connection) error {
	port, err := lm.lookupConnectable(at)
	if err != nil {
		return err
	}
	list := port.connectionList()
	replaced := false
	for i, c := range *list {
		if c == oldEdge {
			(*list)[i] = newEdge
			replaced = true
		}
	}
	if !replaced {
		*list = append(*list, newEdge)
	}
	return nil
}

// Connect appends a fresh, symmetric pair of connections: `b` onto `a`'s
// connection list and `a` onto `b`'s. Used during initial logical
// construction where there is no prior edge to replace — Rewire is for
// later steps that retarget an existing edge.
func (lm *LogicalModel) Connect(a, b Connection) error {
	pa, err := lm.lookupConnectable(a)
	if err != nil {
		return err
	}
	pb, err := lm.lookupConnectable(b)
	if err != nil {
		return err
	}
	*pa.connectionList() = append(*pa.connectionList(), b)
	*pb.connectionList() = append(*pb.connectionList(), a)
	return nil
}

// connectable is satisfied by anything that owns a flat connection list:
// primitive input/output ports, import/export ports. Composite ports keep
// two separate lists (incoming/outgoing) and are handled by
// AddIncoming/AddOutgoing instead.
type connectable interface {
	connectionList() *[]Connection
}

func (lm *LogicalModel) lookupConnectable(at Connection) (connectable, error) {
	port, err := lm.port(at.OperIndex, at.PortIndex, at.PortKind)
	if err != nil {
		return nil, err
	}
	c, ok := port.(connectable)
	if !ok {
		return nil, NewPortFailure(MalformedInput, at.OperIndex, at.PortIndex,
			"port is a composite port; use AddIncoming/AddOutgoing")
	}
	return c, nil
}
