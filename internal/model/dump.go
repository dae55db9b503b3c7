// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package model

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes a human-readable tree of the logical model to w: one line
// per operator, indented by composite nesting depth, with ports and
// their connection counts.
func (lm *LogicalModel) Dump(w io.Writer, indent int) {
	for _, op := range lm.AllOperators() {
		pad := strings.Repeat("  ", indent)
		fmt.Fprintf(w, "%s#%d %s %q", pad, op.Index(), op.Kind(), op.LogicalName())
		if ch := op.ChannelIndex(); ch >= 0 {
			fmt.Fprintf(w, " channel=%d", ch)
		}
		if op.IsReplica() {
			fmt.Fprint(w, " [replica]")
		}
		fmt.Fprintln(w)
		dumpOperatorPorts(w, op, indent+1)
	}
}

func dumpOperatorPorts(w io.Writer, op Operator, indent int) {
	pad := strings.Repeat("  ", indent)
	switch o := op.(type) {
	case *PrimitiveOperator:
		for _, p := range o.InputPorts {
			fmt.Fprintf(w, "%sin[%d] %s <- %d conn\n", pad, p.Index(), p.Name, len(p.connections))
		}
		for _, p := range o.OutputPorts {
			fmt.Fprintf(w, "%sout[%d] %s -> %d conn\n", pad, p.Index(), p.Name, len(p.connections))
		}
	case *CompositeOperator:
		for _, p := range o.InputPorts {
			fmt.Fprintf(w, "%sin[%d] incoming=%d outgoing=%d\n", pad, p.Index(), len(p.Incoming), len(p.Outgoing))
		}
		for _, p := range o.OutputPorts {
			fmt.Fprintf(w, "%sout[%d] incoming=%d outgoing=%d\n", pad, p.Index(), len(p.Incoming), len(p.Outgoing))
		}
	}
}

// Dump writes a human-readable tree of the physical model to w: one line
// per PE, indented with its operators and their inter-PE connections.
func (pm *PhysicalModel) Dump(w io.Writer, indent int) {
	pad := strings.Repeat("  ", indent)
	for _, pe := range pm.AllPEs() {
		fmt.Fprintf(w, "%sPE#%d restartable=%v relocatable=%v\n", pad, pe.Index, pe.Restartable, pe.Relocatable)
		for _, opIdx := range pe.Operators {
			op, err := pm.operatorByIndex(opIdx)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s  op#%d (logical=%d channel=%d) in=%d out=%d\n",
				pad, op.Index, op.LogicalIndex, op.ChannelIndex, len(op.InputPorts), len(op.OutputPorts))
		}
	}
	for _, c := range pm.staticConnections {
		fmt.Fprintf(w, "%sconn PE#%d.op#%d[%d] -> PE#%d.op#%d[%d]\n", pad,
			c.SourcePEIndex, c.SourceOpIndex, c.SourcePort, c.TargetPEIndex, c.TargetOpIndex, c.TargetPort)
	}
}

func (pm *PhysicalModel) operatorByIndex(physicalIndex uint64) (*PhysicalOperator, error) {
	for _, op := range pm.operators {
		if op.Index == physicalIndex {
			return op, nil
		}
	}
	return nil, NewFailure(IndexOutOfRange, "no physical operator with index %d", physicalIndex)
}
