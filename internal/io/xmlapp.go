// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package io

import (
	"encoding/xml"
	"fmt"
	"io"
)

// xmlDoc is the on-wire shape decoded by DecodeLogicalApp; EncodePhysicalApp
// writes its own output document type. It exists only at this package's
// boundary — the transform core never sees it.
type xmlDoc struct {
	XMLName    xml.Name       `xml:"application"`
	Composites []xmlComposite `xml:"composite"`
	Hostpools  []xmlHostpool  `xml:"hostpool"`
}

type xmlComposite struct {
	Name       string         `xml:"name,attr"`
	Main       bool           `xml:"main,attr"`
	Width      int            `xml:"parallel>width"`
	Tags       []string       `xml:"parallel>replicateTag"`
	Composites []xmlComposite `xml:"composite"`
	Primitives []xmlPrimitive `xml:"primitive"`
}

type xmlPrimitive struct {
	Name         string  `xml:"name,attr"`
	ToolkitIndex int     `xml:"toolkitIndex,attr"`
	OriginalPE   *uint64 `xml:"originalPE,attr"`
	Placement    string  `xml:"placement,attr"`
}

type xmlHostpool struct {
	Name  string   `xml:"name,attr"`
	Size  int      `xml:"size,attr"`
	Hosts []string `xml:"host"`
	Tags  []string `xml:"tag"`
}

// DecodeLogicalApp reads an XML-encoded logical application tree. It
// performs only structural decode — no validation, no defaulting; the
// transform core's buildLogicalModel step is the single place malformed
// input becomes a fatal *model.Failure.
func DecodeLogicalApp(r io.Reader) (*LogicalApp, error) {
	var doc xmlDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode logical application: %w", err)
	}
	if len(doc.Composites) == 0 {
		return nil, fmt.Errorf("decode logical application: no root composite")
	}
	app := &LogicalApp{
		MainComposite: decodeComposite(doc.Composites[0]),
	}
	for _, hp := range doc.Hostpools {
		app.Hostpools = append(app.Hostpools, HostpoolNode{
			Name: hp.Name, Size: hp.Size, Hosts: hp.Hosts, Tags: hp.Tags,
		})
	}
	return app, nil
}

func decodeComposite(c xmlComposite) CompositeNode {
	node := CompositeNode{Name: c.Name, IsMain: c.Main}
	if c.Width > 0 {
		node.Parallel = &ParallelAnnotation{Width: c.Width, ReplicateTags: c.Tags}
	}
	for _, nested := range c.Composites {
		node.Composites = append(node.Composites, decodeComposite(nested))
	}
	for _, p := range c.Primitives {
		node.Primitives = append(node.Primitives, PrimitiveNode{
			Name:         p.Name,
			ToolkitIndex: p.ToolkitIndex,
			OriginalPE:   p.OriginalPE,
			Placement:    p.Placement,
		})
	}
	return node
}

// EncodePhysicalApp writes the physical application tree as XML.
func EncodePhysicalApp(w io.Writer, app *PhysicalApp) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	type pe struct {
		Index     uint64   `xml:"index,attr"`
		Operators []uint64 `xml:"operator"`
	}
	type doc struct {
		XMLName xml.Name `xml:"physicalApplication"`
		PEs     []pe     `xml:"pe"`
	}
	out := doc{}
	for _, p := range app.PEs {
		out.PEs = append(out.PEs, pe{Index: p.Index, Operators: p.OperatorIndices})
	}
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode physical application: %w", err)
	}
	return enc.Flush()
}
