// Copyright 2024 CONJUGATE Project
// Licensed under the Apache License, Version 2.0

package transform

import (
	"testing"

	streamio "github.com/conjugate/streamform/internal/io"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearApp() *streamio.LogicalApp {
	return &streamio.LogicalApp{
		MainComposite: streamio.CompositeNode{
			Name:   "main",
			IsMain: true,
			Imports: []streamio.ImportNode{
				{
					Name: "src",
					Spec: streamio.ImportSpec{NameBased: true, StreamName: "in"},
					OutputPort: streamio.PrimitivePortNode{
						Index:       0,
						Connections: []streamio.EndpointRef{{OperatorName: "p1", PortIndex: 0}},
					},
				},
			},
			Primitives: []streamio.PrimitiveNode{
				{
					Name:       "p1",
					InputPorts: []streamio.PrimitivePortNode{{Index: 0}},
					OutputPorts: []streamio.PrimitivePortNode{{
						Index:       0,
						Connections: []streamio.EndpointRef{{OperatorName: "p2", PortIndex: 0}},
					}},
				},
				{
					Name:       "p2",
					InputPorts: []streamio.PrimitivePortNode{{Index: 0}},
					OutputPorts: []streamio.PrimitivePortNode{{
						Index:       0,
						Connections: []streamio.EndpointRef{{OperatorName: "sink", PortIndex: 0}},
					}},
				},
			},
			Exports: []streamio.ExportNode{
				{
					Name:      "sink",
					Spec:      streamio.ExportSpec{StreamName: "out"},
					InputPort: streamio.PrimitivePortNode{Index: 0},
				},
			},
		},
	}
}

func TestRunWithModels_LinearChain(t *testing.T) {
	lm, pm, physApp, err := RunWithModels(linearApp(), Options{})
	require.NoError(t, err)
	require.NotNil(t, lm)
	require.NotNil(t, pm)

	assert.Len(t, pm.AllOperators(), 2, "one physical operator per primitive")
	assert.Len(t, pm.AllPEs(), 2, "p1 and p2 each get their own template PE with no OriginalPE set")
	assert.Len(t, pm.StaticConnections(), 1, "p1->p2 crosses a PE boundary exactly once")

	sc := pm.StaticConnections()[0]
	assert.NotEqual(t, sc.SourcePEIndex, sc.TargetPEIndex)

	assert.Len(t, physApp.PEs, 2)
	assert.Len(t, physApp.Operators, 2)
}

func TestRun_ReturnsFlattenedApp(t *testing.T) {
	out, err := Run(linearApp(), Options{})
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Len(t, out.Operators, 2)
}

func TestRunWithModels_SharedOriginalPE(t *testing.T) {
	app := linearApp()
	pe := uint64(7)
	app.MainComposite.Primitives[0].OriginalPE = &pe
	app.MainComposite.Primitives[1].OriginalPE = &pe

	_, pm, _, err := RunWithModels(app, Options{})
	require.NoError(t, err)

	assert.Len(t, pm.AllPEs(), 1, "both primitives share the same template PE index")
	assert.Empty(t, pm.StaticConnections(), "a colocated edge never becomes a static connection")
}

func parallelApp() *streamio.LogicalApp {
	originalPE := uint64(5)
	return &streamio.LogicalApp{
		MainComposite: streamio.CompositeNode{
			Name:   "main",
			IsMain: true,
			Composites: []streamio.CompositeNode{
				{
					Name:     "par",
					Parallel: &streamio.ParallelAnnotation{Width: 2},
					Imports: []streamio.ImportNode{
						{
							Name: "src",
							Spec: streamio.ImportSpec{NameBased: true, StreamName: "in"},
							OutputPort: streamio.PrimitivePortNode{
								Index:       0,
								Connections: []streamio.EndpointRef{{OperatorName: "worker", PortIndex: 0}},
							},
						},
					},
					Primitives: []streamio.PrimitiveNode{
						{
							Name:       "worker",
							OriginalPE: &originalPE,
							InputPorts: []streamio.PrimitivePortNode{{Index: 0}},
							OutputPorts: []streamio.PrimitivePortNode{{
								Index:       0,
								Connections: []streamio.EndpointRef{{OperatorName: "sink", PortIndex: 0}},
							}},
						},
					},
					Exports: []streamio.ExportNode{
						{
							Name:      "sink",
							Spec:      streamio.ExportSpec{StreamName: "out"},
							InputPort: streamio.PrimitivePortNode{Index: 0},
						},
					},
				},
			},
		},
	}
}

// parallelWithBoundaryPortsApp builds a parallel composite that is fed and
// drained through real composite-level InputPorts/OutputPorts, rather than
// the Import/Export pseudo-operators parallelApp uses for its own boundary.
// The external producer and consumer are ordinary primitives, which is what
// exercises the kind-sensitive Rewire lookup in injectSplitter/injectMerger.
func parallelWithBoundaryPortsApp() *streamio.LogicalApp {
	originalPE := uint64(9)
	return &streamio.LogicalApp{
		MainComposite: streamio.CompositeNode{
			Name:   "main",
			IsMain: true,
			Primitives: []streamio.PrimitiveNode{
				{
					Name:        "ext_producer",
					OutputPorts: []streamio.PrimitivePortNode{{Index: 0}},
				},
				{
					Name:       "ext_consumer",
					InputPorts: []streamio.PrimitivePortNode{{Index: 0}},
				},
			},
			Composites: []streamio.CompositeNode{
				{
					Name:     "par",
					Parallel: &streamio.ParallelAnnotation{Width: 2},
					InputPorts: []streamio.PortNode{
						{
							Index:    0,
							Incoming: []streamio.EndpointRef{{OperatorName: "ext_producer", PortIndex: 0}},
							Outgoing: []streamio.EndpointRef{{OperatorName: "worker", PortIndex: 0}},
						},
					},
					OutputPorts: []streamio.PortNode{
						{
							Index:    0,
							Incoming: []streamio.EndpointRef{{OperatorName: "worker", PortIndex: 0}},
							Outgoing: []streamio.EndpointRef{{OperatorName: "ext_consumer", PortIndex: 0}},
						},
					},
					Primitives: []streamio.PrimitiveNode{
						{
							Name:        "worker",
							OriginalPE:  &originalPE,
							InputPorts:  []streamio.PrimitivePortNode{{Index: 0}},
							OutputPorts: []streamio.PrimitivePortNode{{Index: 0}},
						},
					},
				},
			},
		},
	}
}

func TestRunWithModels_ParallelRegionWithBoundaryPorts(t *testing.T) {
	lm, pm, _, err := RunWithModels(parallelWithBoundaryPortsApp(), Options{})
	require.NoError(t, err)

	var producerIdx, consumerIdx uint64
	for _, op := range lm.AllOperators() {
		switch op.LogicalName() {
		case "ext_producer":
			producerIdx = op.Index()
		case "ext_consumer":
			consumerIdx = op.Index()
		}
	}

	producerPhys, err := pm.Operator(producerIdx)
	require.NoError(t, err, "ext_producer must survive physical build with a physical operator")
	consumerPhys, err := pm.Operator(consumerIdx)
	require.NoError(t, err, "ext_consumer must survive physical build with a physical operator")

	require.Len(t, pm.StaticConnections(), 4,
		"splitter fan-out (2 channels) plus merger fan-in (2 channels) cross PE boundaries")

	var fromProducer, toConsumer int
	workerPEs := map[uint64]bool{}
	for _, sc := range pm.StaticConnections() {
		if sc.SourceOpIndex == producerPhys.Index {
			fromProducer++
			workerPEs[sc.TargetPEIndex] = true
		}
		if sc.TargetOpIndex == consumerPhys.Index {
			toConsumer++
			workerPEs[sc.SourcePEIndex] = true
		}
	}
	assert.Equal(t, 2, fromProducer, "ext_producer must reach both replicated worker channels through the splitter")
	assert.Equal(t, 2, toConsumer, "both replicated worker channels must reach ext_consumer through the merger")
	assert.Len(t, workerPEs, 2, "the two worker channels must land on two distinct PEs (template + replica)")
}

func TestRunWithModels_ParallelRegionReplicatesOntoSharedTemplate(t *testing.T) {
	_, pm, _, err := RunWithModels(parallelApp(), Options{})
	require.NoError(t, err)

	ops := pm.AllOperators()
	require.Len(t, ops, 2, "one worker physical operator per replicated channel")

	channels := map[int64]uint64{}
	for _, op := range ops {
		channels[op.ChannelIndex] = op.PEIndex
	}
	require.Contains(t, channels, int64(0))
	require.Contains(t, channels, int64(1))

	assert.Equal(t, uint64(5), channels[0], "channel 0 lands directly on the OriginalPE-keyed template")
	assert.NotEqual(t, channels[0], channels[1], "channel 1 gets its own replica PE, never the template")

	assert.Len(t, pm.AllPEs(), 2, "template plus one replica")
}
