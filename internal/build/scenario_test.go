package build

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/convfn"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/logger"
	"github.com/alexisbeaulieu97/melodium/internal/primitives"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

// The tests below exercise the scenario suite: an entry treatment wired
// entirely from the demonstration primitives, launched through the same
// registry/build-tree/checker pipeline a real design source would drive

func newScenarioRegistry(t *testing.T) *builder.Registry {
	t.Helper()
	log, err := logger.New(logger.Options{Level: "debug", Writer: io.Discard})
	require.NoError(t, err)
	reg := builder.NewRegistry(log, convfn.NewTable())
	require.NoError(t, primitives.RegisterAll(reg))
	return reg
}

func i64Type() descriptor.DescribedType { return descriptor.Prim(descriptor.PrimitiveI64) }

func demoID(t *testing.T, path string) descriptor.Identifier {
	t.Helper()
	i, err := descriptor.NewIdentifier(path, "1.0.0")
	require.NoError(t, err)
	return i
}

// TestScenarioIdentityPipeline: values
// fed into the entry's input come back unchanged on its output.
func TestScenarioIdentityPipeline(t *testing.T) {
	t.Parallel()
	reg := newScenarioRegistry(t)

	entryID := demoID(t, "test/S1Entry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		[]descriptor.IODecl{{Name: "out", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		builder.Design{
			Treatments: []builder.TreatmentInstance{{Label: "c", TreatmentID: demoID(t, "std/demo/copy")}},
			Connections: []builder.Connection{
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{InstanceLabel: "c", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "c", Port: "out"}, To: builder.ConnectionEndpoint{Port: "out"}},
			},
		},
	)
	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entryBuilder))
	require.NoError(t, reg.Validate())

	tree, feeding, err := Launch(context.Background(), reg, entryID, Params{}, nil)
	require.NoError(t, err)

	outputs := tree.Outputs(0)
	require.Contains(t, outputs, "out")

	in := feeding["in"]
	for _, v := range []int64{1, 2, 3} {
		require.NoError(t, in.SendOne(value.Data{Type: i64Type(), Prim: v}))
	}
	require.NoError(t, in.Close())

	out := outputs["out"]
	for _, want := range []int64{1, 2, 3} {
		got, err := out.RecvOne()
		require.NoError(t, err)
		assert.Equal(t, want, got.Prim)
	}
	require.NoError(t, tree.Wait(0))
}

// TestScenarioFanOut: a single stream replicated
// to three independent sinks, each draining the full sequence.
func TestScenarioFanOut(t *testing.T) {
	t.Parallel()
	reg := newScenarioRegistry(t)

	entryID := demoID(t, "test/S2Entry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		nil,
		builder.Design{
			Treatments: []builder.TreatmentInstance{
				{Label: "f", TreatmentID: demoID(t, "std/demo/fan_out3")},
				{Label: "v1", TreatmentID: demoID(t, "std/demo/to_void")},
				{Label: "v2", TreatmentID: demoID(t, "std/demo/to_void")},
				{Label: "v3", TreatmentID: demoID(t, "std/demo/to_void")},
			},
			Connections: []builder.Connection{
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{InstanceLabel: "f", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "f", Port: "out1"}, To: builder.ConnectionEndpoint{InstanceLabel: "v1", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "f", Port: "out2"}, To: builder.ConnectionEndpoint{InstanceLabel: "v2", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "f", Port: "out3"}, To: builder.ConnectionEndpoint{InstanceLabel: "v3", Port: "in"}},
			},
		},
	)
	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entryBuilder))
	require.NoError(t, reg.Validate())

	tree, feeding, err := Launch(context.Background(), reg, entryID, Params{}, nil)
	require.NoError(t, err)

	in := feeding["in"]
	for _, v := range []int64{10, 20, 30} {
		require.NoError(t, in.SendOne(value.Data{Type: i64Type(), Prim: v}))
	}
	require.NoError(t, in.Close())

	require.NoError(t, tree.Wait(0))
}

// TestScenarioClosePropagation: closing
// the entry's fed input must let every downstream task observe Closed and
// return, so the whole track completes without the caller closing anything
// else.
func TestScenarioClosePropagation(t *testing.T) {
	t.Parallel()
	reg := newScenarioRegistry(t)

	entryID := demoID(t, "test/S3Entry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		nil,
		builder.Design{
			Treatments: []builder.TreatmentInstance{
				{Label: "c1", TreatmentID: demoID(t, "std/demo/copy")},
				{Label: "c2", TreatmentID: demoID(t, "std/demo/copy")},
				{Label: "v", TreatmentID: demoID(t, "std/demo/to_void")},
			},
			Connections: []builder.Connection{
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{InstanceLabel: "c1", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "c1", Port: "out"}, To: builder.ConnectionEndpoint{InstanceLabel: "c2", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "c2", Port: "out"}, To: builder.ConnectionEndpoint{InstanceLabel: "v", Port: "in"}},
			},
		},
	)
	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entryBuilder))
	require.NoError(t, reg.Validate())

	tree, feeding, err := Launch(context.Background(), reg, entryID, Params{}, nil)
	require.NoError(t, err)

	require.NoError(t, feeding["in"].Close())
	require.NoError(t, tree.Wait(0))
}

// TestScenarioParameterPropagation:
// a const launch parameter reaches a leaf treatment's resolved genesis
// environment and shapes its behaviour.
func TestScenarioParameterPropagation(t *testing.T) {
	t.Parallel()
	reg := newScenarioRegistry(t)

	entryID := demoID(t, "test/S4Entry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		[]descriptor.IODecl{{Name: "out", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		builder.Design{
			Treatments: []builder.TreatmentInstance{
				{
					Label:       "a",
					TreatmentID: demoID(t, "std/demo/static_add"),
					Params: map[string]descriptor.Expr{
						"addend": value.Literal{Data: value.Data{Type: i64Type(), Prim: int64(100)}},
					},
				},
			},
			Connections: []builder.Connection{
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{InstanceLabel: "a", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "a", Port: "out"}, To: builder.ConnectionEndpoint{Port: "out"}},
			},
		},
	)
	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entryBuilder))
	require.NoError(t, reg.Validate())

	tree, feeding, err := Launch(context.Background(), reg, entryID, Params{}, nil)
	require.NoError(t, err)

	outputs := tree.Outputs(0)
	in := feeding["in"]
	require.NoError(t, in.SendOne(value.Data{Type: i64Type(), Prim: int64(5)}))
	require.NoError(t, in.Close())

	got, err := outputs["out"].RecvOne()
	require.NoError(t, err)
	assert.Equal(t, int64(105), got.Prim)
	require.NoError(t, tree.Wait(0))
}

// TestScenarioGenericTraitViolation: binding the entry's declared generic
// to a type missing a required trait must abort the launch with an
// accumulated trait error and schedule nothing.
func TestScenarioGenericTraitViolation(t *testing.T) {
	t.Parallel()
	reg := newScenarioRegistry(t)

	entryID := demoID(t, "test/S5LaunchEntry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil,
		[]descriptor.GenericDecl{{Name: "T", Traits: []descriptor.Trait{descriptor.TraitAdd}}},
		nil, nil, nil, nil,
		builder.Design{},
	)
	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entryBuilder))
	require.NoError(t, reg.Validate())

	tree, _, err := Launch(context.Background(), reg, entryID, Params{},
		Generics{"T": descriptor.Prim(descriptor.PrimitiveString)})
	require.Error(t, err)
	require.Nil(t, tree)
	assert.Contains(t, err.Error(), "Add")
}

// TestScenarioNestedComposite: a composite nested inside another composite
// must wire its outward connections through its host's graph, so values
// fed at the outer entry traverse the inner design and surface on the
// outer output.
func TestScenarioNestedComposite(t *testing.T) {
	t.Parallel()
	reg := newScenarioRegistry(t)

	innerID := demoID(t, "test/InnerPass")
	innerDesc := descriptor.NewTreatmentDescriptor(innerID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		[]descriptor.IODecl{{Name: "out", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		builder.Design{
			Treatments: []builder.TreatmentInstance{{Label: "c", TreatmentID: demoID(t, "std/demo/copy")}},
			Connections: []builder.Connection{
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{InstanceLabel: "c", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "c", Port: "out"}, To: builder.ConnectionEndpoint{Port: "out"}},
			},
		},
	)
	innerBuilder, err := builder.NewCompositeBuilder(innerDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(innerBuilder))

	entryID := demoID(t, "test/NestedEntry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		[]descriptor.IODecl{{Name: "out", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		builder.Design{
			Treatments: []builder.TreatmentInstance{{Label: "p", TreatmentID: innerID}},
			Connections: []builder.Connection{
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{InstanceLabel: "p", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "p", Port: "out"}, To: builder.ConnectionEndpoint{Port: "out"}},
			},
		},
	)
	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entryBuilder))
	require.NoError(t, reg.Validate())

	tree, feeding, err := Launch(context.Background(), reg, entryID, Params{}, nil)
	require.NoError(t, err)

	in := feeding["in"]
	for _, v := range []int64{4, 5, 6} {
		require.NoError(t, in.SendOne(value.Data{Type: i64Type(), Prim: v}))
	}
	require.NoError(t, in.Close())

	out := tree.Outputs(0)["out"]
	require.NotNil(t, out)
	for _, want := range []int64{4, 5, 6} {
		got, err := out.RecvOne()
		require.NoError(t, err)
		assert.Equal(t, want, got.Prim)
	}
	require.NoError(t, tree.Wait(0))
}

// TestScenarioSelfInputFanOut: one entry input port feeding two internal
// consumers must hand each consumer the full sequence.
func TestScenarioSelfInputFanOut(t *testing.T) {
	t.Parallel()
	reg := newScenarioRegistry(t)

	entryID := demoID(t, "test/FanEntry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		[]descriptor.IODecl{{Name: "out", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		builder.Design{
			Treatments: []builder.TreatmentInstance{
				{Label: "c", TreatmentID: demoID(t, "std/demo/copy")},
				{Label: "v", TreatmentID: demoID(t, "std/demo/to_void")},
			},
			Connections: []builder.Connection{
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{InstanceLabel: "c", Port: "in"}},
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{InstanceLabel: "v", Port: "in"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "c", Port: "out"}, To: builder.ConnectionEndpoint{Port: "out"}},
			},
		},
	)
	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entryBuilder))
	require.NoError(t, reg.Validate())

	tree, feeding, err := Launch(context.Background(), reg, entryID, Params{}, nil)
	require.NoError(t, err)

	in := feeding["in"]
	for _, v := range []int64{7, 8} {
		require.NoError(t, in.SendOne(value.Data{Type: i64Type(), Prim: v}))
	}
	require.NoError(t, in.Close())

	out := tree.Outputs(0)["out"]
	require.NotNil(t, out)
	for _, want := range []int64{7, 8} {
		got, err := out.RecvOne()
		require.NoError(t, err)
		assert.Equal(t, want, got.Prim)
	}
	require.NoError(t, tree.Wait(0))
}

// TestScenarioDirectPassthrough: a connection straight from the entry's
// own input to its own output must deliver the fed values unchanged.
func TestScenarioDirectPassthrough(t *testing.T) {
	t.Parallel()
	reg := newScenarioRegistry(t)

	entryID := demoID(t, "test/DirectEntry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		[]descriptor.IODecl{{Name: "out", Flow: descriptor.FlowStream, Datatype: i64Type()}},
		builder.Design{
			Connections: []builder.Connection{
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{Port: "out"}},
			},
		},
	)
	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entryBuilder))
	require.NoError(t, reg.Validate())

	tree, feeding, err := Launch(context.Background(), reg, entryID, Params{}, nil)
	require.NoError(t, err)

	in := feeding["in"]
	require.NoError(t, in.SendOne(value.Data{Type: i64Type(), Prim: int64(11)}))
	require.NoError(t, in.Close())

	out := tree.Outputs(0)["out"]
	require.NotNil(t, out)
	got, err := out.RecvOne()
	require.NoError(t, err)
	assert.Equal(t, int64(11), got.Prim)
	require.NoError(t, tree.Wait(0))
}
