package build

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/convfn"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

func id(t *testing.T, path string) descriptor.Identifier {
	t.Helper()
	i, err := descriptor.NewIdentifier(path, "1.0.0")
	require.NoError(t, err)
	return i
}

// copyTaskFactory drains its single "x" input to its single "y" output,
// modelling the S1 identity-pipeline scenario's internal copy treatment.
func copyTaskFactory(params map[string]value.Const, models map[string]builder.ModelHandle, ins map[string]*transmission.InputHandle, outs map[string]*transmission.OutputHandle) builder.Task {
	return func(ctx context.Context) error {
		in := ins["x"]
		out := outs["y"]
		for {
			v, err := in.RecvOneU8()
			if err != nil {
				break
			}
			if err := out.SendOneU8(v); err != nil {
				break
			}
		}
		return out.Close()
	}
}

func TestLaunchIdentityPipeline(t *testing.T) {
	t.Parallel()

	reg := builder.NewRegistry(nil, convfn.NewTable())

	copyID := id(t, "test/Copy")
	copyDesc := descriptor.NewTreatmentDescriptor(copyID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "x", Flow: descriptor.FlowStream, Datatype: descriptor.Prim(descriptor.PrimitiveU8)}},
		[]descriptor.IODecl{{Name: "y", Flow: descriptor.FlowStream, Datatype: descriptor.Prim(descriptor.PrimitiveU8)}},
		nil,
	)
	require.NoError(t, reg.Register(builder.NewPrimitiveBuilder(copyDesc, copyTaskFactory)))

	entryID := id(t, "test/Entry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: descriptor.Prim(descriptor.PrimitiveU8)}},
		[]descriptor.IODecl{{Name: "out", Flow: descriptor.FlowStream, Datatype: descriptor.Prim(descriptor.PrimitiveU8)}},
		builder.Design{
			Treatments: []builder.TreatmentInstance{{Label: "c", TreatmentID: copyID}},
			Connections: []builder.Connection{
				{From: builder.ConnectionEndpoint{Port: "in"}, To: builder.ConnectionEndpoint{InstanceLabel: "c", Port: "x"}},
				{From: builder.ConnectionEndpoint{InstanceLabel: "c", Port: "y"}, To: builder.ConnectionEndpoint{Port: "out"}},
			},
		},
	)
	entryBuilder, err := builder.NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entryBuilder))
	require.NoError(t, reg.Validate())

	tree, feeding, err := Launch(context.Background(), reg, entryID, Params{}, nil)
	require.NoError(t, err)
	require.Contains(t, feeding, "in")

	sender := feeding["in"]
	for _, v := range []uint8{1, 2, 3, 4, 5} {
		require.NoError(t, sender.SendOneU8(v))
	}
	require.NoError(t, sender.Close())

	require.NoError(t, tree.Wait(0))
}

func TestBuildGenesisFillsDefaultAndRejectsMissing(t *testing.T) {
	t.Parallel()

	funcs := convfn.NewTable()
	descWithDefault := descriptor.NewTreatmentDescriptor(
		id(t, "test/WithDefault"),
		[]descriptor.Parameter{{Name: "n", Type: descriptor.Prim(descriptor.PrimitiveU32), Default: value.Literal{Data: value.Data{Type: descriptor.Prim(descriptor.PrimitiveU32), Prim: uint32(3)}}}},
		nil, nil, nil, nil, nil, nil,
	)
	genesis, err := buildGenesis(descWithDefault, Params{}, nil, funcs)
	require.NoError(t, err)
	require.Equal(t, uint32(3), genesis.Parameters["n"].Value.Prim)

	descRequired := descriptor.NewTreatmentDescriptor(
		id(t, "test/Required"),
		[]descriptor.Parameter{{Name: "n", Type: descriptor.Prim(descriptor.PrimitiveU32)}},
		nil, nil, nil, nil, nil, nil,
	)
	_, err = buildGenesis(descRequired, Params{}, nil, funcs)
	require.Error(t, err)
}

func TestBuildGenesisRejectsContextForConst(t *testing.T) {
	t.Parallel()

	ctxID := id(t, "std/Request")
	desc := descriptor.NewTreatmentDescriptor(
		id(t, "test/ConstOnly"),
		[]descriptor.Parameter{{Name: "n", Type: descriptor.Prim(descriptor.PrimitiveU32), Const: true}},
		nil, nil, nil, nil, nil, nil,
	)
	_, err := buildGenesis(desc, Params{"n": value.ContextFieldRef{ContextID: ctxID, Field: "n"}}, nil, convfn.NewTable())
	require.Error(t, err)
	require.Contains(t, err.Error(), "context")
}
