package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	"github.com/alexisbeaulieu97/melodium/internal/value"
	pkgerrors "github.com/alexisbeaulieu97/melodium/pkg/errors"
)

// TestStaticBuildRefusesRecursiveInstantiation: a pair of composites that
// instantiate each other must be refused during static build instead of
// recursing without bound.
func TestStaticBuildRefusesRecursiveInstantiation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, nil)
	aID := mustID(t, "loop/A")
	bID := mustID(t, "loop/B")

	aDesc := descriptor.NewTreatmentDescriptor(aID, nil, nil, nil, nil, nil, nil,
		Design{Treatments: []TreatmentInstance{{Label: "b", TreatmentID: bID}}})
	bDesc := descriptor.NewTreatmentDescriptor(bID, nil, nil, nil, nil, nil, nil,
		Design{Treatments: []TreatmentInstance{{Label: "a", TreatmentID: aID}}})

	aBuilder, err := NewCompositeBuilder(aDesc)
	require.NoError(t, err)
	bBuilder, err := NewCompositeBuilder(bDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(aBuilder))
	require.NoError(t, reg.Register(bBuilder))

	arena := NewArena()
	_, err = aBuilder.StaticBuild(reg, arena, DirectHost, "", GenesisEnvironment{})
	require.Error(t, err)

	var cycleErr *pkgerrors.AlreadyIncludedBuildStep
	require.ErrorAs(t, err, &cycleErr)
	require.Equal(t, aID.String(), cycleErr.DescriptorID)
}

// TestDynamicBuildMemoisation: a second dynamic build of the same
// (build, track) pair must return the same feeding senders and produce no
// further prepared futures.
func TestDynamicBuildMemoisation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(nil, nil)
	u8 := descriptor.Prim(descriptor.PrimitiveU8)

	leafID := mustID(t, "memo/Leaf")
	leafDesc := descriptor.NewTreatmentDescriptor(leafID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: u8}},
		nil, nil,
	)
	leaf := NewPrimitiveBuilder(leafDesc, func(_ map[string]value.Const, _ map[string]ModelHandle, ins map[string]*transmission.InputHandle, _ map[string]*transmission.OutputHandle) Task {
		return func(ctx context.Context) error {
			for {
				if _, err := ins["in"].RecvMany(); err != nil {
					return nil
				}
			}
		}
	})
	require.NoError(t, reg.Register(leaf))

	entryID := mustID(t, "memo/Entry")
	entryDesc := descriptor.NewTreatmentDescriptor(entryID, nil, nil, nil, nil,
		[]descriptor.IODecl{{Name: "in", Flow: descriptor.FlowStream, Datatype: u8}},
		nil,
		Design{
			Treatments: []TreatmentInstance{{Label: "l", TreatmentID: leafID}},
			Connections: []Connection{
				{From: ConnectionEndpoint{Port: "in"}, To: ConnectionEndpoint{InstanceLabel: "l", Port: "in"}},
			},
		},
	)
	entry, err := NewCompositeBuilder(entryDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(entry))

	arena := NewArena()
	staticRes, err := entry.StaticBuild(reg, arena, DirectHost, "", GenesisEnvironment{})
	require.NoError(t, err)

	first, err := entry.DynamicBuild(reg, arena, staticRes.BuildID, 0, ContextualEnv{})
	require.NoError(t, err)
	require.Len(t, first.PreparedFutures, 1)
	require.Contains(t, first.FeedingInputs, "in")

	second, err := entry.DynamicBuild(reg, arena, staticRes.BuildID, 0, ContextualEnv{})
	require.NoError(t, err)
	require.Empty(t, second.PreparedFutures)
	require.Same(t, first.FeedingInputs["in"], second.FeedingInputs["in"])
}
