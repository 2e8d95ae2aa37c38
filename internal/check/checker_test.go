package check

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/convfn"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

// noopFactory backs a leaf treatment that is never dynamic-built in this
// test: only its descriptor (the generic declaration) matters to the
// checker.
func noopFactory(_ map[string]value.Const, _ map[string]builder.ModelHandle, _ map[string]*transmission.InputHandle, _ map[string]*transmission.OutputHandle) builder.Task {
	return func(ctx context.Context) error { return nil }
}

// TestCheckReportsUnsatisfiedTraits: a generic trait
// violation": a generic bound to a concrete type that fails a required
// trait must surface as an accumulated, non-fatal-until-gated error rather
// than panic or abort the rest of the traversal.
//
// The design assigns T = bool on the internal instance itself
// (builder.TreatmentInstance.Generics), so this exercises the real
// CompositeBuilder.StaticBuild masking path end to end rather than
// hand-assembling build records.
func TestCheckReportsUnsatisfiedTraits(t *testing.T) {
	t.Parallel()

	reg := builder.NewRegistry(nil, convfn.NewTable())

	childID, err := descriptor.NewIdentifier("test/NeedsSigned", "1.0.0")
	require.NoError(t, err)
	childDesc := descriptor.NewTreatmentDescriptor(childID, nil,
		[]descriptor.GenericDecl{{Name: "T", Traits: []descriptor.Trait{descriptor.TraitSigned}}},
		nil, nil, nil, nil, nil,
	)
	childBuilder := builder.NewPrimitiveBuilder(childDesc, noopFactory)
	require.NoError(t, reg.Register(childBuilder))

	parentID, err := descriptor.NewIdentifier("test/S5Entry", "1.0.0")
	require.NoError(t, err)
	parentDesc := descriptor.NewTreatmentDescriptor(parentID, nil, nil, nil, nil, nil, nil,
		builder.Design{
			Treatments: []builder.TreatmentInstance{
				{
					Label:       "n",
					TreatmentID: childID,
					// bool satisfies ToString/Equal/Hash but not Signed
					// (internal/descriptor/traits.go).
					Generics: map[string]descriptor.DescribedType{"T": descriptor.Prim(descriptor.PrimitiveBool)},
				},
			},
		},
	)
	parentBuilder, err := builder.NewCompositeBuilder(parentDesc)
	require.NoError(t, err)
	require.NoError(t, reg.Register(parentBuilder))
	require.NoError(t, reg.Validate())

	arena := builder.NewArena()
	staticRes, err := parentBuilder.StaticBuild(reg, arena, builder.DirectHost, "", builder.GenesisEnvironment{})
	require.NoError(t, err)

	status := New(reg, arena).Check(staticRes.BuildID)
	require.True(t, status.Failure)

	found := false
	for _, e := range status.Errors {
		if strings.Contains(e.Error(), "Signed") {
			found = true
		}
	}
	require.True(t, found, "expected an unsatisfied-traits error mentioning Signed, got: %v", status.Errors)
}
