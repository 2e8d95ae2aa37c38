package builder

import (
	"fmt"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
)

// ModelFactory constructs the shared host-language value a model
// descriptor stands for (e.g. a connection pool), given its resolved
// genesis environment.
type ModelFactory func(genesis GenesisEnvironment) (any, error)

// ModelBuilder wraps a long-lived shared resource.
type ModelBuilder struct {
	desc    *descriptor.ModelDescriptor
	factory ModelFactory
}

// NewModelBuilder constructs a builder for a model descriptor.
func NewModelBuilder(desc *descriptor.ModelDescriptor, factory ModelFactory) *ModelBuilder {
	return &ModelBuilder{desc: desc, factory: factory}
}

func (b *ModelBuilder) Variant() Variant                 { return VariantModel }
func (b *ModelBuilder) Descriptor() descriptor.Descriptor { return b.desc }

// StaticBuild instantiates the model exactly once per call site and returns
// a ModelHandle to the shared value instead of a build id.
func (b *ModelBuilder) StaticBuild(reg *Registry, arena *Arena, hostBuildID int, label string, genesis GenesisEnvironment) (StaticBuildResult, error) {
	value, err := b.factory(genesis)
	if err != nil {
		return StaticBuildResult{}, fmt.Errorf("builder: instantiating model %s: %w", b.desc.ID(), err)
	}
	return StaticBuildResult{IsModel: true, Model: ModelHandle{ID: b.desc.ID(), Value: value}}, nil
}

// DynamicBuild, GiveNext and their check counterparts are no-ops for
// models: a model is not itself scheduled as a track-bound task tree, it is
// only referenced through genesis environments.
func (b *ModelBuilder) DynamicBuild(reg *Registry, arena *Arena, buildID, trackID int, env ContextualEnv) (DynamicBuildResult, error) {
	return DynamicBuildResult{}, nil
}

func (b *ModelBuilder) GiveNext(reg *Registry, arena *Arena, buildID, trackID int, childLabel string, env ContextualEnv) (DynamicBuildResult, error) {
	return DynamicBuildResult{}, nil
}

func (b *ModelBuilder) CheckDynamicBuild(reg *Registry, arena *Arena, buildID int, path *Path) []error {
	return nil
}

func (b *ModelBuilder) CheckGiveNext(reg *Registry, arena *Arena, buildID int, childLabel string, path *Path) []error {
	return nil
}

var _ Builder = (*ModelBuilder)(nil)
