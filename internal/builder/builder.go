package builder

import "github.com/alexisbeaulieu97/melodium/internal/descriptor"

// Variant discriminates the three builder kinds registered under a
// descriptor identifier.
type Variant int

const (
	VariantPrimitive Variant = iota
	VariantComposite
	VariantModel
)

// Builder is the polymorphic capability set registered under one
// descriptor identifier: static_build, dynamic_build, give_next, and their
// check-only counterparts.
type Builder interface {
	Variant() Variant
	Descriptor() descriptor.Descriptor

	// StaticBuild allocates a build record (or instantiates a model),
	// resolving defaults and recursing into internal instances as needed.
	StaticBuild(reg *Registry, arena *Arena, hostBuildID int, label string, genesis GenesisEnvironment) (StaticBuildResult, error)

	// DynamicBuild materialises a running instance of buildID for trackID,
	// memoised per (buildID, trackID).
	DynamicBuild(reg *Registry, arena *Arena, buildID, trackID int, env ContextualEnv) (DynamicBuildResult, error)

	// GiveNext is called by a child treatment to obtain the senders for
	// connections leaving childLabel.
	GiveNext(reg *Registry, arena *Arena, buildID, trackID int, childLabel string, env ContextualEnv) (DynamicBuildResult, error)

	// CheckDynamicBuild mirrors DynamicBuild but produces no channels or
	// tasks, only errors, and tracks cycles via path.
	CheckDynamicBuild(reg *Registry, arena *Arena, buildID int, path *Path) []error

	// CheckGiveNext mirrors GiveNext the same way.
	CheckGiveNext(reg *Registry, arena *Arena, buildID int, childLabel string, path *Path) []error
}
