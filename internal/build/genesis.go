// Package build implements C3: the build orchestrator that drives C2's
// builders over a design, producing a tree of build records, the set of
// prepared tasks, and the wiring between producer outputs and consumer
// inputs.
package build

import (
	"fmt"

	"github.com/alexisbeaulieu97/melodium/internal/builder"
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/value"
	pkgerrors "github.com/alexisbeaulieu97/melodium/pkg/errors"
)

// Params is the caller-supplied launch argument set: raw parameter-name to
// value-expression.
type Params map[string]descriptor.Expr

// Generics is the caller-supplied binding of the entry treatment's declared
// generic names to concrete datatypes.
type Generics map[string]descriptor.DescribedType

// buildGenesis constructs the entry treatment's initial genesis environment
// in two passes: generics are bound first (so parameter defaults that
// reference a generic's resolved type are well-formed), then parameter
// values are resolved, validating that every required parameter is present
// and filling in declared defaults.
func buildGenesis(entry *descriptor.TreatmentDescriptor, params Params, generics Generics, funcs value.FunctionTable) (builder.GenesisEnvironment, error) {
	genesis := builder.GenesisEnvironment{
		Parameters: map[string]value.Const{},
		Generics:   map[string]descriptor.DescribedType{},
		Models:     map[string]builder.ModelHandle{},
	}

	// Pass 1: generics. A declared generic the caller leaves unbound keeps
	// its variable form; the checker reports it as undefined (or rejects
	// the binding's trait set), not this pass.
	for _, g := range entry.Generics() {
		if concrete, ok := generics[g.Name]; ok {
			genesis.Generics[g.Name] = concrete
			continue
		}
		genesis.Generics[g.Name] = descriptor.Gen(g.Name)
	}

	// Pass 2: parameters.
	env := value.Environment{Names: genesis.Parameters}
	for _, p := range entry.Parameters() {
		expr, has := params[p.Name]
		switch {
		case has:
			if p.Const && value.IsContextFieldRef(expr) {
				return builder.GenesisEnvironment{}, pkgerrors.NewConstRequiredContextProvided(p.Name)
			}
			resolved, err := value.Resolve(expr, env, funcs)
			if err != nil {
				return builder.GenesisEnvironment{}, fmt.Errorf("launch: resolving parameter %q: %w", p.Name, err)
			}
			if p.Const && !resolved.IsConst {
				return builder.GenesisEnvironment{}, pkgerrors.NewConstRequiredVarProvided(p.Name)
			}
			genesis.Parameters[p.Name] = resolved
		case p.Default != nil:
			resolved, err := value.Resolve(p.Default, env, funcs)
			if err != nil {
				return builder.GenesisEnvironment{}, fmt.Errorf("launch: resolving default for %q: %w", p.Name, err)
			}
			genesis.Parameters[p.Name] = resolved
		default:
			return builder.GenesisEnvironment{}, pkgerrors.NewUnsetParameterNoDefault(p.Name)
		}
	}

	return genesis, nil
}
