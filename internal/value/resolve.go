package value

import (
	"fmt"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
)

// Environment is the read-only scope an expression resolves against: the
// genesis environment's bound names (generics, const parameters, models)
// plus whatever contexts are in effect at this point in the build.
type Environment struct {
	Names    map[string]Const
	Contexts map[descriptor.Identifier]map[string]Data
}

// FunctionTable looks up a registered function's evaluator by identifier.
// internal/convfn and any other function provider implement this.
type FunctionTable interface {
	Call(id descriptor.Identifier, args []Data) (Data, error)
}

// Resolve evaluates an expression to a concrete Data value plus whether it
// was determined to be const.
func Resolve(expr descriptor.Expr, env Environment, funcs FunctionTable) (Const, error) {
	switch e := expr.(type) {
	case Literal:
		return ConstOf(e.Data), nil

	case NameRef:
		bound, ok := env.Names[e.Name]
		if !ok {
			return Const{}, fmt.Errorf("value: undefined name %q in genesis environment", e.Name)
		}
		return bound, nil

	case ContextFieldRef:
		fields, ok := env.Contexts[e.ContextID]
		if !ok {
			return Const{}, fmt.Errorf("value: context %s not available in this scope", e.ContextID)
		}
		field, ok := fields[e.Field]
		if !ok {
			return Const{}, fmt.Errorf("value: context %s has no field %q", e.ContextID, e.Field)
		}
		return VarOf(field), nil

	case FunctionCall:
		args := make([]Data, len(e.Args))
		allConst := true
		for i, argExpr := range e.Args {
			resolved, err := Resolve(argExpr, env, funcs)
			if err != nil {
				return Const{}, err
			}
			args[i] = resolved.Value
			allConst = allConst && resolved.IsConst
		}
		result, err := funcs.Call(e.FunctionID, args)
		if err != nil {
			return Const{}, fmt.Errorf("value: calling %s: %w", e.FunctionID, err)
		}
		if allConst {
			return ConstOf(result), nil
		}
		return VarOf(result), nil

	default:
		return Const{}, fmt.Errorf("value: unknown expression kind %T", expr)
	}
}
