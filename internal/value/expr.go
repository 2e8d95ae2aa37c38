// Package value models parameter-value expressions and their resolution
// against a genesis environment.
package value

import "github.com/alexisbeaulieu97/melodium/internal/descriptor"

// Literal is a constant value written directly in the design source.
type Literal struct {
	Type descriptor.DescribedType
	Data Data
}

func (Literal) IsExpr() {}

// NameRef refers to a name bound in the enclosing genesis environment: a
// generic binding, a const parameter value, or a declared model.
type NameRef struct {
	Name string
}

func (NameRef) IsExpr() {}

// ContextFieldRef refers to a field of a context available in the current
// scope.
type ContextFieldRef struct {
	ContextID descriptor.Identifier
	Field     string
}

func (ContextFieldRef) IsExpr() {}

// IsContextFieldRef reports whether expr is directly a reference to a
// context field. Used to distinguish "const required
// but context provided" from the general "const required but var provided"
// case up front, since a context reference is never const regardless of
// whether it would go on to resolve successfully.
func IsContextFieldRef(expr descriptor.Expr) bool {
	_, ok := expr.(ContextFieldRef)
	return ok
}

// FunctionCall invokes a registered FunctionDescriptor with argument
// expressions, each resolved in the same scope as the call itself.
type FunctionCall struct {
	FunctionID descriptor.Identifier
	Args       []descriptor.Expr
}

func (FunctionCall) IsExpr() {}

var (
	_ descriptor.Expr = Literal{}
	_ descriptor.Expr = NameRef{}
	_ descriptor.Expr = ContextFieldRef{}
	_ descriptor.Expr = FunctionCall{}
)
