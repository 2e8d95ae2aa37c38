// Package convfn supplies the standard conversion functions available to
// parameter-value expressions. Each conversion is registered under a std/convert/* path
// so design sources can call it like any other FunctionDescriptor.
package convfn

import (
	"fmt"
	"strconv"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

// Fn is one registered conversion's evaluator.
type Fn func(args []value.Data) (value.Data, error)

// Table implements value.FunctionTable over a fixed set of conversions plus
// whatever additional functions callers register.
type Table struct {
	descriptors map[string]*descriptor.FunctionDescriptor
	fns         map[string]Fn
}

// NewTable builds a Table pre-populated with the standard conversions.
func NewTable() *Table {
	t := &Table{
		descriptors: map[string]*descriptor.FunctionDescriptor{},
		fns:         map[string]Fn{},
	}
	t.registerStandard()
	return t
}

func (t *Table) register(id descriptor.Identifier, desc *descriptor.FunctionDescriptor, fn Fn) {
	t.descriptors[id.Key()] = desc
	t.fns[id.Key()] = fn
}

// Register adds a custom function to the table; used by hosts that extend
// the standard conversion set with domain-specific functions.
func (t *Table) Register(id descriptor.Identifier, desc *descriptor.FunctionDescriptor, fn Fn) {
	t.register(id, desc, fn)
}

// Lookup returns the FunctionDescriptor for id, if registered.
func (t *Table) Lookup(id descriptor.Identifier) (*descriptor.FunctionDescriptor, bool) {
	d, ok := t.descriptors[id.Key()]
	return d, ok
}

// Call implements value.FunctionTable.
func (t *Table) Call(id descriptor.Identifier, args []value.Data) (value.Data, error) {
	fn, ok := t.fns[id.Key()]
	if !ok {
		return value.Data{}, fmt.Errorf("convfn: no function registered for %s", id)
	}
	return fn(args)
}

func mustID(path string) descriptor.Identifier {
	id, err := descriptor.NewIdentifier(path, "1.0.0")
	if err != nil {
		panic(err)
	}
	return id
}

func oneArg(args []value.Data) (value.Data, error) {
	if len(args) != 1 {
		return value.Data{}, fmt.Errorf("expected exactly one argument, got %d", len(args))
	}
	return args[0], nil
}

func (t *Table) registerStandard() {
	toStringDesc := func(from descriptor.Primitive) *descriptor.FunctionDescriptor {
		return descriptor.NewFunctionDescriptor(
			mustID(fmt.Sprintf("std/convert/%sToString", from)),
			[]descriptor.Parameter{{Name: "value", Type: descriptor.Prim(from)}},
			nil,
			descriptor.Prim(descriptor.PrimitiveString),
		)
	}

	for _, p := range []descriptor.Primitive{
		descriptor.PrimitiveBool, descriptor.PrimitiveU8, descriptor.PrimitiveU16,
		descriptor.PrimitiveU32, descriptor.PrimitiveU64, descriptor.PrimitiveI8,
		descriptor.PrimitiveI16, descriptor.PrimitiveI32, descriptor.PrimitiveI64,
		descriptor.PrimitiveF32, descriptor.PrimitiveF64,
	} {
		prim := p
		t.register(mustID(fmt.Sprintf("std/convert/%sToString", prim)), toStringDesc(prim), func(args []value.Data) (value.Data, error) {
			in, err := oneArg(args)
			if err != nil {
				return value.Data{}, err
			}
			return value.Data{Type: descriptor.Prim(descriptor.PrimitiveString), Prim: fmt.Sprintf("%v", in.Prim)}, nil
		})
	}

	t.register(
		mustID("std/convert/StringToI64"),
		descriptor.NewFunctionDescriptor(
			mustID("std/convert/StringToI64"),
			[]descriptor.Parameter{{Name: "value", Type: descriptor.Prim(descriptor.PrimitiveString)}},
			nil,
			descriptor.OptionOf(descriptor.Prim(descriptor.PrimitiveI64)),
		),
		func(args []value.Data) (value.Data, error) {
			in, err := oneArg(args)
			if err != nil {
				return value.Data{}, err
			}
			s, _ := in.Prim.(string)
			parsed, convErr := strconv.ParseInt(s, 10, 64)
			optType := descriptor.OptionOf(descriptor.Prim(descriptor.PrimitiveI64))
			if convErr != nil {
				return value.Data{Type: optType}, nil
			}
			inner := value.Data{Type: descriptor.Prim(descriptor.PrimitiveI64), Prim: parsed}
			return value.Data{Type: optType, Opt: &inner}, nil
		},
	)

	t.register(
		mustID("std/convert/StringToF64"),
		descriptor.NewFunctionDescriptor(
			mustID("std/convert/StringToF64"),
			[]descriptor.Parameter{{Name: "value", Type: descriptor.Prim(descriptor.PrimitiveString)}},
			nil,
			descriptor.OptionOf(descriptor.Prim(descriptor.PrimitiveF64)),
		),
		func(args []value.Data) (value.Data, error) {
			in, err := oneArg(args)
			if err != nil {
				return value.Data{}, err
			}
			s, _ := in.Prim.(string)
			parsed, convErr := strconv.ParseFloat(s, 64)
			optType := descriptor.OptionOf(descriptor.Prim(descriptor.PrimitiveF64))
			if convErr != nil {
				return value.Data{Type: optType}, nil
			}
			inner := value.Data{Type: descriptor.Prim(descriptor.PrimitiveF64), Prim: parsed}
			return value.Data{Type: optType, Opt: &inner}, nil
		},
	)
}
