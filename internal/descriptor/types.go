package descriptor

import "fmt"

// Primitive enumerates the concrete primitive datatypes.
type Primitive string

const (
	PrimitiveVoid   Primitive = "void"
	PrimitiveBool   Primitive = "bool"
	PrimitiveU8     Primitive = "u8"
	PrimitiveU16    Primitive = "u16"
	PrimitiveU32    Primitive = "u32"
	PrimitiveU64    Primitive = "u64"
	PrimitiveI8     Primitive = "i8"
	PrimitiveI16    Primitive = "i16"
	PrimitiveI32    Primitive = "i32"
	PrimitiveI64    Primitive = "i64"
	PrimitiveF32    Primitive = "f32"
	PrimitiveF64    Primitive = "f64"
	PrimitiveString Primitive = "string"
)

var validPrimitives = map[Primitive]struct{}{
	PrimitiveVoid: {}, PrimitiveBool: {}, PrimitiveU8: {}, PrimitiveU16: {},
	PrimitiveU32: {}, PrimitiveU64: {}, PrimitiveI8: {}, PrimitiveI16: {},
	PrimitiveI32: {}, PrimitiveI64: {}, PrimitiveF32: {}, PrimitiveF64: {},
	PrimitiveString: {},
}

// IsValidPrimitive reports whether p names a known primitive.
func IsValidPrimitive(p Primitive) bool {
	_, ok := validPrimitives[p]
	return ok
}

// TypeKind discriminates the shape of a DescribedType.
type TypeKind int

const (
	KindPrimitive TypeKind = iota
	KindVector
	KindOption
	KindGeneric
)

// DescribedType is the described-type sum: a concrete primitive, a
// vector of one, an option of one, or a named generic variable bound at the
// enclosing scope. Go has no sum types, so this is a tagged struct; only the
// field matching Kind is meaningful.
type DescribedType struct {
	Kind      TypeKind
	Primitive Primitive      // valid when Kind == KindPrimitive
	Inner     *DescribedType // valid when Kind == KindVector or KindOption
	Generic   string         // valid when Kind == KindGeneric: the generic variable's name
}

// Prim constructs a primitive described type.
func Prim(p Primitive) DescribedType { return DescribedType{Kind: KindPrimitive, Primitive: p} }

// VectorOf constructs a vector-of described type.
func VectorOf(inner DescribedType) DescribedType { return DescribedType{Kind: KindVector, Inner: &inner} }

// OptionOf constructs an option-of described type.
func OptionOf(inner DescribedType) DescribedType { return DescribedType{Kind: KindOption, Inner: &inner} }

// Gen constructs a generic-variable described type.
func Gen(name string) DescribedType { return DescribedType{Kind: KindGeneric, Generic: name} }

// String renders a human-readable type expression, e.g. "Vec<Option<u8>>" or "T".
func (dt DescribedType) String() string {
	switch dt.Kind {
	case KindPrimitive:
		return string(dt.Primitive)
	case KindVector:
		return fmt.Sprintf("Vec<%s>", dt.Inner.String())
	case KindOption:
		return fmt.Sprintf("Option<%s>", dt.Inner.String())
	case KindGeneric:
		return dt.Generic
	default:
		return "?"
	}
}

// Equal reports structural equality between two described types, treating
// two generic variables of the same name as equal (callers are responsible
// for resolving generics to concrete types before comparing across scopes).
func (dt DescribedType) Equal(other DescribedType) bool {
	if dt.Kind != other.Kind {
		return false
	}
	switch dt.Kind {
	case KindPrimitive:
		return dt.Primitive == other.Primitive
	case KindVector, KindOption:
		if dt.Inner == nil || other.Inner == nil {
			return dt.Inner == other.Inner
		}
		return dt.Inner.Equal(*other.Inner)
	case KindGeneric:
		return dt.Generic == other.Generic
	default:
		return false
	}
}

// IsGeneric reports whether the type (at any nesting depth) references a
// generic variable and has not yet been resolved to a concrete type.
func (dt DescribedType) IsGeneric() bool {
	switch dt.Kind {
	case KindGeneric:
		return true
	case KindVector, KindOption:
		return dt.Inner != nil && dt.Inner.IsGeneric()
	default:
		return false
	}
}

// Resolve substitutes every generic variable in dt using the given binding
// (generic name -> concrete type), returning a fully concrete type. An
// unresolved generic name is left as-is so the caller can detect it.
func (dt DescribedType) Resolve(bindings map[string]DescribedType) DescribedType {
	switch dt.Kind {
	case KindGeneric:
		if concrete, ok := bindings[dt.Generic]; ok {
			return concrete
		}
		return dt
	case KindVector:
		inner := dt.Inner.Resolve(bindings)
		return VectorOf(inner)
	case KindOption:
		inner := dt.Inner.Resolve(bindings)
		return OptionOf(inner)
	default:
		return dt
	}
}

// Flow describes whether an input/output carries one value at a time
// (Stream) or a single value available once (Block).
type Flow string

const (
	FlowBlock  Flow = "Block"
	FlowStream Flow = "Stream"
)
