package descriptor

// Trait is an abstract capability a generic's resolved concrete type must
// satisfy. The set is fixed by the host language's
// standard library, not user-extensible.
type Trait string

const (
	TraitToString Trait = "ToString"
	TraitAdd      Trait = "Add"
	TraitSubtract Trait = "Subtract"
	TraitMultiply Trait = "Multiply"
	TraitDivide   Trait = "Divide"
	TraitSigned   Trait = "Signed"
	TraitOrder    Trait = "Order"
	TraitEqual    Trait = "Equal"
	TraitHash     Trait = "Hash"
)

// satisfiedBy maps every primitive type to the traits it satisfies. Vector
// and Option types satisfy no traits directly; a generic
// bound to a composite datatype never satisfies a trait requirement.
var satisfiedBy = map[Primitive]map[Trait]struct{}{
	PrimitiveBool:   set(TraitToString, TraitEqual, TraitHash),
	PrimitiveU8:     set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitEqual, TraitHash),
	PrimitiveU16:    set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitEqual, TraitHash),
	PrimitiveU32:    set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitEqual, TraitHash),
	PrimitiveU64:    set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitEqual, TraitHash),
	PrimitiveI8:     set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitEqual, TraitHash, TraitSigned),
	PrimitiveI16:    set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitEqual, TraitHash, TraitSigned),
	PrimitiveI32:    set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitEqual, TraitHash, TraitSigned),
	PrimitiveI64:    set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitEqual, TraitHash, TraitSigned),
	PrimitiveF32:    set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitSigned),
	PrimitiveF64:    set(TraitToString, TraitAdd, TraitSubtract, TraitMultiply, TraitDivide, TraitOrder, TraitSigned),
	// Arithmetic traits are numeric-only: string concatenation is not Add.
	PrimitiveString: set(TraitToString, TraitOrder, TraitEqual, TraitHash),
	PrimitiveVoid:   set(TraitToString, TraitEqual),
}

func set(traits ...Trait) map[Trait]struct{} {
	m := make(map[Trait]struct{}, len(traits))
	for _, t := range traits {
		m[t] = struct{}{}
	}
	return m
}

// Satisfies reports whether the concrete described type satisfies every
// required trait. Non-primitive types (vector, option) satisfy none.
func Satisfies(dt DescribedType, required []Trait) bool {
	if len(required) == 0 {
		return true
	}
	if dt.Kind != KindPrimitive {
		return false
	}
	available := satisfiedBy[dt.Primitive]
	for _, t := range required {
		if _, ok := available[t]; !ok {
			return false
		}
	}
	return true
}

// UnsatisfiedOf returns the subset of required traits the type does not satisfy.
func UnsatisfiedOf(dt DescribedType, required []Trait) []Trait {
	var missing []Trait
	available := map[Trait]struct{}{}
	if dt.Kind == KindPrimitive {
		available = satisfiedBy[dt.Primitive]
	}
	for _, t := range required {
		if _, ok := available[t]; !ok {
			missing = append(missing, t)
		}
	}
	return missing
}
