package value

import (
	"fmt"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
)

// Data is the host-language representation of one resolved value flowing
// through the engine: a concrete primitive, a vector of Data, an option
// (nil means None), or an opaque host value tagged by a DataDescriptor
// identifier.
type Data struct {
	Type  descriptor.DescribedType
	Prim  any           // bool, uint8..uint64, int8..int64, float32/64, string
	Vec   []Data        // valid when Type.Kind == KindVector
	Opt   *Data         // valid when Type.Kind == KindOption; nil means None
	Other any           // valid when tagged as an opaque Data-descriptor value
	OtherID descriptor.Identifier
}

// Const wraps a Data that was determined to be compile-time-constant by
// const propagation. Non-const values carry a zero Const with IsConst false.
type Const struct {
	Value   Data
	IsConst bool
}

func ConstOf(d Data) Const   { return Const{Value: d, IsConst: true} }
func VarOf(d Data) Const     { return Const{Value: d, IsConst: false} }

// String renders Data for diagnostics; it never panics on malformed Data.
func (d Data) String() string {
	switch d.Type.Kind {
	case descriptor.KindPrimitive:
		return fmt.Sprintf("%v", d.Prim)
	case descriptor.KindVector:
		return fmt.Sprintf("%v", d.Vec)
	case descriptor.KindOption:
		if d.Opt == nil {
			return "None"
		}
		return fmt.Sprintf("Some(%s)", d.Opt.String())
	default:
		return fmt.Sprintf("<%s %v>", d.OtherID, d.Other)
	}
}
