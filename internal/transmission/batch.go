// Package transmission implements C1: typed, bounded, batched,
// single-producer-single-consumer channels between treatment tasks, with an
// optional fan-out wrapper.
package transmission

import (
	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

// Batch is a tagged union over primitive element types plus an Other
// variant for non-primitive values.
// Mixing element kinds within one Batch is a programming error the build
// step is supposed to prevent, so the mutating operations panic rather than
// return an error on a mismatch.
type Batch struct {
	elemType descriptor.DescribedType
	items    []value.Data
}

// NewBatch constructs an empty batch typed for elemType.
func NewBatch(elemType descriptor.DescribedType) *Batch {
	return &Batch{elemType: elemType}
}

// ElemType reports the static element type this batch carries.
func (b *Batch) ElemType() descriptor.DescribedType { return b.elemType }

// Len reports the number of buffered elements.
func (b *Batch) Len() int { return len(b.items) }

// Append adds every element of other to the end of b. Mixing tags is a
// programming error and must abort: the builder guarantees
// matching tags, so a mismatch here means a static invariant was violated.
func (b *Batch) Append(other *Batch) {
	if !b.elemType.Equal(other.elemType) {
		panic("transmission: batch tag mismatch on append: " + b.elemType.String() + " vs " + other.elemType.String())
	}
	b.items = append(b.items, other.items...)
}

// Push appends one element, panicking if its type disagrees with the
// batch's declared element type.
func (b *Batch) Push(d value.Data) {
	if !b.elemType.Equal(d.Type) {
		panic("transmission: batch tag mismatch on push: " + b.elemType.String() + " vs " + d.Type.String())
	}
	b.items = append(b.items, d)
}

// PopFront removes and returns the first element, reporting false if empty.
func (b *Batch) PopFront() (value.Data, bool) {
	if len(b.items) == 0 {
		return value.Data{}, false
	}
	d := b.items[0]
	b.items = b.items[1:]
	return d, true
}

// IntoVec drains the batch into a plain slice, in order.
func (b *Batch) IntoVec() []value.Data {
	out := b.items
	b.items = nil
	return out
}

// Clone returns an independent copy sharing no backing array with b, used by
// fan-out to hand each consumer its own batch.
func (b *Batch) Clone() *Batch {
	cp := make([]value.Data, len(b.items))
	copy(cp, b.items)
	return &Batch{elemType: b.elemType, items: cp}
}
