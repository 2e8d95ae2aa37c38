package transmission

import (
	"sync"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

// Limit is the staging threshold above which an output handle auto-flushes
// a batch to its consumers.
const Limit = 1 << 20

// leg is one producer→consumer edge: a 1-slot downstream channel plus a
// close signal in each direction.
type leg struct {
	ch             chan *Batch
	producerClosed chan struct{}
	consumerClosed chan struct{}
	closeOnce      sync.Once // guards producerClosed
	consumeOnce    sync.Once // guards consumerClosed
}

func newLeg() *leg {
	return &leg{
		ch:             make(chan *Batch, 1),
		producerClosed: make(chan struct{}),
		consumerClosed: make(chan struct{}),
	}
}

func (l *leg) closeProducer() {
	l.closeOnce.Do(func() {
		close(l.producerClosed)
		close(l.ch)
	})
}

func (l *leg) closeConsumer() {
	l.consumeOnce.Do(func() { close(l.consumerClosed) })
}

func (l *leg) isConsumerClosed() bool {
	select {
	case <-l.consumerClosed:
		return true
	default:
		return false
	}
}

// receive waits for the next batch, giving priority to data already sitting
// in the channel over an observed producer close. Go's select chooses
// randomly among simultaneously-ready cases, which would otherwise make the
// Closed-vs-drained distinction nondeterministic once a batch and a close
// race to become visible at the same time; the explicit non-blocking
// drain-first step below removes that race.
func (l *leg) receive() (*Batch, bool) {
	select {
	case b, ok := <-l.ch:
		return b, ok
	default:
	}
	select {
	case b, ok := <-l.ch:
		return b, ok
	case <-l.producerClosed:
		select {
		case b, ok := <-l.ch:
			return b, ok
		default:
			return nil, false
		}
	}
}

// InputHandle is the consumer side of one transmitter leg.
type InputHandle struct {
	elemType descriptor.DescribedType
	l        *leg
	pending  *Batch
}

func newInputHandle(elemType descriptor.DescribedType, l *leg) *InputHandle {
	return &InputHandle{elemType: elemType, l: l}
}

// ElemType reports the static element type this handle carries.
func (in *InputHandle) ElemType() descriptor.DescribedType { return in.elemType }

// RecvMany awaits the next non-empty batch.
func (in *InputHandle) RecvMany() (*Batch, error) {
	if in.pending != nil && in.pending.Len() > 0 {
		b := in.pending
		in.pending = nil
		return b, nil
	}
	for {
		b, ok := in.l.receive()
		if !ok {
			return nil, ErrClosed
		}
		if b.Len() == 0 {
			continue
		}
		return b, nil
	}
}

// RecvOne pops one value, fetching the next batch transparently when the
// current one is exhausted.
func (in *InputHandle) RecvOne() (value.Data, error) {
	if in.pending == nil || in.pending.Len() == 0 {
		b, err := in.recvMaybeEmpty()
		if err != nil {
			return value.Data{}, err
		}
		in.pending = b
	}
	d, ok := in.pending.PopFront()
	if !ok {
		return value.Data{}, ErrNoData
	}
	return d, nil
}

// recvMaybeEmpty is like RecvMany but reports NoData rather than Closed once
// the channel is drained, per the documented choice in errors.go.
func (in *InputHandle) recvMaybeEmpty() (*Batch, error) {
	b, ok := in.l.receive()
	if !ok {
		return nil, ErrNoData
	}
	return b, nil
}

// Close signals the producer that no more values will be consumed and
// drains any batches still buffered in the channel; idempotent.
func (in *InputHandle) Close() {
	in.l.closeConsumer()
	for {
		select {
		case _, ok := <-in.l.ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// RecvManyString, RecvManyU8, ... are typed convenience variants.
// Only the u8, i32, i64, f64 and string variants exist; each delegates to
// recvTypedVec or recvTypedOne.
func (in *InputHandle) RecvManyU8() ([]uint8, error)   { return recvTypedVec[uint8](in, descriptor.PrimitiveU8) }
func (in *InputHandle) RecvManyI32() ([]int32, error)  { return recvTypedVec[int32](in, descriptor.PrimitiveI32) }
func (in *InputHandle) RecvManyI64() ([]int64, error)  { return recvTypedVec[int64](in, descriptor.PrimitiveI64) }
func (in *InputHandle) RecvManyF64() ([]float64, error) {
	return recvTypedVec[float64](in, descriptor.PrimitiveF64)
}
func (in *InputHandle) RecvManyString() ([]string, error) {
	return recvTypedVec[string](in, descriptor.PrimitiveString)
}

func recvTypedVec[T any](in *InputHandle, want descriptor.Primitive) ([]T, error) {
	if in.elemType.Kind != descriptor.KindPrimitive || in.elemType.Primitive != want {
		panic("transmission: typed recv called on mismatched element type " + in.elemType.String())
	}
	b, err := in.RecvMany()
	if err != nil {
		return nil, err
	}
	items := b.IntoVec()
	out := make([]T, len(items))
	for i, d := range items {
		out[i] = d.Prim.(T)
	}
	return out, nil
}

func (in *InputHandle) RecvOneU8() (uint8, error)   { return recvTypedOne[uint8](in, descriptor.PrimitiveU8) }
func (in *InputHandle) RecvOneI32() (int32, error)  { return recvTypedOne[int32](in, descriptor.PrimitiveI32) }
func (in *InputHandle) RecvOneI64() (int64, error)  { return recvTypedOne[int64](in, descriptor.PrimitiveI64) }
func (in *InputHandle) RecvOneF64() (float64, error) {
	return recvTypedOne[float64](in, descriptor.PrimitiveF64)
}
func (in *InputHandle) RecvOneString() (string, error) {
	return recvTypedOne[string](in, descriptor.PrimitiveString)
}

func recvTypedOne[T any](in *InputHandle, want descriptor.Primitive) (T, error) {
	var zero T
	if in.elemType.Kind != descriptor.KindPrimitive || in.elemType.Primitive != want {
		panic("transmission: typed recv_one called on mismatched element type " + in.elemType.String())
	}
	d, err := in.RecvOne()
	if err != nil {
		return zero, err
	}
	return d.Prim.(T), nil
}

// OutputHandle is the producer side, wrapping one or more fan-out legs
type OutputHandle struct {
	elemType descriptor.DescribedType
	mu       sync.Mutex // guards legs during clone-for-fanout, never held across an await
	legs     []*leg
	staging  *Batch
}

// NewOutputHandle constructs an output handle with N fan-out legs and
// returns it alongside the N paired input handles.
func NewOutputHandle(elemType descriptor.DescribedType, fanOut int) (*OutputHandle, []*InputHandle) {
	legs := make([]*leg, fanOut)
	inputs := make([]*InputHandle, fanOut)
	for i := range legs {
		legs[i] = newLeg()
		inputs[i] = newInputHandle(elemType, legs[i])
	}
	out := &OutputHandle{elemType: elemType, legs: legs, staging: NewBatch(elemType)}
	return out, inputs
}

// Adopt moves every leg of other into out, so each staged flush from out
// also reaches other's consumers. Both handles must carry the same element
// type, and other must not be used afterwards. The build step uses this
// when one produced stream fans out to several consumer inputs.
func (out *OutputHandle) Adopt(other *OutputHandle) {
	if !out.elemType.Equal(other.elemType) {
		panic("transmission: adopt across element types: " + out.elemType.String() + " vs " + other.elemType.String())
	}
	other.mu.Lock()
	legs := other.legs
	other.legs = nil
	other.mu.Unlock()
	out.mu.Lock()
	out.legs = append(out.legs, legs...)
	out.mu.Unlock()
}

// AddConsumer attaches one more downstream consumer after construction,
// used when a connection's fan-out set is assembled incrementally during
// static build.
func (out *OutputHandle) AddConsumer() *InputHandle {
	out.mu.Lock()
	l := newLeg()
	out.legs = append(out.legs, l)
	out.mu.Unlock()
	return newInputHandle(out.elemType, l)
}

func (out *OutputHandle) snapshotLegs() []*leg {
	out.mu.Lock()
	defer out.mu.Unlock()
	cp := make([]*leg, len(out.legs))
	copy(cp, out.legs)
	return cp
}

// SendMany appends to the staging buffer, auto-flushing at Limit.
func (out *OutputHandle) SendMany(b *Batch) error {
	if len(out.snapshotLegs()) == 0 {
		return ErrNoReceiver
	}
	out.staging.Append(b)
	if out.staging.Len() >= Limit {
		return out.flush()
	}
	return nil
}

// SendOne stages one value.
func (out *OutputHandle) SendOne(d value.Data) error {
	if len(out.snapshotLegs()) == 0 {
		return ErrNoReceiver
	}
	out.staging.Push(d)
	if out.staging.Len() >= Limit {
		return out.flush()
	}
	return nil
}

// Flush delivers any staged data to the consumers immediately, without
// waiting for Limit; wire-facing forwarders use it so a received frame is
// visible to the local reader as soon as it arrives.
func (out *OutputHandle) Flush() error { return out.flush() }

// flush delivers the current staged batch to every live consumer, cloning
// it N-1 times.
func (out *OutputHandle) flush() error {
	if out.staging.Len() == 0 {
		return nil
	}
	toSend := out.staging
	out.staging = NewBatch(out.elemType)
	return out.deliver(toSend)
}

func (out *OutputHandle) deliver(b *Batch) error {
	legs := out.snapshotLegs()
	if len(legs) == 0 {
		return ErrNoReceiver
	}
	delivered := 0
	for i, l := range legs {
		if l.isConsumerClosed() {
			continue
		}
		payload := b
		if i < len(legs)-1 {
			payload = b.Clone()
		}
		select {
		case l.ch <- payload:
			delivered++
		case <-l.consumerClosed:
		}
	}
	if delivered == 0 {
		return ErrEverythingClosed
	}
	return nil
}

// SendOneU8, SendOneI32, ... are typed convenience variants symmetrical to
// the consumer-side recv_one_<t>.
func (out *OutputHandle) SendOneU8(v uint8) error {
	return out.SendOne(value.Data{Type: descriptor.Prim(descriptor.PrimitiveU8), Prim: v})
}
func (out *OutputHandle) SendOneI32(v int32) error {
	return out.SendOne(value.Data{Type: descriptor.Prim(descriptor.PrimitiveI32), Prim: v})
}
func (out *OutputHandle) SendOneI64(v int64) error {
	return out.SendOne(value.Data{Type: descriptor.Prim(descriptor.PrimitiveI64), Prim: v})
}
func (out *OutputHandle) SendOneString(v string) error {
	return out.SendOne(value.Data{Type: descriptor.Prim(descriptor.PrimitiveString), Prim: v})
}

// Close flushes any remaining staged data then closes every downstream
// consumer; idempotent.
func (out *OutputHandle) Close() error {
	err := out.flush()
	for _, l := range out.snapshotLegs() {
		l.closeProducer()
	}
	if err == ErrEverythingClosed {
		return nil
	}
	return err
}
