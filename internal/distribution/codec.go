package distribution

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/transmission"
	"github.com/alexisbeaulieu97/melodium/internal/value"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// ElemTag mirrors descriptor.Primitive plus the vector/option/other shapes
// on the wire, so a frame's batch payload can be decoded without first
// resolving the sender's descriptor.
type ElemTag uint8

const (
	ElemVoid ElemTag = iota
	ElemBool
	ElemU8
	ElemU16
	ElemU32
	ElemU64
	ElemI8
	ElemI16
	ElemI32
	ElemI64
	ElemF32
	ElemF64
	ElemString
	ElemVector
	ElemOption
	ElemOther
)

func elemTagOf(dt descriptor.DescribedType) (ElemTag, error) {
	switch dt.Kind {
	case descriptor.KindPrimitive:
		switch dt.Primitive {
		case descriptor.PrimitiveVoid:
			return ElemVoid, nil
		case descriptor.PrimitiveBool:
			return ElemBool, nil
		case descriptor.PrimitiveU8:
			return ElemU8, nil
		case descriptor.PrimitiveU16:
			return ElemU16, nil
		case descriptor.PrimitiveU32:
			return ElemU32, nil
		case descriptor.PrimitiveU64:
			return ElemU64, nil
		case descriptor.PrimitiveI8:
			return ElemI8, nil
		case descriptor.PrimitiveI16:
			return ElemI16, nil
		case descriptor.PrimitiveI32:
			return ElemI32, nil
		case descriptor.PrimitiveI64:
			return ElemI64, nil
		case descriptor.PrimitiveF32:
			return ElemF32, nil
		case descriptor.PrimitiveF64:
			return ElemF64, nil
		case descriptor.PrimitiveString:
			return ElemString, nil
		}
	case descriptor.KindVector:
		return ElemVector, nil
	case descriptor.KindOption:
		return ElemOption, nil
	}
	return ElemOther, nil
}

// WireValue is one element of a WireBatch: exactly one field is meaningful,
// selected by the owning WireBatch's ElemTag. Vec doubles as the option
// payload (zero or one element) to avoid a redundant nested-batch shape.
type WireValue struct {
	Bool bool
	U64  uint64 // carries every unsigned width, zero-extended
	I64  int64  // carries every signed width, sign-extended
	F64  float64
	Str  string
	Vec  []WireValue
	Some bool // meaningful only when the owning tag is ElemOption
}

// Codec serialises and deserialises frames and batches for the wire
// protocol (length-prefixed frames, a dedicated typed codec for
// the batch payload).
type Codec struct{}

// NewCodec returns a ready-to-use Codec. It carries no state: encoding and
// decoding are pure functions of their arguments.
func NewCodec() *Codec { return &Codec{} }

// EncodeBatch converts an in-memory Batch to its wire form.
func (c *Codec) EncodeBatch(b *transmission.Batch) (WireBatch, error) {
	tag, err := elemTagOf(b.ElemType())
	if err != nil {
		return WireBatch{}, err
	}
	items := b.IntoVec()
	wire := make([]WireValue, len(items))
	for i, d := range items {
		v, err := c.encodeValue(d)
		if err != nil {
			return WireBatch{}, err
		}
		wire[i] = v
	}
	return WireBatch{ElemTag: tag, Elems: wire}, nil
}

func (c *Codec) encodeValue(d value.Data) (WireValue, error) {
	switch d.Type.Kind {
	case descriptor.KindPrimitive:
		return c.encodePrimitive(d)
	case descriptor.KindVector:
		inner := make([]WireValue, len(d.Vec))
		for i, e := range d.Vec {
			v, err := c.encodeValue(e)
			if err != nil {
				return WireValue{}, err
			}
			inner[i] = v
		}
		return WireValue{Vec: inner}, nil
	case descriptor.KindOption:
		if d.Opt == nil {
			return WireValue{Some: false}, nil
		}
		inner, err := c.encodeValue(*d.Opt)
		if err != nil {
			return WireValue{}, err
		}
		return WireValue{Some: true, Vec: []WireValue{inner}}, nil
	default:
		return WireValue{}, fmt.Errorf("distribution: cannot serialise opaque Data value of type %s over the wire", d.OtherID)
	}
}

func (c *Codec) encodePrimitive(d value.Data) (WireValue, error) {
	switch d.Type.Primitive {
	case descriptor.PrimitiveVoid:
		return WireValue{}, nil
	case descriptor.PrimitiveBool:
		return WireValue{Bool: d.Prim.(bool)}, nil
	case descriptor.PrimitiveU8:
		return WireValue{U64: uint64(d.Prim.(uint8))}, nil
	case descriptor.PrimitiveU16:
		return WireValue{U64: uint64(d.Prim.(uint16))}, nil
	case descriptor.PrimitiveU32:
		return WireValue{U64: uint64(d.Prim.(uint32))}, nil
	case descriptor.PrimitiveU64:
		return WireValue{U64: d.Prim.(uint64)}, nil
	case descriptor.PrimitiveI8:
		return WireValue{I64: int64(d.Prim.(int8))}, nil
	case descriptor.PrimitiveI16:
		return WireValue{I64: int64(d.Prim.(int16))}, nil
	case descriptor.PrimitiveI32:
		return WireValue{I64: int64(d.Prim.(int32))}, nil
	case descriptor.PrimitiveI64:
		return WireValue{I64: d.Prim.(int64)}, nil
	case descriptor.PrimitiveF32:
		return WireValue{F64: float64(d.Prim.(float32))}, nil
	case descriptor.PrimitiveF64:
		return WireValue{F64: d.Prim.(float64)}, nil
	case descriptor.PrimitiveString:
		s := d.Prim.(string)
		if _, _, err := transform.String(encoding.UTF8Validator, s); err != nil {
			return WireValue{}, fmt.Errorf("distribution: string is not valid UTF-8: %w", err)
		}
		return WireValue{Str: s}, nil
	default:
		return WireValue{}, fmt.Errorf("distribution: unknown primitive %s", d.Type.Primitive)
	}
}

// decodeBatch rebuilds a Batch from its wire form, checked against the
// declared datatype of the receiving input. A tag mismatch is a protocol
// violation the receiver must close the stream over.
func (c *Codec) decodeBatch(w WireBatch, elemType descriptor.DescribedType) (*transmission.Batch, error) {
	wantTag, err := elemTagOf(elemType)
	if err != nil {
		return nil, err
	}
	if wantTag != w.ElemTag {
		return nil, fmt.Errorf("%w: declared %s, wire tag %d", errBatchTagMismatch, elemType, w.ElemTag)
	}
	batch := transmission.NewBatch(elemType)
	for _, wv := range w.Elems {
		d, err := c.decodeValue(wv, elemType)
		if err != nil {
			return nil, err
		}
		batch.Push(d)
	}
	return batch, nil
}

var errBatchTagMismatch = fmt.Errorf("distribution: batch tag mismatch")

func (c *Codec) decodeValue(w WireValue, dt descriptor.DescribedType) (value.Data, error) {
	switch dt.Kind {
	case descriptor.KindPrimitive:
		return c.decodePrimitive(w, dt)
	case descriptor.KindVector:
		elems := make([]value.Data, len(w.Vec))
		for i, e := range w.Vec {
			d, err := c.decodeValue(e, *dt.Inner)
			if err != nil {
				return value.Data{}, err
			}
			elems[i] = d
		}
		return value.Data{Type: dt, Vec: elems}, nil
	case descriptor.KindOption:
		if !w.Some {
			return value.Data{Type: dt}, nil
		}
		inner, err := c.decodeValue(w.Vec[0], *dt.Inner)
		if err != nil {
			return value.Data{}, err
		}
		return value.Data{Type: dt, Opt: &inner}, nil
	default:
		return value.Data{}, fmt.Errorf("distribution: cannot deserialise opaque Data value over the wire")
	}
}

func (c *Codec) decodePrimitive(w WireValue, dt descriptor.DescribedType) (value.Data, error) {
	switch dt.Primitive {
	case descriptor.PrimitiveVoid:
		return value.Data{Type: dt, Prim: struct{}{}}, nil
	case descriptor.PrimitiveBool:
		return value.Data{Type: dt, Prim: w.Bool}, nil
	case descriptor.PrimitiveU8:
		return value.Data{Type: dt, Prim: uint8(w.U64)}, nil
	case descriptor.PrimitiveU16:
		return value.Data{Type: dt, Prim: uint16(w.U64)}, nil
	case descriptor.PrimitiveU32:
		return value.Data{Type: dt, Prim: uint32(w.U64)}, nil
	case descriptor.PrimitiveU64:
		return value.Data{Type: dt, Prim: w.U64}, nil
	case descriptor.PrimitiveI8:
		return value.Data{Type: dt, Prim: int8(w.I64)}, nil
	case descriptor.PrimitiveI16:
		return value.Data{Type: dt, Prim: int16(w.I64)}, nil
	case descriptor.PrimitiveI32:
		return value.Data{Type: dt, Prim: int32(w.I64)}, nil
	case descriptor.PrimitiveI64:
		return value.Data{Type: dt, Prim: w.I64}, nil
	case descriptor.PrimitiveF32:
		return value.Data{Type: dt, Prim: float32(w.F64)}, nil
	case descriptor.PrimitiveF64:
		return value.Data{Type: dt, Prim: w.F64}, nil
	case descriptor.PrimitiveString:
		return value.Data{Type: dt, Prim: w.Str}, nil
	default:
		return value.Data{}, fmt.Errorf("distribution: unknown primitive %s", dt.Primitive)
	}
}

// --- Frame-level length-prefixed codec ---

// WriteFrame writes one length-prefixed, gob-encoded message to w. Frame
// payloads are small, infrequent control messages plus batched data chunks;
// gob's self-describing encoding keeps the wire format forward-compatible
// across optional fields without a hand-rolled schema.
func WriteFrame(w io.Writer, msg Message) error {
	payload, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// ReadFrame reads one length-prefixed message from r.
func ReadFrame(r *bufio.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameSize {
		return Message{}, fmt.Errorf("distribution: frame of %d bytes exceeds limit", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, err
	}
	return decodeMessage(payload)
}

// maxFrameSize bounds a single frame to guard against a malformed length
// prefix turning into an unbounded allocation.
const maxFrameSize = 64 << 20

func encodeMessage(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(msg); err != nil {
		return nil, fmt.Errorf("distribution: encoding %s frame: %w", msg.Tag, err)
	}
	return buf.Bytes(), nil
}

func decodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("distribution: decoding frame: %w", err)
	}
	return msg, nil
}
