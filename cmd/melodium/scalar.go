package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

// parseScalar parses one line of text into a value.Data of the given
// primitive type, for the "run" command's line-oriented stdin feed.
func parseScalar(dt descriptor.DescribedType, line string) (value.Data, error) {
	line = strings.TrimSpace(line)
	if dt.Kind != descriptor.KindPrimitive {
		return value.Data{}, fmt.Errorf("cannot feed non-primitive type %s from stdin", dt)
	}
	switch dt.Primitive {
	case descriptor.PrimitiveBool:
		v, err := strconv.ParseBool(line)
		return value.Data{Type: dt, Prim: v}, err
	case descriptor.PrimitiveString:
		return value.Data{Type: dt, Prim: line}, nil
	case descriptor.PrimitiveF32:
		v, err := strconv.ParseFloat(line, 32)
		return value.Data{Type: dt, Prim: float32(v)}, err
	case descriptor.PrimitiveF64:
		v, err := strconv.ParseFloat(line, 64)
		return value.Data{Type: dt, Prim: v}, err
	case descriptor.PrimitiveU8:
		v, err := strconv.ParseUint(line, 10, 8)
		return value.Data{Type: dt, Prim: uint8(v)}, err
	case descriptor.PrimitiveU16:
		v, err := strconv.ParseUint(line, 10, 16)
		return value.Data{Type: dt, Prim: uint16(v)}, err
	case descriptor.PrimitiveU32:
		v, err := strconv.ParseUint(line, 10, 32)
		return value.Data{Type: dt, Prim: uint32(v)}, err
	case descriptor.PrimitiveU64:
		v, err := strconv.ParseUint(line, 10, 64)
		return value.Data{Type: dt, Prim: v}, err
	case descriptor.PrimitiveI8:
		v, err := strconv.ParseInt(line, 10, 8)
		return value.Data{Type: dt, Prim: int8(v)}, err
	case descriptor.PrimitiveI16:
		v, err := strconv.ParseInt(line, 10, 16)
		return value.Data{Type: dt, Prim: int16(v)}, err
	case descriptor.PrimitiveI32:
		v, err := strconv.ParseInt(line, 10, 32)
		return value.Data{Type: dt, Prim: int32(v)}, err
	case descriptor.PrimitiveI64:
		v, err := strconv.ParseInt(line, 10, 64)
		return value.Data{Type: dt, Prim: v}, err
	default:
		return value.Data{}, fmt.Errorf("unsupported primitive %s", dt.Primitive)
	}
}
