package convfn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
	"github.com/alexisbeaulieu97/melodium/internal/value"
)

func TestU32ToStringConverts(t *testing.T) {
	t.Parallel()

	table := NewTable()
	id, err := descriptor.NewIdentifier("std/convert/u32ToString", "1.0.0")
	require.NoError(t, err)

	out, err := table.Call(id, []value.Data{{Type: descriptor.Prim(descriptor.PrimitiveU32), Prim: uint32(42)}})
	require.NoError(t, err)
	require.Equal(t, "42", out.Prim)
}

func TestStringToI64ValidParses(t *testing.T) {
	t.Parallel()

	table := NewTable()
	id, err := descriptor.NewIdentifier("std/convert/StringToI64", "1.0.0")
	require.NoError(t, err)

	out, err := table.Call(id, []value.Data{{Type: descriptor.Prim(descriptor.PrimitiveString), Prim: "-12"}})
	require.NoError(t, err)
	require.NotNil(t, out.Opt)
	require.Equal(t, int64(-12), out.Opt.Prim)
}

func TestStringToI64InvalidYieldsNone(t *testing.T) {
	t.Parallel()

	table := NewTable()
	id, err := descriptor.NewIdentifier("std/convert/StringToI64", "1.0.0")
	require.NoError(t, err)

	out, err := table.Call(id, []value.Data{{Type: descriptor.Prim(descriptor.PrimitiveString), Prim: "not-a-number"}})
	require.NoError(t, err)
	require.Nil(t, out.Opt)
}

func TestCallUnknownFunctionFails(t *testing.T) {
	t.Parallel()

	table := NewTable()
	id, err := descriptor.NewIdentifier("std/convert/DoesNotExist", "1.0.0")
	require.NoError(t, err)

	_, err = table.Call(id, nil)
	require.Error(t, err)
}
