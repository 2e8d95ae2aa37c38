package value

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/melodium/internal/descriptor"
)

type stubFunctions struct {
	result Data
	err    error
	calls  int
}

func (s *stubFunctions) Call(id descriptor.Identifier, args []Data) (Data, error) {
	s.calls++
	return s.result, s.err
}

func TestResolveLiteralIsConst(t *testing.T) {
	t.Parallel()

	lit := Literal{Type: descriptor.Prim(descriptor.PrimitiveU32), Data: Data{Type: descriptor.Prim(descriptor.PrimitiveU32), Prim: uint32(4)}}

	got, err := Resolve(lit, Environment{}, &stubFunctions{})
	require.NoError(t, err)
	require.True(t, got.IsConst)
	require.Equal(t, uint32(4), got.Value.Prim)
}

func TestResolveNameRefMissingFails(t *testing.T) {
	t.Parallel()

	_, err := Resolve(NameRef{Name: "threshold"}, Environment{Names: map[string]Const{}}, &stubFunctions{})
	require.Error(t, err)
}

func TestResolveContextFieldNeverConst(t *testing.T) {
	t.Parallel()

	ctxID := descriptor.Identifier{Path: "std/Request", Version: "1.0.0"}
	env := Environment{
		Contexts: map[descriptor.Identifier]map[string]Data{
			ctxID: {"path": {Type: descriptor.Prim(descriptor.PrimitiveString), Prim: "/health"}},
		},
	}

	got, err := Resolve(ContextFieldRef{ContextID: ctxID, Field: "path"}, env, &stubFunctions{})
	require.NoError(t, err)
	require.False(t, got.IsConst)
	require.Equal(t, "/health", got.Value.Prim)
}

func TestResolveFunctionCallConstWhenAllArgsConst(t *testing.T) {
	t.Parallel()

	fn := descriptor.Identifier{Path: "std/math/Add", Version: "1.0.0"}
	stub := &stubFunctions{result: Data{Type: descriptor.Prim(descriptor.PrimitiveU32), Prim: uint32(7)}}

	call := FunctionCall{
		FunctionID: fn,
		Args: []descriptor.Expr{
			Literal{Data: Data{Type: descriptor.Prim(descriptor.PrimitiveU32), Prim: uint32(3)}},
			Literal{Data: Data{Type: descriptor.Prim(descriptor.PrimitiveU32), Prim: uint32(4)}},
		},
	}

	got, err := Resolve(call, Environment{}, stub)
	require.NoError(t, err)
	require.True(t, got.IsConst)
	require.Equal(t, 1, stub.calls)
	require.Equal(t, uint32(7), got.Value.Prim)
}

func TestResolveFunctionCallNotConstWithVarArg(t *testing.T) {
	t.Parallel()

	fn := descriptor.Identifier{Path: "std/math/Add", Version: "1.0.0"}
	stub := &stubFunctions{result: Data{Type: descriptor.Prim(descriptor.PrimitiveU32), Prim: uint32(7)}}

	call := FunctionCall{
		FunctionID: fn,
		Args: []descriptor.Expr{
			NameRef{Name: "dynamic"},
		},
	}

	env := Environment{Names: map[string]Const{"dynamic": VarOf(Data{Type: descriptor.Prim(descriptor.PrimitiveU32), Prim: uint32(3)})}}

	got, err := Resolve(call, env, stub)
	require.NoError(t, err)
	require.False(t, got.IsConst)
}
